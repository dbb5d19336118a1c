package leaseticket

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store sharing the Postgres store's semantics:
// cyclic id allocation, insertion-time uniqueness, server-computed expiry.
// It coordinates goroutines within one process only; use the Postgres store
// when independent processes must share the claim space. Useful for tests
// and for embedding.
type MemoryStore struct {
	mu      sync.Mutex
	tickets map[int32]Ticket
	nextID  int32
	maxID   int32
	options options
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	var options = defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &MemoryStore{
		tickets: make(map[int32]Ticket),
		nextID:  1,
		maxID:   math.MaxInt32,
		options: options,
	}
}

// allocateID returns the next id from the cyclic range [1, maxID].
// Must be called with the lock held. The allocator does not check liveness;
// uniqueness is enforced at insertion time.
func (m *MemoryStore) allocateID() int32 {
	var id = m.nextID
	if m.nextID == m.maxID {
		m.nextID = 1
	} else {
		m.nextID++
	}
	return id
}

// Create allocates an id and inserts a ticket expiring timeout from now.
// Collisions with expired occupants are swept and do not count against the
// retry bound; collisions with live occupants are retried up to the bound.
func (m *MemoryStore) Create(ctx context.Context, title string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var attempts = m.options.allocRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		var (
			id  = m.allocateID()
			now = time.Now()
		)

		if occupant, exists := m.tickets[id]; exists {
			if occupant.IsLive(now) {
				m.options.logger.Warn("ticket id collision, retrying",
					"id", id,
					"attempt", attempt+1,
					"max_attempts", attempts)
				continue
			}
			// Expired occupant: reclaim the id in place.
			delete(m.tickets, id)
		}

		var ticket = Ticket{
			ID:       id,
			Creation: now,
			Expiry:   nextExpiry(now, m.options.timeout),
			Title:    title,
		}
		m.tickets[id] = ticket

		return newHandle(m, &ticket), nil
	}

	return nil, fmt.Errorf("%w: gave up after %d attempts: %w", ErrAllocationExhausted, attempts, ErrIDCollision)
}

// Heartbeat extends the ticket's expiry to now+timeout and increments its
// refresh count under the store lock.
func (m *MemoryStore) Heartbeat(ctx context.Context, id int32) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var ticket, exists = m.tickets[id]
	if !exists {
		return nil, fmt.Errorf("failed to heartbeat ticket %d: %w", id, ErrNotFound)
	}

	ticket.Expiry = nextExpiry(time.Now(), m.options.timeout)
	ticket.RefreshCount++
	m.tickets[id] = ticket

	return &ticket, nil
}

// Release deletes the ticket. Idempotent.
func (m *MemoryStore) Release(ctx context.Context, id int32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tickets, id)
	return nil
}

// IsLive reports whether a ticket exists for the id with its expiry
// strictly in the future.
func (m *MemoryStore) IsLive(ctx context.Context, id int32) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var ticket, exists = m.tickets[id]
	return exists && ticket.IsLive(time.Now()), nil
}

// Sweep deletes all tickets past expiry and returns them.
func (m *MemoryStore) Sweep(ctx context.Context) ([]Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		now     = time.Now()
		expired []Ticket
	)
	for id, ticket := range m.tickets {
		if !ticket.IsLive(now) {
			expired = append(expired, ticket)
			delete(m.tickets, id)
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ID < expired[j].ID
	})

	return expired, nil
}

// List returns all tickets ordered by id.
func (m *MemoryStore) List(ctx context.Context) ([]Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var tickets = make([]Ticket, 0, len(m.tickets))
	for _, ticket := range m.tickets {
		tickets = append(tickets, ticket)
	}

	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].ID < tickets[j].ID
	})

	return tickets, nil
}

// Timeout returns the configured process-wide lease timeout.
func (m *MemoryStore) Timeout() time.Duration {
	return m.options.timeout
}

// nextExpiry is the expiry policy: a ticket heartbeated (or created) at now
// lives until now+timeout. No grace period; a single missed heartbeat
// window is sufficient for a claim to lapse.
func nextExpiry(now time.Time, timeout time.Duration) time.Time {
	return now.Add(timeout)
}
