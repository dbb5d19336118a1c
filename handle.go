package leaseticket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Handle is a caller-held proxy for one ticket. It carries the ticket's id
// plus a cached last-known expiry; the store only knows the id. A handle in
// the lost or released state is terminal and never resurrects; a new claim
// must be created.
type Handle struct {
	store Store

	mu     sync.Mutex
	ticket Ticket
	state  HandleState
}

func newHandle(store Store, ticket *Ticket) *Handle {
	return &Handle{
		store:  store,
		ticket: *ticket,
		state:  StateLive,
	}
}

// ID returns the ticket's identifier.
func (h *Handle) ID() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ticket.ID
}

// Title returns the ticket's label.
func (h *Handle) Title() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ticket.Title
}

// Creation returns the ticket's creation time.
func (h *Handle) Creation() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ticket.Creation
}

// Expiry returns the last-known expiry, updated on every successful
// heartbeat.
func (h *Handle) Expiry() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ticket.Expiry
}

// RefreshCount returns the last-known refresh count.
func (h *Handle) RefreshCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ticket.RefreshCount
}

// State returns the handle's lifecycle state.
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Ticket returns a snapshot of the last-known record.
func (h *Handle) Ticket() Ticket {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ticket
}

// Heartbeat extends the claim by delegating to the store and updates the
// cached expiry on success. An ErrNotFound from the store moves the handle
// to the terminal lost state: the caller must treat the operation it was
// protecting as no longer exclusively held. Heartbeating a terminal handle
// returns ErrTicketLost or ErrTicketReleased.
func (h *Handle) Heartbeat(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateLost:
		return fmt.Errorf("cannot heartbeat ticket %d: %w", h.ticket.ID, ErrTicketLost)
	case StateReleased:
		return fmt.Errorf("cannot heartbeat ticket %d: %w", h.ticket.ID, ErrTicketReleased)
	}

	var ticket, err = h.store.Heartbeat(ctx, h.ticket.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.state = StateLost
		}
		return err
	}

	h.ticket = *ticket
	return nil
}

// Release deletes the ticket and moves the handle to the terminal released
// state. Idempotent: releasing an already-terminal handle is a no-op, since
// the record is gone either way.
func (h *Handle) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateLive {
		return nil
	}

	if err := h.store.Release(ctx, h.ticket.ID); err != nil {
		return err
	}

	h.state = StateReleased
	return nil
}

// IsLiveCached judges liveness from the cached expiry and local wall-clock
// time, with no store round trip. Cheap, but cannot observe an out-of-band
// release by another party; use IsLive for the authoritative answer.
func (h *Handle) IsLiveCached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == StateLive && h.ticket.IsLive(time.Now())
}

// IsLive re-queries the store: authoritative, accounts for the store-side
// clock and for releases performed by third parties.
func (h *Handle) IsLive(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateLive {
		return false, nil
	}

	return h.store.IsLive(ctx, h.ticket.ID)
}
