package leaseticket

import (
	"context"
	"time"
)

// Ticket is a snapshot of a persisted lease ticket record.
type Ticket struct {
	ID           int32
	Creation     time.Time
	Expiry       time.Time
	Title        string
	RefreshCount int
}

// IsLive reports whether the ticket is live at the given instant.
// Liveness is derived, never stored: a ticket is live while now
// precedes its expiry.
func (t Ticket) IsLive(now time.Time) bool {
	return now.Before(t.Expiry)
}

// Store is the authoritative table of active tickets. All mutation of
// shared state goes through one of these operations; callers never
// read-modify-write ticket rows themselves.
type Store interface {
	// Create allocates an id, inserts a ticket expiring timeout from now,
	// and returns a handle for it. Id collisions with still-live occupants
	// are retried internally a small bounded number of times before
	// failing with ErrAllocationExhausted.
	Create(ctx context.Context, title string) (*Handle, error)

	// Heartbeat atomically recomputes the ticket's expiry to now+timeout
	// and increments its refresh count, returning the updated record.
	// Returns ErrNotFound when no record exists for the id: the claim has
	// been released or has expired and been swept.
	Heartbeat(ctx context.Context, id int32) (*Ticket, error)

	// Release deletes the ticket. Idempotent: releasing a nonexistent id
	// is not an error.
	Release(ctx context.Context, id int32) error

	// IsLive reports whether a record exists for the id with its expiry
	// strictly in the future. Read-only, usable by any party.
	IsLive(ctx context.Context, id int32) (bool, error)

	// Sweep deletes all tickets past expiry and returns them. Not needed
	// for correctness, but reclaims identifier space.
	Sweep(ctx context.Context) ([]Ticket, error)

	// List returns all tickets, live or expired, ordered by id.
	List(ctx context.Context) ([]Ticket, error)

	// Timeout returns the configured process-wide lease timeout.
	Timeout() time.Duration
}

// HandleState is the lifecycle state of a Handle.
type HandleState int

const (
	// StateLive means the handle's ticket existed at the last store round trip.
	StateLive HandleState = iota
	// StateLost means a heartbeat found no record: the claim lapsed or was
	// released by another party. Terminal.
	StateLost
	// StateReleased means the holder released the ticket explicitly. Terminal.
	StateReleased
)

// String returns the state name.
func (s HandleState) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateLost:
		return "lost"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}
