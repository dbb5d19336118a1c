package leaseticket

import "errors"

var (
	// ErrNotFound is returned when a heartbeat or liveness check targets an
	// id with no record. Expected and recoverable: the claim has lapsed or
	// been released, and the caller must stop treating the protected
	// operation as exclusively held.
	ErrNotFound = errors.New("ticket not found")

	// ErrIDCollision is returned when an insert collides with a still-live
	// record occupying the freshly allocated id. Only possible after a full
	// wrap of the id range while old claims are live. Handled internally by
	// Create via bounded retry.
	ErrIDCollision = errors.New("ticket id collision")

	// ErrAllocationExhausted is returned when collision retries run out.
	// Indicates pathological load and should be treated as an operational
	// alarm, not a routine error.
	ErrAllocationExhausted = errors.New("ticket id allocation exhausted")

	// ErrStoreUnavailable wraps transport or connectivity failures talking
	// to the shared store. Never retried by the core.
	ErrStoreUnavailable = errors.New("ticket store unavailable")

	// ErrTicketLost is returned when operating on a handle that has already
	// transitioned to the lost state.
	ErrTicketLost = errors.New("ticket handle is lost")

	// ErrTicketReleased is returned when heartbeating a handle that has
	// already been released.
	ErrTicketReleased = errors.New("ticket handle is released")
)
