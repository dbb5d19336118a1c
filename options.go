package leaseticket

import (
	"io"
	"log/slog"
	"time"
)

// options configures store behavior (internal only).
type options struct {
	timeout       time.Duration
	allocRetries  int
	sweepInterval time.Duration
	logger        *slog.Logger
}

// defaultOptions returns sensible defaults.
func defaultOptions() options {
	var timeout = 2 * time.Minute
	return options{
		timeout:       timeout,
		allocRetries:  5,
		sweepInterval: timeout / 2,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Option is a functional option for configuring a store.
type Option func(*options)

// WithTimeout sets the process-wide lease timeout. The timeout is applied
// identically at creation and on every heartbeat; it is never configurable
// per ticket.
// DEFAULT: 2 minutes
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
		o.sweepInterval = timeout / 2
	}
}

// WithAllocRetries sets how many times Create retries allocation after an
// id collision before failing with ErrAllocationExhausted.
// DEFAULT: 5
func WithAllocRetries(retries int) Option {
	return func(o *options) {
		o.allocRetries = retries
	}
}

// WithSweepInterval sets the period of the background Sweeper.
// DEFAULT: half the lease timeout
func WithSweepInterval(interval time.Duration) Option {
	return func(o *options) {
		o.sweepInterval = interval
	}
}

// WithLogger sets the logger for the store and its workers.
// If the logger is nil, a no-op logger is used.
// DEFAULT: A no-op logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			return
		}

		o.logger = logger
	}
}
