package leaseticket

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically deletes tickets past expiry so their identifiers
// become reusable before the allocator wraps back to them. Sweeping is not
// required for correctness: stale records are already ignored by IsLive.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
}

// NewSweeper creates a sweeper for the given store. The sweep interval and
// logger come from the options; the interval defaults to half the lease
// timeout.
func NewSweeper(store Store, opts ...Option) *Sweeper {
	var options = defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Sweeper{
		store:    store,
		interval: options.sweepInterval,
		logger:   options.logger,
	}
}

// Start begins the background sweep loop. The worker runs with its own
// context so it continues independently of the caller's; it is stopped via
// Stop.
func (s *Sweeper) Start() {
	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())

	go s.sweepWorker(ctx)
}

// Stop cancels the background sweep loop.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// sweepWorker runs one sweep immediately, then periodically.
func (s *Sweeper) sweepWorker(ctx context.Context) {
	var ticker = time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	var expired, err = s.store.Sweep(ctx)
	if err != nil {
		s.logger.Error("failed to sweep expired tickets", "error", err)
		return
	}

	for _, ticket := range expired {
		s.logger.Info("reclaimed expired ticket",
			"id", ticket.ID,
			"title", ticket.Title,
			"expiry", ticket.Expiry,
			"refresh_count", ticket.RefreshCount)
	}
}
