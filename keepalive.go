package leaseticket

import (
	"context"
	"time"
)

// Keepalive heartbeats the handle on a ticker until ctx is done, keeping
// the claim alive for as long as the process stays healthy. One heartbeat
// is issued immediately so problems surface up front. On heartbeat failure
// the error is delivered on the returned channel and the loop stops: the
// handle is typically lost at that point and the caller must abandon the
// protected operation. The channel is closed when the loop exits.
//
// An interval of zero defaults to a third of the store's timeout. The
// interval must be comfortably shorter than the lease timeout; there is no
// grace period, so a single missed window lapses the claim.
func Keepalive(ctx context.Context, handle *Handle, interval time.Duration) <-chan error {
	var errChan = make(chan error, 1)

	if interval <= 0 {
		interval = handle.store.Timeout() / 3
	}

	go func() {
		defer close(errChan)

		if err := handle.Heartbeat(ctx); err != nil {
			errChan <- err
			return
		}

		var ticker = time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := handle.Heartbeat(ctx); err != nil {
					errChan <- err
					return
				}
			}
		}
	}()

	return errChan
}
