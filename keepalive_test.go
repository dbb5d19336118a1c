package leaseticket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeepalive(t *testing.T) {
	t.Run("should keep the ticket alive past its timeout", func(t *testing.T) {
		// Arrange
		var (
			store = NewMemoryStore(WithTimeout(200 * time.Millisecond))
			ctx, cancel = context.WithCancel(context.Background())
			sut   = must(t)(store.Create(ctx, "long-job"))
		)
		defer cancel()

		// Act
		var errCh = Keepalive(ctx, sut, 50*time.Millisecond)

		// Assert - well past the original timeout the claim is still live.
		assert.Eventually(t, func() bool {
			return sut.RefreshCount() >= 5
		}, 2*time.Second, 10*time.Millisecond, "keepalive should heartbeat repeatedly")

		live, err := store.IsLive(ctx, sut.ID())
		require.NoError(t, err)
		assert.True(t, live)

		select {
		case err := <-errCh:
			t.Fatalf("unexpected keepalive error: %v", err)
		default:
		}
	})

	t.Run("should stop and close the channel on cancellation", func(t *testing.T) {
		// Arrange
		var (
			store       = NewMemoryStore(WithTimeout(time.Minute))
			ctx, cancel = context.WithCancel(context.Background())
			sut         = must(t)(store.Create(ctx, "job"))
			errCh       = Keepalive(ctx, sut, 20*time.Millisecond)
		)

		// Act
		cancel()

		// Assert
		select {
		case err, ok := <-errCh:
			assert.False(t, ok, "channel should close without an error, got %v", err)
		case <-time.After(2 * time.Second):
			t.Fatal("keepalive did not stop after cancellation")
		}
	})

	t.Run("should report loss when the ticket is released out of band", func(t *testing.T) {
		// Arrange
		var (
			store = NewMemoryStore(WithTimeout(time.Minute))
			ctx   = context.Background()
			sut   = must(t)(store.Create(ctx, "job"))
			errCh = Keepalive(ctx, sut, 20*time.Millisecond)
		)

		// Act
		require.NoError(t, store.Release(ctx, sut.ID()))

		// Assert
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, ErrNotFound)
			assert.Equal(t, StateLost, sut.State())
		case <-time.After(2 * time.Second):
			t.Fatal("keepalive did not report the lost ticket")
		}
	})

	t.Run("should default the interval to a third of the store timeout", func(t *testing.T) {
		// Arrange
		var (
			store       = NewMemoryStore(WithTimeout(150 * time.Millisecond))
			ctx, cancel = context.WithCancel(context.Background())
			sut         = must(t)(store.Create(ctx, "job"))
		)
		defer cancel()

		// Act - zero interval picks timeout/3 (50ms), short enough to
		// outlive the 150ms timeout.
		_ = Keepalive(ctx, sut, 0)

		// Assert
		assert.Eventually(t, func() bool {
			return sut.RefreshCount() >= 3
		}, 2*time.Second, 10*time.Millisecond)
	})
}
