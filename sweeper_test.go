package leaseticket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper(t *testing.T) {
	t.Run("should reclaim expired tickets in the background", func(t *testing.T) {
		// Arrange
		var (
			store = NewMemoryStore(WithTimeout(30 * time.Millisecond))
			ctx   = context.Background()
		)
		must(t)(store.Create(ctx, "stale-1"))
		must(t)(store.Create(ctx, "stale-2"))

		var sut = NewSweeper(store, WithSweepInterval(20*time.Millisecond))

		// Act
		sut.Start()
		defer sut.Stop()

		// Assert
		assert.Eventually(t, func() bool {
			tickets, err := store.List(ctx)
			return err == nil && len(tickets) == 0
		}, 2*time.Second, 10*time.Millisecond, "expired tickets should be swept")
	})

	t.Run("should leave live tickets untouched", func(t *testing.T) {
		// Arrange
		var (
			store = NewMemoryStore(WithTimeout(time.Minute))
			ctx   = context.Background()
			held  = must(t)(store.Create(ctx, "held"))
			sut   = NewSweeper(store, WithSweepInterval(10*time.Millisecond))
		)

		// Act
		sut.Start()
		defer sut.Stop()

		time.Sleep(50 * time.Millisecond)

		// Assert
		live, err := store.IsLive(ctx, held.ID())
		require.NoError(t, err)
		assert.True(t, live)
	})

	t.Run("should stop cleanly", func(t *testing.T) {
		// Arrange
		var (
			store = NewMemoryStore()
			sut   = NewSweeper(store, WithSweepInterval(10*time.Millisecond))
		)

		// Act & Assert - no panic, stop is safe after start.
		sut.Start()
		sut.Stop()
	})

	t.Run("should default the interval to half the timeout", func(t *testing.T) {
		// Arrange & Act
		var sut = NewSweeper(NewMemoryStore(), WithTimeout(time.Minute))

		// Assert
		assert.Equal(t, 30*time.Second, sut.interval)
	})
}
