package leaseticket

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"go-leaseticket/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration(t *testing.T) {
	const testTablePrefix = "test_tickets"

	var (
		newDb = func(t *testing.T) *sql.DB {
			return database.SetupTestDatabase(t)
		}
		newCtx = func() context.Context {
			return context.Background()
		}
		newStore = func(t *testing.T, db *sql.DB, opts ...Option) *PostgresStore {
			store, err := Open(db, testTablePrefix, opts...)
			require.NoError(t, err)
			return store
		}
	)

	t.Run("should run the full lifecycle: create, heartbeat, release", func(t *testing.T) {
		t.Parallel()

		var (
			db  = newDb(t)
			ctx = newCtx()
			sut = newStore(t, db, WithTimeout(2*time.Minute))
		)

		// Create
		handle, err := sut.Create(ctx, "nightly-export")
		require.NoError(t, err)
		assert.Equal(t, 0, handle.RefreshCount())
		assert.WithinDuration(t, handle.Creation().Add(2*time.Minute), handle.Expiry(), time.Second)

		live, err := sut.IsLive(ctx, handle.ID())
		require.NoError(t, err)
		assert.True(t, live)

		// Heartbeat
		var expiryBefore = handle.Expiry()
		require.NoError(t, handle.Heartbeat(ctx))
		assert.Equal(t, 1, handle.RefreshCount())
		assert.False(t, handle.Expiry().Before(expiryBefore))

		// Release
		require.NoError(t, handle.Release(ctx))
		live, err = sut.IsLive(ctx, handle.ID())
		require.NoError(t, err)
		assert.False(t, live)

		_, err = sut.Heartbeat(ctx, handle.ID())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should lapse without heartbeats and be sweepable", func(t *testing.T) {
		t.Parallel()

		var (
			db  = newDb(t)
			ctx = newCtx()
			sut = newStore(t, db, WithTimeout(500*time.Millisecond))
		)

		handle, err := sut.Create(ctx, "short-lived")
		require.NoError(t, err)

		// No heartbeat issued; the claim lapses on its own.
		assert.Eventually(t, func() bool {
			live, liveErr := sut.IsLive(ctx, handle.ID())
			return liveErr == nil && !live
		}, 5*time.Second, 50*time.Millisecond, "claim should lapse once expiry passes")

		swept, err := sut.Sweep(ctx)
		require.NoError(t, err)
		require.Len(t, swept, 1)
		assert.Equal(t, handle.ID(), swept[0].ID)
	})

	t.Run("should allocate distinct ids for concurrent creates", func(t *testing.T) {
		t.Parallel()

		var (
			db    = newDb(t)
			ctx   = newCtx()
			sut   = newStore(t, db)
			count = 10
			ids   = make(chan int32, count)
			wg    sync.WaitGroup
		)

		for i := 0; i < count; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				handle, err := sut.Create(ctx, "contender")
				if !assert.NoError(t, err) {
					return
				}
				ids <- handle.ID()
			}()
		}
		wg.Wait()
		close(ids)

		var seen = make(map[int32]bool)
		for id := range ids {
			assert.False(t, seen[id], "id %d allocated twice", id)
			seen[id] = true
		}
		assert.Len(t, seen, count)
	})

	t.Run("should retry allocation when the sequence revisits a live id", func(t *testing.T) {
		t.Parallel()

		var (
			db  = newDb(t)
			ctx = newCtx()
			sut = newStore(t, db, WithTimeout(2*time.Minute))
		)

		occupant, err := sut.Create(ctx, "occupant")
		require.NoError(t, err)

		// Force the sequence to hand out the occupant's id again.
		_, err = db.Exec("SELECT setval('"+testTablePrefix+"_tickets_id_seq', $1, false)", occupant.ID())
		require.NoError(t, err)

		// The collision is absorbed by the internal retry; the newcomer
		// simply gets the next id.
		newcomer, err := sut.Create(ctx, "newcomer")
		require.NoError(t, err)
		assert.NotEqual(t, occupant.ID(), newcomer.ID())
	})

	t.Run("should run work exclusively under a heartbeating transaction", func(t *testing.T) {
		t.Parallel()

		var (
			db  = newDb(t)
			ctx = newCtx()
			sut = newStore(t, db, WithTimeout(2*time.Minute))
		)

		handle, err := sut.Create(ctx, "report")
		require.NoError(t, err)

		var ran = false
		err = sut.Exclusively(ctx, handle.ID(), func(tx *sql.Tx) error {
			ran = true
			var one int
			return tx.QueryRowContext(ctx, "SELECT 1").Scan(&one)
		})
		require.NoError(t, err)
		assert.True(t, ran)

		// The guarded transaction heartbeats the ticket.
		ticket, err := sut.Heartbeat(ctx, handle.ID())
		require.NoError(t, err)
		assert.Equal(t, 2, ticket.RefreshCount)
	})

	t.Run("should refuse exclusive work for a released ticket", func(t *testing.T) {
		t.Parallel()

		var (
			db  = newDb(t)
			ctx = newCtx()
			sut = newStore(t, db)
		)

		handle, err := sut.Create(ctx, "report")
		require.NoError(t, err)
		require.NoError(t, handle.Release(ctx))

		var ran = false
		err = sut.Exclusively(ctx, handle.ID(), func(tx *sql.Tx) error {
			ran = true
			return nil
		})

		assert.ErrorIs(t, err, ErrNotFound)
		assert.False(t, ran, "fn must not run when the claim is gone")
	})

	t.Run("should reject an invalid table prefix", func(t *testing.T) {
		t.Parallel()

		var db = newDb(t)

		var _, err = Open(db, "Bad-Prefix")
		assert.ErrorIs(t, err, ErrInvalidTablePrefix)
	})
}
