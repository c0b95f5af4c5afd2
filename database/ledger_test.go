package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"resumable-upload/model"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledgerFactory func(t *testing.T) Ledger

func ledgerFactories() map[string]ledgerFactory {
	return map[string]ledgerFactory{
		"sqlite": func(t *testing.T) Ledger {
			dsn := filepath.Join(t.TempDir(), "ledger.db")
			l, err := NewGormLedger(DBTypeSQLite, &GormConfig{DSN: dsn})
			require.NoError(t, err)
			t.Cleanup(func() { l.Close() })
			return l
		},
		"pebble": func(t *testing.T) Ledger {
			l, err := NewPebbleLedger(&PebbleConfig{DataDir: "mem", FS: vfs.NewMem()})
			require.NoError(t, err)
			t.Cleanup(func() { l.Close() })
			return l
		},
	}
}

func newSession(id string, totalChunks int) *model.UploadSession {
	return &model.UploadSession{
		SessionId:   id,
		FileName:    "archive.tar.gz",
		TotalSize:   int64(totalChunks) * 10,
		ChunkSize:   10,
		TotalChunks: totalChunks,
	}
}

func forEachLedger(t *testing.T, fn func(t *testing.T, l Ledger)) {
	for name, factory := range ledgerFactories() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func TestCreateOrGetSessionIsIdempotent(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l Ledger) {
		ctx := context.Background()

		created, received, err := l.CreateOrGetSession(ctx, newSession("s1", 5))
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusUploading, created.Status)
		assert.Empty(t, received)

		pending, err := l.CountPending(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 5, pending)

		for _, idx := range []int{2, 0, 1} {
			ok, err := l.MarkChunkReceived(ctx, "s1", idx)
			require.NoError(t, err)
			assert.True(t, ok)
		}

		again, received, err := l.CreateOrGetSession(ctx, newSession("s1", 5))
		require.NoError(t, err)
		assert.Equal(t, "s1", again.SessionId)
		assert.Equal(t, []int{0, 1, 2}, received)

		ids, err := l.ListSessionIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"s1"}, ids)

		_, _, err = l.CreateOrGetSession(ctx, newSession("s1", 6))
		assert.ErrorIs(t, err, ErrSessionMismatch)
	})
}

func TestCreateOrGetSessionKeepsExistingLayout(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l Ledger) {
		ctx := context.Background()
		_, _, err := l.CreateOrGetSession(ctx, newSession("s1", 4))
		require.NoError(t, err)
		_, err = l.MarkChunkReceived(ctx, "s1", 3)
		require.NoError(t, err)

		// Same 40-byte file, handshaked again with 20-byte chunks
		other := &model.UploadSession{SessionId: "s1", FileName: "archive.tar.gz", TotalSize: 40, ChunkSize: 20, TotalChunks: 2}
		current, received, err := l.CreateOrGetSession(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, int64(10), current.ChunkSize)
		assert.Equal(t, 4, current.TotalChunks)
		assert.Equal(t, []int{3}, received)

		pending, err := l.CountPending(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 3, pending)
	})
}

func TestMarkChunkReceivedTransitionsOnce(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l Ledger) {
		ctx := context.Background()
		_, _, err := l.CreateOrGetSession(ctx, newSession("s1", 3))
		require.NoError(t, err)

		first, err := l.MarkChunkReceived(ctx, "s1", 1)
		require.NoError(t, err)
		second, err := l.MarkChunkReceived(ctx, "s1", 1)
		require.NoError(t, err)
		assert.True(t, first)
		assert.False(t, second)

		pending, err := l.CountPending(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 2, pending)

		_, err = l.MarkChunkReceived(ctx, "s1", 3)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = l.MarkChunkReceived(ctx, "missing", 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMarkChunkReceivedConcurrentDuplicates(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l Ledger) {
		ctx := context.Background()
		_, _, err := l.CreateOrGetSession(ctx, newSession("s1", 2))
		require.NoError(t, err)

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := l.MarkChunkReceived(ctx, "s1", 0)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

func TestTransitionStatusCompareAndSwap(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l Ledger) {
		ctx := context.Background()
		_, _, err := l.CreateOrGetSession(ctx, newSession("s1", 1))
		require.NoError(t, err)

		ok, err := l.TransitionStatus(ctx, "s1", model.SessionStatusUploading, model.SessionStatusProcessing)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = l.TransitionStatus(ctx, "s1", model.SessionStatusUploading, model.SessionStatusProcessing)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = l.TransitionStatus(ctx, "s1", model.SessionStatusUploading, model.SessionStatusCompleted)
		assert.ErrorIs(t, err, ErrIllegalTransition)

		_, err = l.TransitionStatus(ctx, "missing", model.SessionStatusUploading, model.SessionStatusProcessing)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestConcurrentTransitionHasOneWinner(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l Ledger) {
		ctx := context.Background()
		_, _, err := l.CreateOrGetSession(ctx, newSession("s1", 1))
		require.NoError(t, err)

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := l.TransitionStatus(ctx, "s1", model.SessionStatusUploading, model.SessionStatusProcessing)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

func TestCompleteAndFailSession(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l Ledger) {
		ctx := context.Background()
		_, _, err := l.CreateOrGetSession(ctx, newSession("done", 1))
		require.NoError(t, err)
		_, _, err = l.CreateOrGetSession(ctx, newSession("broken", 1))
		require.NoError(t, err)

		assert.ErrorIs(t, l.CompleteSession(ctx, "done", "abc", nil, "/x"), ErrStatusMismatch)

		for _, id := range []string{"done", "broken"} {
			ok, err := l.TransitionStatus(ctx, id, model.SessionStatusUploading, model.SessionStatusProcessing)
			require.NoError(t, err)
			require.True(t, ok)
		}

		require.NoError(t, l.CompleteSession(ctx, "done", "abc", []string{"a.txt", "b/"}, "/files/done/archive.tar.gz"))
		require.NoError(t, l.FailSession(ctx, "broken", "hash: read error"))

		done, err := l.GetSession(ctx, "done")
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusCompleted, done.Status)
		assert.Equal(t, "abc", done.FinalHash)
		assert.Equal(t, []string{"a.txt", "b/"}, done.ContentListing)
		assert.Equal(t, "/files/done/archive.tar.gz", done.PublishedPath)

		broken, err := l.GetSession(ctx, "broken")
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusFailed, broken.Status)
		assert.Equal(t, "hash: read error", broken.FailureReason)

		ok, err := l.TransitionStatus(ctx, "broken", model.SessionStatusFailed, model.SessionStatusUploading)
		require.NoError(t, err)
		assert.True(t, ok)
		reset, err := l.GetSession(ctx, "broken")
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusUploading, reset.Status)
		assert.Empty(t, reset.FailureReason)
	})
}

func TestListStaleAndDelete(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l Ledger) {
		ctx := context.Background()
		for _, id := range []string{"active", "done"} {
			_, _, err := l.CreateOrGetSession(ctx, newSession(id, 1))
			require.NoError(t, err)
		}
		_, err := l.TransitionStatus(ctx, "done", model.SessionStatusUploading, model.SessionStatusProcessing)
		require.NoError(t, err)
		require.NoError(t, l.CompleteSession(ctx, "done", "h", nil, "/p"))

		stale, err := l.ListStale(ctx, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, "active", stale[0].SessionId)

		none, err := l.ListStale(ctx, time.Now().Add(-time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, none)

		assert.ErrorIs(t, l.DeleteSession(ctx, "done"), ErrSessionCompleted)
		require.NoError(t, l.DeleteSession(ctx, "active"))
		assert.ErrorIs(t, l.DeleteSession(ctx, "active"), ErrNotFound)

		_, err = l.GetSession(ctx, "active")
		assert.ErrorIs(t, err, ErrNotFound)
		pending, err := l.CountPending(ctx, "active")
		require.NoError(t, err)
		assert.Zero(t, pending)

		_, err = l.GetSession(ctx, "done")
		assert.NoError(t, err)
		require.NoError(t, l.Ping(ctx))
	})
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("c/abc0"), prefixUpperBound([]byte("c/abc/")))
	assert.Equal(t, []byte("t"), prefixUpperBound([]byte("s")))
	assert.Nil(t, prefixUpperBound([]byte{0xff, 0xff}))
}
