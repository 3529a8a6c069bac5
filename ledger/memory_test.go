package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/townsquare/mediastore/interfaces"
)

func TestClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	entry, err := l.Claim(ctx, "calendar/events/x.jpg", "file-legacy")
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusInProgress, entry.Status)
	assert.Equal(t, 1, entry.Attempts)
	assert.Equal(t, "file-legacy", entry.SourceBackend)

	require.NoError(t, l.MarkMigrated(ctx, "calendar/events/x.jpg"))

	got, err := l.Get(ctx, "calendar/events/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusMigrated, got.Status)
	assert.False(t, got.CompletedAt.IsZero())
}

// A claimed file may not be claimed again, and a finished file never is.
func TestClaimSingleFlight(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	_, err := l.Claim(ctx, "forum/forum/a.jpg", "file-legacy")
	require.NoError(t, err)

	_, err = l.Claim(ctx, "forum/forum/a.jpg", "pgblob")
	assert.ErrorIs(t, err, interfaces.ErrConflict)

	require.NoError(t, l.MarkMigrated(ctx, "forum/forum/a.jpg"))
	_, err = l.Claim(ctx, "forum/forum/a.jpg", "pgblob")
	assert.ErrorIs(t, err, interfaces.ErrConflict)
}

func TestClaimConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Claim(ctx, "banner/banner-slides/s.png", "file-legacy"); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, interfaces.ErrConflict)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

// A failed file may be retried until its attempt budget is spent.
func TestClaimAttemptBudget(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger().WithPolicy(3, time.Minute)

	for attempt := 1; attempt <= 3; attempt++ {
		entry, err := l.Claim(ctx, "default/photo.jpg", "file-legacy")
		require.NoError(t, err)
		assert.Equal(t, attempt, entry.Attempts)
		require.NoError(t, l.MarkFailed(ctx, "default/photo.jpg", errors.New("source read: boom")))
	}

	_, err := l.Claim(ctx, "default/photo.jpg", "file-legacy")
	assert.ErrorIs(t, err, interfaces.ErrConflict)

	failures, err := l.Failures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "default/photo.jpg", failures[0].FileID)
	assert.Equal(t, 3, failures[0].Attempts)
	assert.Equal(t, "source read: boom", failures[0].LastError)
}

// A crashed run's IN_PROGRESS claim can be taken over once it goes stale.
func TestClaimStaleTakeover(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	l := NewMemoryLedger().
		WithPolicy(3, 15*time.Minute).
		WithClock(func() time.Time { return now })

	_, err := l.Claim(ctx, "listing/real-estate-media/h.jpg", "file-legacy")
	require.NoError(t, err)

	// Fresh claims are protected.
	now = now.Add(5 * time.Minute)
	_, err = l.Claim(ctx, "listing/real-estate-media/h.jpg", "file-legacy")
	assert.ErrorIs(t, err, interfaces.ErrConflict)

	// Past the stale window another run may take over.
	now = now.Add(11 * time.Minute)
	entry, err := l.Claim(ctx, "listing/real-estate-media/h.jpg", "file-legacy")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Attempts)
	assert.Equal(t, interfaces.StatusInProgress, entry.Status)
}

func TestMarkWithoutClaim(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	assert.ErrorIs(t, l.MarkMigrated(ctx, "default/nope.jpg"), interfaces.ErrConflict)
	assert.ErrorIs(t, l.MarkFailed(ctx, "default/nope.jpg", errors.New("x")), interfaces.ErrConflict)

	// Marks apply only to the in-progress state.
	_, err := l.Claim(ctx, "default/a.jpg", "file-legacy")
	require.NoError(t, err)
	require.NoError(t, l.MarkMigrated(ctx, "default/a.jpg"))
	assert.ErrorIs(t, l.MarkFailed(ctx, "default/a.jpg", errors.New("x")), interfaces.ErrConflict)
}

func TestGetMissing(t *testing.T) {
	_, err := NewMemoryLedger().Get(context.Background(), "default/missing.jpg")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	_, err := l.Claim(ctx, "default/a.jpg", "src")
	require.NoError(t, err)
	require.NoError(t, l.MarkMigrated(ctx, "default/a.jpg"))

	_, err = l.Claim(ctx, "default/b.jpg", "src")
	require.NoError(t, err)
	require.NoError(t, l.MarkFailed(ctx, "default/b.jpg", errors.New("boom")))

	_, err = l.Claim(ctx, "default/c.jpg", "src")
	require.NoError(t, err)

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Migrated)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.InProgress)
	assert.Equal(t, 3, stats.Total())
}
