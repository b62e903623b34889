package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteforge-labs/siteforge-backend/internal/locks"
)

func TestLockLifecycle(t *testing.T) {
	pool, db := setupTestDB(t)
	userID := seedUser(t, db)
	projectID, _ := seedProject(t, db, userID)

	ctx := context.Background()
	mgr := locks.NewManager(pool, locks.Options{})

	require.NoError(t, mgr.Acquire(ctx, projectID, userID))
	assert.Equal(t, "processing", projectStatus(t, db, projectID))

	// second claim loses while the flag is held
	err := mgr.Acquire(ctx, projectID, userID)
	assert.ErrorIs(t, err, locks.ErrConflict)

	require.NoError(t, mgr.Release(ctx, projectID))
	assert.Equal(t, "idle", projectStatus(t, db, projectID))

	// and wins again once it is free
	require.NoError(t, mgr.Acquire(ctx, projectID, userID))
	require.NoError(t, mgr.Release(ctx, projectID))
}

func TestLockConcurrentAcquire(t *testing.T) {
	pool, db := setupTestDB(t)
	userID := seedUser(t, db)
	projectID, _ := seedProject(t, db, userID)

	ctx := context.Background()
	mgr := locks.NewManager(pool, locks.Options{})

	const claimants = 16
	var wg sync.WaitGroup
	results := make(chan error, claimants)

	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- mgr.Acquire(ctx, projectID, userID)
		}()
	}
	wg.Wait()
	close(results)

	won, lost := 0, 0
	for err := range results {
		switch {
		case err == nil:
			won++
		case assert.ErrorIs(t, err, locks.ErrConflict):
			lost++
		}
	}

	assert.Equal(t, 1, won, "exactly one claimant may win")
	assert.Equal(t, claimants-1, lost)

	require.NoError(t, mgr.Release(ctx, projectID))
}

func TestStaleLockRecovery(t *testing.T) {
	pool, db := setupTestDB(t)
	userID := seedUser(t, db)
	projectID, _ := seedProject(t, db, userID)

	ctx := context.Background()
	mgr := locks.NewManager(pool, locks.Options{})

	require.NoError(t, mgr.Acquire(ctx, projectID, userID))

	// backdate the claim as if its holder crashed half an hour ago
	_, err := db.Exec(`
		UPDATE projects SET locked_at = now() - interval '30 minutes'
		WHERE id = $1::uuid
	`, projectID)
	require.NoError(t, err)

	n, err := mgr.ReleaseStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	assert.Equal(t, "idle", projectStatus(t, db, projectID))
	require.NoError(t, mgr.Acquire(ctx, projectID, userID))
	require.NoError(t, mgr.Release(ctx, projectID))
}

func TestStaleSweepSparesFreshLocks(t *testing.T) {
	pool, db := setupTestDB(t)
	userID := seedUser(t, db)
	projectID, _ := seedProject(t, db, userID)

	ctx := context.Background()
	mgr := locks.NewManager(pool, locks.Options{})

	require.NoError(t, mgr.Acquire(ctx, projectID, userID))

	_, err := mgr.ReleaseStale(ctx, 10*time.Minute)
	require.NoError(t, err)

	// a live build keeps its flag
	assert.Equal(t, "processing", projectStatus(t, db, projectID))
	require.NoError(t, mgr.Release(ctx, projectID))
}
