package integration

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteforge-labs/siteforge-backend/internal/builds"
	"github.com/siteforge-labs/siteforge-backend/internal/projects"
)

func TestProjectLifecycle(t *testing.T) {
	pool, db := setupTestDB(t)
	userID := seedUser(t, db)

	ctx := context.Background()
	repo := projects.NewRepo(pool)

	p, err := repo.Create(ctx, userID, "my portfolio")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.PublicID, projects.PublicIDPrefix+"-"), p.PublicID)
	assert.Equal(t, "idle", p.BuildStatus)
	assert.Equal(t, 0, p.LatestVersion)

	got, err := repo.GetByPublicID(ctx, p.PublicID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, userID, got.UserID)

	renamed, err := repo.Rename(ctx, p.ID, "relaunch")
	require.NoError(t, err)
	assert.Equal(t, "relaunch", renamed.Name)

	list, err := repo.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "relaunch", list[0].Name)

	deleted, err := repo.SoftDelete(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	// soft-deleted projects disappear from every read path
	_, err = repo.GetByPublicID(ctx, p.PublicID)
	assert.ErrorIs(t, err, projects.ErrNotFound)

	list, err = repo.List(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, list)

	deleted, err = repo.SoftDelete(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "second delete finds nothing")
}

func TestProjectLatestVersionTracksBuilds(t *testing.T) {
	pool, db := setupTestDB(t)
	userID := seedUser(t, db)

	ctx := context.Background()
	repo := projects.NewRepo(pool)
	ledger := builds.NewRepo(pool)

	p, err := repo.Create(ctx, userID, "versioned")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := ledger.Append(ctx, p.ID, builds.AppendInput{
			Files: map[string]string{"index.html": "x"},
		})
		require.NoError(t, err)
	}

	got, err := repo.GetByPublicID(ctx, p.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.LatestVersion)
}

func TestProjectUnknownPublicID(t *testing.T) {
	pool, _ := setupTestDB(t)

	repo := projects.NewRepo(pool)
	_, err := repo.GetByPublicID(context.Background(), "site-00000-0000")
	assert.ErrorIs(t, err, projects.ErrNotFound)
}
