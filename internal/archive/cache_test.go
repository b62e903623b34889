package archive

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(client, ttl), mr
}

func TestCache_RoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	data := []byte("zip-bytes")
	require.NoError(t, cache.Put(ctx, "proj-1", 3, data))

	got, ok, err := cache.Get(ctx, "proj-1", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, data, got)
}

func TestCache_Miss(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)

	got, ok, err := cache.Get(context.Background(), "proj-1", 99)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestCache_VersionsAreIndependent(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "proj-1", 1, []byte("v1")))
	require.NoError(t, cache.Put(ctx, "proj-1", 2, []byte("v2")))

	got, ok, err := cache.Get(ctx, "proj-1", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	got, ok, err = cache.Get(ctx, "proj-1", 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), got)
}

func TestCache_Expires(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "proj-1", 1, []byte("v1")))

	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, "proj-1", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
