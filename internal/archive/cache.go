package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	artifactKeyPrefix = "site:artifact:" // site:artifact:{project_id}:{version}
)

// Cache keeps packaged archives in Redis so repeat downloads of the
// same version do not re-zip the build.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached archive bytes, or ok=false on a miss.
func (c *Cache) Get(ctx context.Context, projectID string, version int) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.key(projectID, version)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached artifact: %w", err)
	}
	return data, true, nil
}

// Put stores the archive under the project/version key with the
// configured TTL. Builds are immutable so the value never needs
// invalidation, only expiry.
func (c *Cache) Put(ctx context.Context, projectID string, version int, data []byte) error {
	if err := c.client.Set(ctx, c.key(projectID, version), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache artifact: %w", err)
	}
	return nil
}

func (c *Cache) key(projectID string, version int) string {
	return fmt.Sprintf("%s%s:%d", artifactKeyPrefix, projectID, version)
}
