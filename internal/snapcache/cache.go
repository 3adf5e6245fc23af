// Package snapcache keeps the latest tree snapshot of each session in Redis
// so any replica can serve it while the session is live.
package snapcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oremus-labs/genui-bridge/internal/redisx"
)

// Cache stores snapshot JSON keyed by session ID. A nil client turns every
// method into a no-op.
type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New returns a cache. ttl of zero keeps entries until overwritten.
func New(client redis.UniversalClient, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

// Enabled reports whether a Redis client is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

func (c *Cache) key(sessionID string) string {
	return redisx.Key(c.prefix, "snapshot", sessionID)
}

// Put stores the snapshot for a session.
func (c *Cache) Put(ctx context.Context, sessionID string, snapshot []byte) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.client.Set(ctx, c.key(sessionID), snapshot, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache snapshot %s: %w", sessionID, err)
	}
	return nil
}

// Get returns the cached snapshot and whether it was present.
func (c *Cache) Get(ctx context.Context, sessionID string) ([]byte, bool, error) {
	if !c.Enabled() {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, c.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot %s: %w", sessionID, err)
	}
	return data, true, nil
}

// Delete removes a session's snapshot.
func (c *Cache) Delete(ctx context.Context, sessionID string) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Del(ctx, c.key(sessionID)).Err()
}
