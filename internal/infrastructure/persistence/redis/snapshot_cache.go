package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quizhub/streak-engine/internal/application/query"
	"github.com/quizhub/streak-engine/internal/domain/shared"
	"github.com/quizhub/streak-engine/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT CACHE
// ══════════════════════════════════════════════════════════════════════════════

const snapshotKeyPrefix = "streak:snapshot:"

// SnapshotCache is the Redis implementation of query.SnapshotCache.
type SnapshotCache struct {
	cache *Cache
}

// NewSnapshotCache creates a new SnapshotCache.
func NewSnapshotCache(cache *Cache) *SnapshotCache {
	return &SnapshotCache{cache: cache}
}

func snapshotKey(userID shared.UserID) string {
	return fmt.Sprintf("%s%d", snapshotKeyPrefix, userID.Int64())
}

// Get implements query.SnapshotCache. A miss maps to shared.ErrNotFound so
// callers can treat it uniformly with storage misses.
func (c *SnapshotCache) Get(ctx context.Context, userID shared.UserID) (*streak.Snapshot, error) {
	var snap streak.Snapshot
	if err := c.cache.Get(ctx, snapshotKey(userID), &snap); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &snap, nil
}

// Set implements query.SnapshotCache.
func (c *SnapshotCache) Set(ctx context.Context, snapshot streak.Snapshot, ttl time.Duration) error {
	return c.cache.Set(ctx, snapshotKey(snapshot.UserID), snapshot, ttl)
}

// Invalidate implements query.SnapshotCache.
func (c *SnapshotCache) Invalidate(ctx context.Context, userID shared.UserID) error {
	return c.cache.Delete(ctx, snapshotKey(userID))
}

var _ query.SnapshotCache = (*SnapshotCache)(nil)
