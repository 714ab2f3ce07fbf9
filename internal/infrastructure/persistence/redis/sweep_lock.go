package redis

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP LOCK
// A best-effort distributed lock: only one worker instance runs the state
// sweep at a time. The TTL releases the lock if the holder dies; the
// holder value prevents a release from clobbering a newer acquisition.
// ══════════════════════════════════════════════════════════════════════════════

const sweepLockKey = "streak:lock:state_sweep"

// SweepLock guards the periodic state sweep across instances.
type SweepLock struct {
	cache  *Cache
	holder string
	ttl    time.Duration
}

// NewSweepLock creates a lock with a per-instance holder identity.
func NewSweepLock(cache *Cache, holder string, ttl time.Duration) *SweepLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SweepLock{cache: cache, holder: holder, ttl: ttl}
}

// TryAcquire attempts to take the lock without blocking.
func (l *SweepLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.cache.SetNX(ctx, sweepLockKey, l.holder, l.ttl)
}

// Release frees the lock if this instance still holds it.
func (l *SweepLock) Release(ctx context.Context) error {
	// Compare-and-delete in one round trip so an expired lock taken over
	// by another instance is not released from under it.
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0`
	return l.cache.Client().Eval(ctx, script, []string{sweepLockKey}, l.holder).Err()
}
