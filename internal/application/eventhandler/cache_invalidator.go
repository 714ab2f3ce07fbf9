package eventhandler

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/quizhub/streak-engine/internal/application/query"
	"github.com/quizhub/streak-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHE INVALIDATOR
// Subscribed to every event: any committed mutation makes the cached
// snapshot stale, so the entry is dropped and the next read repopulates
// it from storage.
// ══════════════════════════════════════════════════════════════════════════════

// CacheInvalidator drops cached snapshots for aggregates that changed.
type CacheInvalidator struct {
	cache  query.SnapshotCache
	logger *slog.Logger
}

// NewCacheInvalidator creates the invalidator.
func NewCacheInvalidator(cache query.SnapshotCache, logger *slog.Logger) *CacheInvalidator {
	return &CacheInvalidator{
		cache:  cache,
		logger: logger.With(slog.String("component", "cache_invalidator")),
	}
}

// Name implements shared.EventHandler.
func (h *CacheInvalidator) Name() string {
	return "cache_invalidator"
}

// Handle implements shared.EventHandler. Every event's aggregate ID is the
// owning user's ID.
func (h *CacheInvalidator) Handle(ctx context.Context, event shared.Event) error {
	raw, err := strconv.ParseInt(event.AggregateID(), 10, 64)
	if err != nil {
		return nil
	}
	userID, err := shared.NewUserID(raw)
	if err != nil {
		return nil
	}

	if err := h.cache.Invalidate(ctx, userID); err != nil {
		// Stale entries expire on their own; an invalidation miss is not fatal.
		h.logger.Warn("snapshot invalidation failed",
			slog.Int64("user_id", userID.Int64()),
			slog.String("error", err.Error()))
	}
	return nil
}
