// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/quizhub/streak-engine/internal/domain/shared"
	"github.com/quizhub/streak-engine/internal/domain/streak"
	"github.com/quizhub/streak-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT QUERY
// Returns the full display view of a user's streaks: counters, level,
// risk state, inventory, and an open repair offer if one exists.
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotCache is a read-through cache for snapshots. Mutating commands
// invalidate entries through the same interface.
type SnapshotCache interface {
	Get(ctx context.Context, userID shared.UserID) (*streak.Snapshot, error)
	Set(ctx context.Context, snapshot streak.Snapshot, ttl time.Duration) error
	Invalidate(ctx context.Context, userID shared.UserID) error
}

// SnapshotQuery requests a user's streak snapshot.
type SnapshotQuery struct {
	UserID shared.UserID
}

// SnapshotHandler handles the SnapshotQuery.
type SnapshotHandler struct {
	ledgers streak.Repository
	cache   SnapshotCache
	ttl     time.Duration
	log     *logger.Logger
}

// NewSnapshotHandler creates a new SnapshotHandler. cache may be nil, in
// which case every read hits storage.
func NewSnapshotHandler(ledgers streak.Repository, cache SnapshotCache, ttl time.Duration, log *logger.Logger) *SnapshotHandler {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SnapshotHandler{
		ledgers: ledgers,
		cache:   cache,
		ttl:     ttl,
		log:     log.With(logger.String("handler", "snapshot")),
	}
}

// Handle executes the snapshot query.
//
// A user with no ledger yet gets a zero-value snapshot rather than an
// error: from the product's point of view they simply have no streak.
func (h *SnapshotHandler) Handle(ctx context.Context, q SnapshotQuery) (*streak.Snapshot, error) {
	if !q.UserID.IsValid() {
		return nil, fmt.Errorf("snapshot: %w", shared.ErrInvalidUserID)
	}

	if h.cache != nil {
		if snap, err := h.cache.Get(ctx, q.UserID); err == nil && snap != nil {
			return snap, nil
		} else if err != nil && !shared.IsNotFound(err) {
			// Cache trouble must not break reads.
			h.log.Warn("snapshot cache read failed",
				logger.Int64("user_id", q.UserID.Int64()),
				logger.Err(err))
		}
	}

	ledger, err := h.ledgers.Get(ctx, q.UserID)
	if err != nil {
		if shared.IsNotFound(err) {
			fresh := streak.EmptySnapshot(q.UserID)
			return &fresh, nil
		}
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	snap := ledger.Snapshot()
	if h.cache != nil {
		if err := h.cache.Set(ctx, snap, h.ttl); err != nil {
			h.log.Warn("snapshot cache write failed",
				logger.Int64("user_id", q.UserID.Int64()),
				logger.Err(err))
		}
	}
	return &snap, nil
}
