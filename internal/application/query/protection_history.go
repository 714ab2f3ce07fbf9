package query

import (
	"context"
	"fmt"

	"github.com/quizhub/streak-engine/internal/domain/protection"
	"github.com/quizhub/streak-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROTECTION HISTORY QUERY
// ══════════════════════════════════════════════════════════════════════════════

const defaultHistoryLimit = 50

// ProtectionHistoryQuery requests a user's protection audit entries.
type ProtectionHistoryQuery struct {
	UserID shared.UserID

	// Limit caps the number of entries (default 50, newest first).
	Limit int
}

// ProtectionHistoryHandler handles the ProtectionHistoryQuery.
type ProtectionHistoryHandler struct {
	log protection.Repository
}

// NewProtectionHistoryHandler creates a new ProtectionHistoryHandler.
func NewProtectionHistoryHandler(log protection.Repository) *ProtectionHistoryHandler {
	return &ProtectionHistoryHandler{log: log}
}

// Handle executes the protection history query.
func (h *ProtectionHistoryHandler) Handle(ctx context.Context, q ProtectionHistoryQuery) ([]protection.Transaction, error) {
	if !q.UserID.IsValid() {
		return nil, fmt.Errorf("protection_history: %w", shared.ErrInvalidUserID)
	}

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = defaultHistoryLimit
	}

	entries, err := h.log.History(ctx, q.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("protection_history: %w", err)
	}
	return entries, nil
}
