package query

import (
	"context"
	"fmt"

	"github.com/quizhub/streak-engine/internal/domain/milestone"
	"github.com/quizhub/streak-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MILESTONES QUERY
// ══════════════════════════════════════════════════════════════════════════════

// MilestonesQuery requests the milestones a user has reached.
type MilestonesQuery struct {
	UserID shared.UserID
}

// MilestonesHandler handles the MilestonesQuery.
type MilestonesHandler struct {
	milestones milestone.Repository
}

// NewMilestonesHandler creates a new MilestonesHandler.
func NewMilestonesHandler(milestones milestone.Repository) *MilestonesHandler {
	return &MilestonesHandler{milestones: milestones}
}

// Handle executes the milestones query, newest first.
func (h *MilestonesHandler) Handle(ctx context.Context, q MilestonesQuery) ([]milestone.Record, error) {
	if !q.UserID.IsValid() {
		return nil, fmt.Errorf("milestones: %w", shared.ErrInvalidUserID)
	}

	records, err := h.milestones.List(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("milestones: %w", err)
	}
	return records, nil
}
