// Package eventhandler contains the domain event handlers. They are the
// reactive part of the system: commands decide and commit, handlers pick
// up the committed events and run side effects such as user-facing
// notifications and cache invalidation.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quizhub/streak-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON MILESTONE ACHIEVED HANDLER
// Announces a reached milestone to the user. The reward itself was already
// credited in the same transaction that recorded the milestone; this
// handler only communicates it.
// ══════════════════════════════════════════════════════════════════════════════

// Notifier delivers a user-facing message. Implementations live in
// infrastructure; delivery transport is outside this service's scope, so
// the default implementation records the intent in the log.
type Notifier interface {
	Notify(ctx context.Context, userID shared.UserID, kind, message string) error
}

// OnMilestoneAchievedHandler reacts to milestone.achieved events.
type OnMilestoneAchievedHandler struct {
	notifier Notifier
	logger   *slog.Logger
}

// NewOnMilestoneAchievedHandler creates the handler.
func NewOnMilestoneAchievedHandler(notifier Notifier, logger *slog.Logger) *OnMilestoneAchievedHandler {
	return &OnMilestoneAchievedHandler{
		notifier: notifier,
		logger:   logger.With(slog.String("component", "on_milestone_achieved")),
	}
}

// Name implements shared.EventHandler.
func (h *OnMilestoneAchievedHandler) Name() string {
	return "on_milestone_achieved"
}

// Handle implements shared.EventHandler.
func (h *OnMilestoneAchievedHandler) Handle(ctx context.Context, event shared.Event) error {
	e, ok := event.(shared.MilestoneAchievedEvent)
	if !ok {
		return nil
	}

	userID, err := shared.NewUserID(e.UserID)
	if err != nil {
		return fmt.Errorf("on_milestone_achieved: %w", err)
	}

	msg := fmt.Sprintf("milestone reached: %s streak of %d (reward: %s)",
		e.MilestoneType, e.Value, e.Reward)

	if err := h.notifier.Notify(ctx, userID, "milestone", msg); err != nil {
		h.logger.Warn("milestone notification failed",
			slog.Int64("user_id", userID.Int64()),
			slog.String("error", err.Error()))
		return err
	}

	h.logger.Info("milestone announced",
		slog.Int64("user_id", userID.Int64()),
		slog.String("milestone_type", e.MilestoneType),
		slog.Int("value", e.Value))
	return nil
}
