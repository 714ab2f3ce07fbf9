package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quizhub/streak-engine/internal/domain/shared"
	"github.com/quizhub/streak-engine/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON STATE CHANGED HANDLER
// Turns risk state transitions into user-facing reminders. Which
// transitions remind is a product decision: escalations warn, the
// recoverable transition offers a repair, and the return to active stays
// silent.
// ══════════════════════════════════════════════════════════════════════════════

// OnStateChangedHandler reacts to streak.state_changed events.
type OnStateChangedHandler struct {
	notifier Notifier
	logger   *slog.Logger
}

// NewOnStateChangedHandler creates the handler.
func NewOnStateChangedHandler(notifier Notifier, logger *slog.Logger) *OnStateChangedHandler {
	return &OnStateChangedHandler{
		notifier: notifier,
		logger:   logger.With(slog.String("component", "on_state_changed")),
	}
}

// Name implements shared.EventHandler.
func (h *OnStateChangedHandler) Name() string {
	return "on_state_changed"
}

// Handle implements shared.EventHandler.
func (h *OnStateChangedHandler) Handle(ctx context.Context, event shared.Event) error {
	e, ok := event.(shared.StateChangedEvent)
	if !ok {
		return nil
	}

	userID, err := shared.NewUserID(e.UserID)
	if err != nil {
		return fmt.Errorf("on_state_changed: %w", err)
	}

	var kind, msg string
	switch streak.State(e.NewState) {
	case streak.StateAtRisk:
		kind = "streak_at_risk"
		msg = fmt.Sprintf("your %d-day streak expires in about 6 hours", e.Current)
	case streak.StateCritical:
		kind = "streak_critical"
		msg = fmt.Sprintf("last call: your %d-day streak expires in under 2 hours", e.Current)
	case streak.StateRecoverable:
		kind = "streak_recoverable"
		msg = "your streak broke, but you can still repair it within 48 hours"
	default:
		// Transitions back to active need no reminder.
		return nil
	}

	if err := h.notifier.Notify(ctx, userID, kind, msg); err != nil {
		h.logger.Warn("state change notification failed",
			slog.Int64("user_id", userID.Int64()),
			slog.String("new_state", e.NewState),
			slog.String("error", err.Error()))
		return err
	}

	h.logger.Debug("state change announced",
		slog.Int64("user_id", userID.Int64()),
		slog.String("old_state", e.OldState),
		slog.String("new_state", e.NewState))
	return nil
}
