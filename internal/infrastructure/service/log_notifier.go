// Package service contains outbound adapters for side effects that leave
// the streak engine, such as user notifications.
package service

import (
	"context"
	"log/slog"

	"github.com/quizhub/streak-engine/internal/application/eventhandler"
	"github.com/quizhub/streak-engine/internal/domain/shared"
)

// LogNotifier records notification intents in the structured log. Actual
// delivery (push, messenger, email) belongs to a downstream system that
// consumes these records; the engine only decides WHAT to say and WHEN.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With(slog.String("component", "notifier"))}
}

// Notify implements eventhandler.Notifier.
func (n *LogNotifier) Notify(_ context.Context, userID shared.UserID, kind, message string) error {
	n.logger.Info("notification intent",
		slog.Int64("user_id", userID.Int64()),
		slog.String("kind", kind),
		slog.String("message", message))
	return nil
}

var _ eventhandler.Notifier = (*LogNotifier)(nil)
