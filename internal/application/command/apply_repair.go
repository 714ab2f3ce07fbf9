package command

import (
	"context"
	"fmt"
	"time"

	"github.com/quizhub/streak-engine/internal/domain/protection"
	"github.com/quizhub/streak-engine/internal/domain/shared"
	"github.com/quizhub/streak-engine/internal/domain/streak"
	"github.com/quizhub/streak-engine/pkg/logger"
	"github.com/quizhub/streak-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLY REPAIR COMMAND
// Restores a lost daily streak after a confirmed repair purchase. Only
// valid inside the repair window; restores the pre-loss value and returns
// the ledger to the active state.
// ══════════════════════════════════════════════════════════════════════════════

// ApplyRepairCommand contains the data for a confirmed repair purchase.
type ApplyRepairCommand struct {
	// UserID is the ID of the user repairing their streak.
	UserID shared.UserID

	// AmountPaid is the confirmed payment total. The expected price depends
	// on the lost streak's length; a mismatch is logged but not rejected,
	// since payment was already settled upstream.
	AmountPaid shared.Price

	// OccurredAt is when the purchase was confirmed (defaults to now if zero).
	OccurredAt time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ApplyRepairCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	if c.AmountPaid < 0 {
		return shared.ErrInvalidQuantity
	}
	return nil
}

// ApplyRepairResult contains the result of a streak repair.
type ApplyRepairResult struct {
	Snapshot streak.Snapshot

	// Restored is the streak value brought back.
	Restored int

	// Price is the tabulated repair price for the restored value.
	Price shared.Price
}

// ApplyRepairHandler handles the ApplyRepairCommand.
type ApplyRepairHandler struct {
	ledgers streak.Repository
	events  shared.EventPublisher
	retrier *retry.Retrier
	log     *logger.Logger
}

// NewApplyRepairHandler creates a new ApplyRepairHandler.
func NewApplyRepairHandler(
	ledgers streak.Repository,
	events shared.EventPublisher,
	log *logger.Logger,
) *ApplyRepairHandler {
	return &ApplyRepairHandler{
		ledgers: ledgers,
		events:  events,
		retrier: retry.StorageRetrier(),
		log:     log.With(logger.String("handler", "apply_repair")),
	}
}

// Handle executes the apply repair command.
//
// Returns shared.ErrNoLostStreak when there is nothing to repair and
// shared.ErrRepairWindowOver when the window has closed.
func (h *ApplyRepairHandler) Handle(ctx context.Context, cmd ApplyRepairCommand) (*ApplyRepairResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("apply_repair: %w", err)
	}

	now := cmd.OccurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result *ApplyRepairResult

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		outcome, err := h.ledgers.Mutate(ctx, cmd.UserID, func(l *streak.Ledger) (*streak.Mutation, error) {
			price := protection.RepairPriceFor(l.LostStreakValue)

			restored, err := l.ApplyRepair(now)
			if err != nil {
				return nil, err
			}

			if cmd.AmountPaid != 0 && cmd.AmountPaid != price {
				h.log.Warn("repair price mismatch",
					logger.Int64("user_id", cmd.UserID.Int64()),
					logger.Int64("paid", int64(cmd.AmountPaid)),
					logger.Int64("expected", int64(price)))
			}

			result = &ApplyRepairResult{Restored: restored, Price: price}
			return &streak.Mutation{
				Log: []protection.Transaction{
					protection.NewTransaction(l.UserID, protection.KindRepair, 1, protection.ReasonRepair, now).
						WithStreakSaved(restored).
						WithAmount(cmd.AmountPaid),
				},
				Events: []shared.Event{
					shared.NewStreakRepairedEvent(l.UserID, restored),
				},
			}, nil
		})
		if err != nil {
			if shared.IsRetryable(err) {
				return retry.Retryable(err)
			}
			return err
		}

		result.Snapshot = outcome.Ledger.Snapshot()
		for _, e := range outcome.Events {
			if perr := h.events.Publish(e); perr != nil {
				h.log.Warn("failed to publish event",
					logger.String("event_type", string(e.EventType())),
					logger.Err(perr))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply_repair: %w", err)
	}

	h.log.Info("streak repaired",
		logger.Int64("user_id", cmd.UserID.Int64()),
		logger.Int("restored", result.Restored))

	return result, nil
}
