// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/quizhub/streak-engine/internal/domain/milestone"
	"github.com/quizhub/streak-engine/internal/domain/protection"
	"github.com/quizhub/streak-engine/internal/domain/shared"
	"github.com/quizhub/streak-engine/internal/domain/streak"
	"github.com/quizhub/streak-engine/pkg/logger"
	"github.com/quizhub/streak-engine/pkg/retry"
	"github.com/quizhub/streak-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// Applies one qualifying-activity event to the user's daily streak:
// continuation, freeze coverage, or loss plus fresh start. Duplicate
// same-day events are safe.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityCommand contains the data for a daily activity event.
type RecordActivityCommand struct {
	// UserID is the ID of the user who was active.
	UserID shared.UserID

	// OccurredAt is when the activity happened (defaults to now if zero).
	// The activity day is derived from it in the user's local time.
	OccurredAt time.Time

	// UTCOffsetMinutes updates the user's fixed offset before the activity
	// day is derived. Nil leaves the stored offset unchanged.
	UTCOffsetMinutes *int

	// CorrelationID for tracing.
	CorrelationID string
}

// Offsets beyond the real-world UTC-12:00..UTC+14:00 band are rejected.
const (
	minUTCOffsetMinutes = -12 * 60
	maxUTCOffsetMinutes = 14 * 60
)

// Validate validates the command.
func (c RecordActivityCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	if c.UTCOffsetMinutes != nil &&
		(*c.UTCOffsetMinutes < minUTCOffsetMinutes || *c.UTCOffsetMinutes > maxUTCOffsetMinutes) {
		return fmt.Errorf("%w: utc offset out of range", shared.ErrInvalidInput)
	}
	return nil
}

// RecordActivityResult contains the result of recording an activity.
type RecordActivityResult struct {
	// Snapshot is the post-mutation display view of the ledger.
	Snapshot streak.Snapshot

	// Outcome classifies what happened to the streak.
	Outcome streak.DailyOutcome

	// FreezesUsed is how many freezes covered missed days.
	FreezesUsed int

	// StreakLost indicates the streak broke and a repair window opened.
	StreakLost bool

	// LostValue is the streak length before the break.
	LostValue int

	// Milestones granted by this event (exactly once each).
	Milestones []milestone.Grant
}

// RecordActivityHandler handles the RecordActivityCommand.
type RecordActivityHandler struct {
	ledgers streak.Repository
	events  shared.EventPublisher
	retrier *retry.Retrier
	log     *logger.Logger
}

// NewRecordActivityHandler creates a new RecordActivityHandler.
func NewRecordActivityHandler(
	ledgers streak.Repository,
	events shared.EventPublisher,
	log *logger.Logger,
) *RecordActivityHandler {
	return &RecordActivityHandler{
		ledgers: ledgers,
		events:  events,
		retrier: retry.StorageRetrier(),
		log:     log.With(logger.String("handler", "record_activity")),
	}
}

// Handle executes the record activity command.
//
// The whole mutation - counters, freeze consumption, milestone record and
// reward - commits in one transaction. Transient storage failures retry
// the operation from scratch; the same-day re-entry branch makes that safe.
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (*RecordActivityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_activity: %w", err)
	}

	now := cmd.OccurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result *RecordActivityResult

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		outcome, err := h.ledgers.Mutate(ctx, cmd.UserID, func(l *streak.Ledger) (*streak.Mutation, error) {
			if cmd.UTCOffsetMinutes != nil {
				l.UTCOffsetMinutes = *cmd.UTCOffsetMinutes
			}
			today := shared.DayOf(timeutil.ToOffset(now, l.UTCOffsetMinutes))
			res := l.RecordActivity(today, now)

			m := &streak.Mutation{}
			result = &RecordActivityResult{
				Outcome:     res.Outcome,
				FreezesUsed: res.FreezesUsed,
				LostValue:   res.LostValue,
			}

			switch res.Outcome {
			case streak.DailyReentry:
				// An offset update still has to be written back.
				m.NoChange = !res.FlagsCleared && cmd.UTCOffsetMinutes == nil
				return m, nil

			case streak.DailyStarted:
				m.Events = append(m.Events, shared.NewStreakStartedEvent(l.UserID))

			case streak.DailyContinued:
				m.Events = append(m.Events, shared.NewStreakContinuedEvent(l.UserID, l.DailyCurrent, l.DailyMax))

			case streak.DailyFrozen:
				for i := 0; i < res.FreezesUsed; i++ {
					m.Log = append(m.Log, protection.NewTransaction(
						l.UserID, protection.KindFreezeConsume, 1, protection.ReasonMissedDay, now,
					).WithStreakSaved(l.DailyCurrent))
				}
				m.Events = append(m.Events,
					shared.NewStreakFrozenEvent(l.UserID, res.DaysMissed, l.DailyCurrent, l.FreezeCount))

			case streak.DailyLost:
				result.StreakLost = true
				m.Events = append(m.Events,
					shared.NewStreakLostEvent(l.UserID, res.LostValue, res.DaysMissed, false))
			}

			// Milestone check is re-derived from the ledger's current value,
			// so a retried transaction grants nothing twice.
			if g, ok := milestone.CrossingFor(l.UserID, milestone.TypeDaily, l.DailyCurrent, now); ok {
				m.Grants = append(m.Grants, g)
			}
			return m, nil
		})
		if err != nil {
			if shared.IsRetryable(err) {
				return retry.Retryable(err)
			}
			return err
		}

		result.Snapshot = outcome.Ledger.Snapshot()
		result.Milestones = outcome.GrantedMilestones
		h.publish(outcome.Events)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record_activity: %w", err)
	}

	h.log.Debug("activity recorded",
		logger.Int64("user_id", cmd.UserID.Int64()),
		logger.Int("daily_current", result.Snapshot.DailyCurrent),
		logger.String("correlation_id", cmd.CorrelationID),
		logger.Int("outcome", int(result.Outcome)))

	return result, nil
}

func (h *RecordActivityHandler) publish(events []shared.Event) {
	for _, e := range events {
		if err := h.events.Publish(e); err != nil {
			h.log.Warn("failed to publish event",
				logger.String("event_type", string(e.EventType())),
				logger.Err(err))
		}
	}
}
