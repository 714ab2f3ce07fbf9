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
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ANSWER COMMAND
// Applies one graded answer to the correct-answer streak. A wrong answer
// consumes an error shield if the user holds one, otherwise resets the
// counter to zero.
// ══════════════════════════════════════════════════════════════════════════════

// RecordAnswerCommand contains the data for a graded answer event.
type RecordAnswerCommand struct {
	// UserID is the ID of the user who answered.
	UserID shared.UserID

	// IsCorrect is the grading result.
	IsCorrect bool

	// OccurredAt is when the answer was graded (defaults to now if zero).
	OccurredAt time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecordAnswerCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	return nil
}

// RecordAnswerResult contains the result of recording an answer.
type RecordAnswerResult struct {
	Snapshot streak.Snapshot
	Outcome  streak.AnswerOutcome

	// ShieldConsumed indicates a wrong answer was absorbed.
	ShieldConsumed bool

	// LostValue is the counter value a reset wiped out.
	LostValue int

	// Milestones granted by this event.
	Milestones []milestone.Grant
}

// RecordAnswerHandler handles the RecordAnswerCommand.
type RecordAnswerHandler struct {
	ledgers streak.Repository
	events  shared.EventPublisher
	retrier *retry.Retrier
	log     *logger.Logger
}

// NewRecordAnswerHandler creates a new RecordAnswerHandler.
func NewRecordAnswerHandler(
	ledgers streak.Repository,
	events shared.EventPublisher,
	log *logger.Logger,
) *RecordAnswerHandler {
	return &RecordAnswerHandler{
		ledgers: ledgers,
		events:  events,
		retrier: retry.StorageRetrier(),
		log:     log.With(logger.String("handler", "record_answer")),
	}
}

// Handle executes the record answer command.
func (h *RecordAnswerHandler) Handle(ctx context.Context, cmd RecordAnswerCommand) (*RecordAnswerResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_answer: %w", err)
	}

	now := cmd.OccurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result *RecordAnswerResult

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		outcome, err := h.ledgers.Mutate(ctx, cmd.UserID, func(l *streak.Ledger) (*streak.Mutation, error) {
			res := l.RecordAnswer(cmd.IsCorrect, now)

			m := &streak.Mutation{}
			result = &RecordAnswerResult{
				Outcome:   res.Outcome,
				LostValue: res.LostValue,
			}

			switch res.Outcome {
			case streak.AnswerExtended:
				if g, ok := milestone.CrossingFor(l.UserID, milestone.TypeCorrect, l.CorrectCurrent, now); ok {
					m.Grants = append(m.Grants, g)
				}

			case streak.AnswerShielded:
				result.ShieldConsumed = true
				m.Log = append(m.Log, protection.NewTransaction(
					l.UserID, protection.KindShieldConsume, 1, protection.ReasonWrongAnswer, now,
				).WithStreakSaved(l.CorrectCurrent))
				m.Events = append(m.Events,
					shared.NewAnswerStreakShieldedEvent(l.UserID, l.CorrectCurrent, l.ShieldCount))

			case streak.AnswerReset:
				if res.LostValue > 0 {
					m.Events = append(m.Events,
						shared.NewAnswerStreakResetEvent(l.UserID, res.LostValue))
				} else {
					// Counter was already zero, nothing was written.
					m.NoChange = true
				}
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
		return nil, fmt.Errorf("record_answer: %w", err)
	}

	return result, nil
}
