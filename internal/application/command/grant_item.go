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
// GRANT ITEM COMMAND
// Credits protection items (freezes or shields) to a user's inventory after
// a confirmed purchase. Payment itself is handled upstream; this command
// only records the fulfilled grant.
// ══════════════════════════════════════════════════════════════════════════════

// GrantItemCommand contains the data for a confirmed item purchase.
type GrantItemCommand struct {
	// UserID is the ID of the buyer.
	UserID shared.UserID

	// Kind is the item kind to credit.
	Kind streak.ItemKind

	// Quantity is how many items to credit (must be positive).
	Quantity int

	// AmountPaid is the confirmed payment total. Zero for promotional grants.
	AmountPaid shared.Price

	// OccurredAt is when the purchase was confirmed (defaults to now if zero).
	OccurredAt time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c GrantItemCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	if !c.Kind.IsValid() {
		return shared.ErrInvalidItemKind
	}
	if c.Quantity <= 0 {
		return shared.ErrInvalidQuantity
	}
	if c.AmountPaid < 0 {
		return shared.NewDomainError("protection", "Validate", shared.ErrInvalidInput,
			"amount paid cannot be negative")
	}
	return nil
}

// GrantItemResult contains the result of crediting items.
type GrantItemResult struct {
	Snapshot streak.Snapshot

	// NewTotal is the inventory count for the granted kind after crediting.
	NewTotal int
}

// GrantItemHandler handles the GrantItemCommand.
type GrantItemHandler struct {
	ledgers streak.Repository
	events  shared.EventPublisher
	retrier *retry.Retrier
	log     *logger.Logger
}

// NewGrantItemHandler creates a new GrantItemHandler.
func NewGrantItemHandler(
	ledgers streak.Repository,
	events shared.EventPublisher,
	log *logger.Logger,
) *GrantItemHandler {
	return &GrantItemHandler{
		ledgers: ledgers,
		events:  events,
		retrier: retry.StorageRetrier(),
		log:     log.With(logger.String("handler", "grant_item")),
	}
}

// Handle executes the grant item command.
func (h *GrantItemHandler) Handle(ctx context.Context, cmd GrantItemCommand) (*GrantItemResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("grant_item: %w", err)
	}

	now := cmd.OccurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result *GrantItemResult

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		outcome, err := h.ledgers.Mutate(ctx, cmd.UserID, func(l *streak.Ledger) (*streak.Mutation, error) {
			if err := l.GrantItems(cmd.Kind, cmd.Quantity, now); err != nil {
				return nil, err
			}

			kind := protection.KindFreezeGrant
			if cmd.Kind == streak.ItemShield {
				kind = protection.KindShieldGrant
			}

			m := &streak.Mutation{
				Log: []protection.Transaction{
					protection.NewTransaction(l.UserID, kind, cmd.Quantity, protection.ReasonPurchase, now).
						WithAmount(cmd.AmountPaid),
				},
				Events: []shared.Event{
					shared.NewItemGrantedEvent(l.UserID, string(cmd.Kind), cmd.Quantity, l.ItemCount(cmd.Kind)),
				},
			}
			result = &GrantItemResult{NewTotal: l.ItemCount(cmd.Kind)}
			return m, nil
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
		return nil, fmt.Errorf("grant_item: %w", err)
	}

	h.log.Info("items granted",
		logger.Int64("user_id", cmd.UserID.Int64()),
		logger.String("kind", string(cmd.Kind)),
		logger.Int("quantity", cmd.Quantity),
		logger.Int("new_total", result.NewTotal))

	return result, nil
}
