package query

import (
	"context"
	"fmt"
	"time"

	"github.com/quizhub/streak-engine/internal/domain/protection"
	"github.com/quizhub/streak-engine/internal/domain/shared"
	"github.com/quizhub/streak-engine/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPAIR QUOTE QUERY
// Tells the caller whether the user's lost streak can still be repaired,
// at what price, and how much of the window remains.
// ══════════════════════════════════════════════════════════════════════════════

// RepairQuoteQuery requests a repair offer for a user.
type RepairQuoteQuery struct {
	UserID shared.UserID

	// Now overrides the clock (tests). Zero means time.Now.
	Now time.Time
}

// RepairQuote is the offer returned to the caller.
type RepairQuote struct {
	// Eligible reports whether a repair is currently possible.
	Eligible bool `json:"eligible"`

	// LostValue is the streak length a repair would bring back.
	LostValue int `json:"lost_value,omitempty"`

	// Price is the repair price for that length.
	Price shared.Price `json:"price,omitempty"`

	// ExpiresAt is when the window closes.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Remaining is how long the offer stays valid.
	Remaining time.Duration `json:"remaining,omitempty"`
}

// RepairQuoteHandler handles the RepairQuoteQuery.
type RepairQuoteHandler struct {
	ledgers streak.Repository
}

// NewRepairQuoteHandler creates a new RepairQuoteHandler.
func NewRepairQuoteHandler(ledgers streak.Repository) *RepairQuoteHandler {
	return &RepairQuoteHandler{ledgers: ledgers}
}

// Handle executes the repair quote query. A user with no lost streak (or
// no ledger at all) gets a non-eligible quote, not an error.
func (h *RepairQuoteHandler) Handle(ctx context.Context, q RepairQuoteQuery) (*RepairQuote, error) {
	if !q.UserID.IsValid() {
		return nil, fmt.Errorf("repair_quote: %w", shared.ErrInvalidUserID)
	}

	now := q.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	ledger, err := h.ledgers.Get(ctx, q.UserID)
	if err != nil {
		if shared.IsNotFound(err) {
			return &RepairQuote{}, nil
		}
		return nil, fmt.Errorf("repair_quote: %w", err)
	}

	if !ledger.RepairEligible(now) {
		return &RepairQuote{}, nil
	}

	expires := ledger.LostAt.Add(streak.RepairWindow)
	return &RepairQuote{
		Eligible:  true,
		LostValue: ledger.LostStreakValue,
		Price:     protection.RepairPriceFor(ledger.LostStreakValue),
		ExpiresAt: expires,
		Remaining: expires.Sub(now),
	}, nil
}
