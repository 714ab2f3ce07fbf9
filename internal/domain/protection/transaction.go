// Package protection contains the protection item audit model (the
// append-only transaction log for freezes, shields, and repairs) and the
// repair pricing policy.
package protection

import (
	"time"

	"github.com/google/uuid"

	"github.com/quizhub/streak-engine/internal/domain/shared"
)

// Kind classifies a protection transaction.
type Kind string

const (
	KindFreezeGrant   Kind = "freeze_grant"
	KindFreezeConsume Kind = "freeze_consume"
	KindShieldGrant   Kind = "shield_grant"
	KindShieldConsume Kind = "shield_consume"
	KindRepair        Kind = "repair"
)

// IsValid checks the kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case KindFreezeGrant, KindFreezeConsume, KindShieldGrant, KindShieldConsume, KindRepair:
		return true
	}
	return false
}

// String returns the string representation.
func (k Kind) String() string {
	return string(k)
}

// Reason annotates why a transaction happened.
type Reason string

const (
	ReasonPurchase    Reason = "purchase"
	ReasonMilestone   Reason = "milestone_reward"
	ReasonMissedDay   Reason = "missed_day"
	ReasonWrongAnswer Reason = "wrong_answer"
	ReasonRepair      Reason = "repair"
)

// Transaction is one append-only audit entry. Entries are never updated
// or deleted; the log doubles as the idempotency trail for repairs.
type Transaction struct {
	ID               string
	UserID           shared.UserID
	Kind             Kind
	Quantity         int
	StreakValueSaved int          // streak length a consume/repair preserved
	Amount           shared.Price // paid amount for purchases/repairs, 0 otherwise
	Reason           Reason
	CreatedAt        time.Time
}

// NewTransaction builds an audit entry with a fresh ID.
func NewTransaction(userID shared.UserID, kind Kind, quantity int, reason Reason, now time.Time) Transaction {
	return Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Quantity:  quantity,
		Reason:    reason,
		CreatedAt: now.UTC(),
	}
}

// WithStreakSaved annotates the streak length the transaction preserved.
func (t Transaction) WithStreakSaved(value int) Transaction {
	t.StreakValueSaved = value
	return t
}

// WithAmount annotates the paid amount.
func (t Transaction) WithAmount(amount shared.Price) Transaction {
	t.Amount = amount
	return t
}
