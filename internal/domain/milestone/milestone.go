// Package milestone contains the one-time streak milestone model: fixed
// thresholds per streak type, the reward policy table, and the exactly-once
// grant record keyed by (user, type, value).
package milestone

import (
	"fmt"
	"time"

	"github.com/quizhub/streak-engine/internal/domain/shared"
)

// Type identifies which streak counter a milestone tracks.
type Type string

const (
	// TypeDaily - consecutive-day activity streak milestones.
	TypeDaily Type = "daily"

	// TypeCorrect - consecutive-correct-answer streak milestones.
	TypeCorrect Type = "correct"
)

// IsValid checks the milestone type is known.
func (t Type) IsValid() bool {
	return t == TypeDaily || t == TypeCorrect
}

// String returns the string representation.
func (t Type) String() string {
	return string(t)
}

// Reward is what a milestone grants. Inventory fields are applied to the
// ledger in the same transaction as the milestone record; the rest is
// carried in the reward descriptor for downstream fulfilment.
type Reward struct {
	Freezes         int
	Shields         int
	AICredits       int
	PremiumDays     int
	DiscountPercent int
}

// HasInventory reports whether the reward includes protection items.
func (r Reward) HasInventory() bool {
	return r.Freezes > 0 || r.Shields > 0
}

// Descriptor returns the stable string form persisted with the record and
// carried in the MilestoneAchieved event.
func (r Reward) Descriptor() string {
	d := ""
	appendPart := func(s string) {
		if d != "" {
			d += "+"
		}
		d += s
	}
	if r.Freezes > 0 {
		appendPart(fmt.Sprintf("freeze:%d", r.Freezes))
	}
	if r.Shields > 0 {
		appendPart(fmt.Sprintf("shield:%d", r.Shields))
	}
	if r.AICredits > 0 {
		appendPart(fmt.Sprintf("ai_credits:%d", r.AICredits))
	}
	if r.PremiumDays > 0 {
		appendPart(fmt.Sprintf("premium_days:%d", r.PremiumDays))
	}
	if r.DiscountPercent > 0 {
		appendPart(fmt.Sprintf("discount_pct:%d", r.DiscountPercent))
	}
	if d == "" {
		d = "none"
	}
	return d
}

// Reward policy table. The values mirror the production reward schedule;
// they are policy, not algorithm, and live here as the single source of
// truth for both granting and display.
var rewardTable = map[Type]map[int]Reward{
	TypeDaily: {
		7:   {Freezes: 1},
		14:  {AICredits: 3},
		30:  {Freezes: 1, AICredits: 5},
		60:  {Freezes: 2},
		100: {PremiumDays: 30},
	},
	TypeCorrect: {
		5:  {AICredits: 1},
		10: {AICredits: 2, Shields: 1},
		20: {AICredits: 3},
		50: {DiscountPercent: 20},
	},
}

// Thresholds returns the configured milestone values for a type, ascending.
func Thresholds(t Type) []int {
	switch t {
	case TypeDaily:
		return []int{7, 14, 30, 60, 100}
	case TypeCorrect:
		return []int{5, 10, 20, 50}
	}
	return nil
}

// RewardFor returns the reward for a milestone value, or ok=false when the
// value is not a configured threshold for the type.
func RewardFor(t Type, value int) (Reward, bool) {
	r, ok := rewardTable[t][value]
	return r, ok
}

// Record is the exactly-once grant record. At most one exists per
// (user, type, value); the storage layer enforces this with a unique key.
type Record struct {
	UserID           shared.UserID
	Type             Type
	Value            int
	AchievedAt       time.Time
	RewardDescriptor string
}

// Grant is a milestone crossing candidate: the record to insert plus the
// reward to apply if (and only if) the insert wins.
type Grant struct {
	Record Record
	Reward Reward
}

// CrossingFor checks whether a streak counter value is a configured
// milestone and, if so, builds the grant candidate for it. It is safe to
// re-derive from the ledger's current value: a retried check against an
// already-granted record is a no-op at the storage layer.
func CrossingFor(userID shared.UserID, t Type, value int, now time.Time) (Grant, bool) {
	reward, ok := RewardFor(t, value)
	if !ok {
		return Grant{}, false
	}
	return Grant{
		Record: Record{
			UserID:           userID,
			Type:             t,
			Value:            value,
			AchievedAt:       now.UTC(),
			RewardDescriptor: reward.Descriptor(),
		},
		Reward: reward,
	}, true
}
