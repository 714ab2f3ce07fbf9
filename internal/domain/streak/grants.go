package streak

import (
	"time"

	"github.com/quizhub/streak-engine/internal/domain/milestone"
	"github.com/quizhub/streak-engine/internal/domain/protection"
	"github.com/quizhub/streak-engine/internal/domain/shared"
)

// ApplyGrant applies a won milestone grant to the ledger: inventory rewards
// are credited and the matching audit entries and event are produced.
//
// Repositories call this only after the milestone record insert succeeded,
// inside the same transaction, so a reward can never exist without its
// record nor the record without its reward.
func ApplyGrant(l *Ledger, g milestone.Grant, now time.Time) ([]protection.Transaction, shared.Event) {
	var log []protection.Transaction

	if g.Reward.Freezes > 0 {
		l.FreezeCount += g.Reward.Freezes
		log = append(log, protection.NewTransaction(
			l.UserID, protection.KindFreezeGrant, g.Reward.Freezes, protection.ReasonMilestone, now))
	}
	if g.Reward.Shields > 0 {
		l.ShieldCount += g.Reward.Shields
		log = append(log, protection.NewTransaction(
			l.UserID, protection.KindShieldGrant, g.Reward.Shields, protection.ReasonMilestone, now))
	}
	l.touch(now)

	event := shared.NewMilestoneAchievedEvent(
		l.UserID, g.Record.Type.String(), g.Record.Value, g.Record.RewardDescriptor)
	return log, event
}
