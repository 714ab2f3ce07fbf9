// Package streak contains the streak ledger aggregate: the per-user record
// of daily-activity and consecutive-correct-answer streaks, the protection
// item inventory, and the pure state-machine logic that evolves them.
// This is the core of the business logic - no external dependencies here.
package streak

import (
	"time"

	"github.com/quizhub/streak-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// Ledger is the per-user streak record. One row per user, created lazily
// on the first activity or answer event, never deleted.
//
// Every mutation of a Ledger must be applied as a single atomic
// read-modify-write (see Repository). The methods below only compute the
// new in-memory state; persistence and its transactional guarantees live
// in the infrastructure layer.
type Ledger struct {
	UserID shared.UserID

	// Daily activity streak
	DailyCurrent     int
	DailyMax         int
	LongestEver      int
	DailyLevel       Level
	LastActivityDate shared.Day
	TotalDaysActive  int

	// Risk state machine
	DailyState       State
	AtRiskNotified   bool
	CriticalNotified bool

	// Loss snapshot - set only while DailyState is LOST or RECOVERABLE.
	LostStreakValue int
	LostAt          time.Time

	// Consecutive-correct-answer streak
	CorrectCurrent int
	CorrectMax     int

	// Protection inventory
	FreezeCount int
	ShieldCount int

	// Fixed UTC offset for the user's local day boundary, in minutes.
	UTCOffsetMinutes int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewLedger creates a fresh ledger with default values.
func NewLedger(userID shared.UserID, now time.Time) *Ledger {
	return &Ledger{
		UserID:     userID,
		DailyState: StateActive,
		DailyLevel: LevelNovice,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
}

// Location returns the user's fixed-offset location for day arithmetic.
func (l *Ledger) Location() *time.Location {
	if l.UTCOffsetMinutes == 0 {
		return time.UTC
	}
	return time.FixedZone("user", l.UTCOffsetMinutes*60)
}

// Validate checks the ledger invariants. A failed check means a bug in
// the mutation logic; the surrounding transaction must be aborted rather
// than persisted.
func (l *Ledger) Validate() error {
	if !l.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	if l.DailyCurrent < 0 || l.DailyMax < 0 || l.LongestEver < 0 ||
		l.CorrectCurrent < 0 || l.CorrectMax < 0 || l.TotalDaysActive < 0 {
		return shared.ErrNegativeCounter
	}
	if l.DailyCurrent > l.DailyMax || l.DailyMax > l.LongestEver {
		return shared.ErrCounterOrdering
	}
	if l.CorrectCurrent > l.CorrectMax {
		return shared.ErrCounterOrdering
	}
	if l.FreezeCount < 0 || l.ShieldCount < 0 {
		return shared.ErrInsufficientItems
	}
	if !l.DailyState.IsValid() {
		return shared.NewDomainError("streak", "Validate", shared.ErrInvalidState, "unknown daily state")
	}
	lossSet := l.LostStreakValue != 0 || !l.LostAt.IsZero()
	if lossSet != l.DailyState.IsLost() {
		return shared.ErrLostFieldsDangling
	}
	return nil
}

// Snapshot returns the display view of the ledger, returned synchronously
// from every mutating call.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{
		UserID:          l.UserID,
		DailyCurrent:    l.DailyCurrent,
		DailyMax:        l.DailyMax,
		LongestEver:     l.LongestEver,
		DailyLevel:      l.DailyLevel,
		DailyState:      l.DailyState,
		CorrectCurrent:  l.CorrectCurrent,
		CorrectMax:      l.CorrectMax,
		FreezeCount:     l.FreezeCount,
		ShieldCount:     l.ShieldCount,
		TotalDaysActive: l.TotalDaysActive,
	}
}

// EmptySnapshot is the view of a user who has no ledger yet.
func EmptySnapshot(userID shared.UserID) Snapshot {
	return Snapshot{
		UserID:     userID,
		DailyLevel: LevelNovice,
		DailyState: StateActive,
	}
}

// Snapshot is the read model of a ledger for display purposes.
type Snapshot struct {
	UserID          shared.UserID `json:"user_id"`
	DailyCurrent    int           `json:"daily_current"`
	DailyMax        int           `json:"daily_max"`
	LongestEver     int           `json:"longest_ever"`
	DailyLevel      Level         `json:"daily_level"`
	DailyState      State         `json:"daily_state"`
	CorrectCurrent  int           `json:"correct_current"`
	CorrectMax      int           `json:"correct_max"`
	FreezeCount     int           `json:"freeze_count"`
	ShieldCount     int           `json:"shield_count"`
	TotalDaysActive int           `json:"total_days_active"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY STREAK
// ══════════════════════════════════════════════════════════════════════════════

// DailyOutcome classifies what RecordActivity did to the ledger.
type DailyOutcome int

const (
	// DailyReentry - same-day duplicate event, counters unchanged.
	DailyReentry DailyOutcome = iota

	// DailyStarted - first ever activity, or a fresh start after a loss.
	DailyStarted

	// DailyContinued - the streak grew by one day.
	DailyContinued

	// DailyFrozen - freezes covered the missed days; the streak grew by one.
	DailyFrozen

	// DailyLost - the gap was not covered; the streak broke and restarted at 1.
	DailyLost
)

// DailyResult describes the effect of a RecordActivity mutation.
type DailyResult struct {
	Outcome      DailyOutcome
	DaysMissed   int
	FreezesUsed  int
	LostValue    int
	WindowClosed bool // an open repair window was closed by continuing the streak
	FlagsCleared bool // a same-day re-entry rolled back a risk escalation
}

// RecordActivity applies one qualifying-activity day to the daily streak.
// today must already be the user's local calendar day. Duplicate same-day
// calls are idempotent re-entries.
func (l *Ledger) RecordActivity(today shared.Day, now time.Time) DailyResult {
	// Same-day re-entry: no counter change, but the user is demonstrably
	// active, so a pending at-risk/critical escalation is rolled back.
	if !l.LastActivityDate.IsZero() && l.LastActivityDate.Equal(today) {
		if l.AtRiskNotified || l.CriticalNotified || l.DailyState == StateAtRisk || l.DailyState == StateCritical {
			l.clearRiskFlags()
			if l.DailyState == StateAtRisk || l.DailyState == StateCritical {
				l.DailyState = StateActive
			}
			l.touch(now)
			return DailyResult{Outcome: DailyReentry, FlagsCleared: true}
		}
		return DailyResult{Outcome: DailyReentry}
	}

	// Clock skew or a replayed stale event; treat as a re-entry and do not
	// move the activity date backwards.
	if !l.LastActivityDate.IsZero() && l.LastActivityDate.DaysUntil(today) < 0 {
		return DailyResult{Outcome: DailyReentry}
	}

	defer func() {
		l.LastActivityDate = today
		l.DailyLevel = LevelForDays(l.DailyCurrent)
		l.touch(now)
	}()

	// First ever activity.
	if l.LastActivityDate.IsZero() {
		l.startFresh()
		return DailyResult{Outcome: DailyStarted}
	}

	gap := l.LastActivityDate.DaysUntil(today)

	switch {
	case gap == 1:
		windowClosed := l.continueStreak()
		return DailyResult{Outcome: DailyContinued, WindowClosed: windowClosed}

	default: // gap > 1: the user missed gap-1 whole days
		missed := gap - 1

		// The sweep may have already taken this same loss: counter zeroed,
		// snapshot set, repair window open. The returning event settles the
		// gap against the snapshot instead of losing a zero-length streak.
		if l.DailyState.IsLost() && l.DailyCurrent == 0 && l.LostStreakValue > 0 {
			if l.FreezeCount >= missed {
				l.FreezeCount -= missed
				l.DailyCurrent = l.LostStreakValue
				windowClosed := l.continueStreak()
				return DailyResult{Outcome: DailyFrozen, DaysMissed: missed, FreezesUsed: missed, WindowClosed: windowClosed}
			}
			// Uncovered: the loss is already recorded and the window is
			// already open. Start the fresh streak without touching either.
			l.DailyCurrent = 1
			if l.DailyMax < 1 {
				l.DailyMax = 1
			}
			l.TotalDaysActive++
			return DailyResult{Outcome: DailyStarted, DaysMissed: missed}
		}

		if l.FreezeCount >= missed {
			l.FreezeCount -= missed
			l.continueStreak()
			return DailyResult{Outcome: DailyFrozen, DaysMissed: missed, FreezesUsed: missed}
		}

		lost := l.DailyCurrent
		l.LostStreakValue = lost
		l.LostAt = now.UTC()
		l.DailyState = StateLost
		l.clearRiskFlags()

		l.DailyCurrent = 1
		if l.DailyMax < 1 {
			l.DailyMax = 1
		}
		if l.LongestEver < l.DailyMax {
			l.LongestEver = l.DailyMax
		}
		l.TotalDaysActive++
		return DailyResult{Outcome: DailyLost, DaysMissed: missed, LostValue: lost}
	}
}

// startFresh begins a brand new streak at one day.
func (l *Ledger) startFresh() {
	l.DailyCurrent = 1
	if l.DailyMax < 1 {
		l.DailyMax = 1
	}
	if l.LongestEver < l.DailyMax {
		l.LongestEver = l.DailyMax
	}
	l.TotalDaysActive++
	l.DailyState = StateActive
	l.clearRiskFlags()
	l.clearLossSnapshot()
}

// continueStreak grows the streak by one day. Continuing while a repair
// window is open closes the window: the lost-streak snapshot only makes
// sense while the ledger is in a lost state.
func (l *Ledger) continueStreak() (windowClosed bool) {
	l.DailyCurrent++
	if l.DailyMax < l.DailyCurrent {
		l.DailyMax = l.DailyCurrent
	}
	if l.LongestEver < l.DailyMax {
		l.LongestEver = l.DailyMax
	}
	l.TotalDaysActive++
	windowClosed = l.DailyState.IsLost() && l.LostStreakValue > 0
	l.DailyState = StateActive
	l.clearRiskFlags()
	l.clearLossSnapshot()
	return windowClosed
}

func (l *Ledger) clearRiskFlags() {
	l.AtRiskNotified = false
	l.CriticalNotified = false
}

func (l *Ledger) clearLossSnapshot() {
	l.LostStreakValue = 0
	l.LostAt = time.Time{}
}

func (l *Ledger) touch(now time.Time) {
	l.UpdatedAt = now.UTC()
}

// ══════════════════════════════════════════════════════════════════════════════
// CORRECT-ANSWER STREAK
// ══════════════════════════════════════════════════════════════════════════════

// AnswerOutcome classifies what RecordAnswer did to the ledger.
type AnswerOutcome int

const (
	// AnswerExtended - a correct answer grew the streak.
	AnswerExtended AnswerOutcome = iota

	// AnswerShielded - a wrong answer was absorbed by an error shield.
	AnswerShielded

	// AnswerReset - a wrong answer reset the streak to zero.
	AnswerReset
)

// AnswerResult describes the effect of a RecordAnswer mutation.
type AnswerResult struct {
	Outcome   AnswerOutcome
	LostValue int // streak value before a reset
}

// RecordAnswer applies one answer event to the correct-answer streak.
// Each call represents a distinct answer; callers must not duplicate events.
func (l *Ledger) RecordAnswer(isCorrect bool, now time.Time) AnswerResult {
	defer l.touch(now)

	if isCorrect {
		l.CorrectCurrent++
		if l.CorrectMax < l.CorrectCurrent {
			l.CorrectMax = l.CorrectCurrent
		}
		return AnswerResult{Outcome: AnswerExtended}
	}

	if l.ShieldCount > 0 {
		l.ShieldCount--
		return AnswerResult{Outcome: AnswerShielded}
	}

	lost := l.CorrectCurrent
	l.CorrectCurrent = 0
	return AnswerResult{Outcome: AnswerReset, LostValue: lost}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROTECTION INVENTORY & REPAIR
// ══════════════════════════════════════════════════════════════════════════════

// ItemKind identifies a consumable protection item.
type ItemKind string

const (
	ItemFreeze ItemKind = "freeze"
	ItemShield ItemKind = "shield"
)

// IsValid checks the item kind is known.
func (k ItemKind) IsValid() bool {
	return k == ItemFreeze || k == ItemShield
}

// GrantItems credits protection items to the inventory.
func (l *Ledger) GrantItems(kind ItemKind, quantity int, now time.Time) error {
	if quantity <= 0 {
		return shared.ErrInvalidQuantity
	}
	switch kind {
	case ItemFreeze:
		l.FreezeCount += quantity
	case ItemShield:
		l.ShieldCount += quantity
	default:
		return shared.ErrInvalidItemKind
	}
	l.touch(now)
	return nil
}

// ItemCount returns the current inventory count for the kind.
func (l *Ledger) ItemCount(kind ItemKind) int {
	if kind == ItemFreeze {
		return l.FreezeCount
	}
	return l.ShieldCount
}

// RepairEligible reports whether a paid repair can restore the lost streak.
func (l *Ledger) RepairEligible(now time.Time) bool {
	return l.DailyState.IsLost() &&
		l.LostStreakValue > 0 &&
		!l.LostAt.IsZero() &&
		now.Sub(l.LostAt) <= RepairWindow
}

// ApplyRepair restores the lost streak after a confirmed repair payment.
// A repeated invocation fails the precondition because the state is no
// longer lost, which is the idempotency guard against duplicate payment
// callbacks.
func (l *Ledger) ApplyRepair(now time.Time) (restored int, err error) {
	if !l.DailyState.IsLost() || l.LostStreakValue <= 0 {
		return 0, shared.ErrNoLostStreak
	}
	if now.Sub(l.LostAt) > RepairWindow {
		return 0, shared.ErrRepairWindowOver
	}

	restored = l.LostStreakValue
	l.DailyCurrent = restored
	if l.DailyMax < l.DailyCurrent {
		l.DailyMax = l.DailyCurrent
	}
	if l.LongestEver < l.DailyMax {
		l.LongestEver = l.DailyMax
	}
	l.DailyState = StateActive
	l.DailyLevel = LevelForDays(l.DailyCurrent)
	l.clearLossSnapshot()
	l.clearRiskFlags()
	l.touch(now)
	return restored, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RISK STATE SWEEP
// ══════════════════════════════════════════════════════════════════════════════

// SweepOutcome describes what the periodic sweep did to the ledger.
type SweepOutcome int

const (
	// SweepNoChange - the ledger needs no transition yet.
	SweepNoChange SweepOutcome = iota

	// SweepAtRisk - crossed into AT_RISK; notify once.
	SweepAtRisk

	// SweepCritical - crossed into CRITICAL; notify once.
	SweepCritical

	// SweepLost - a full day elapsed without activity; the streak broke.
	SweepLost

	// SweepRecoverable - a lost streak entered the repair window state.
	SweepRecoverable

	// SweepWindowExpired - the 48h repair window closed; loss is final.
	SweepWindowExpired
)

// SweepResult describes a sweep transition.
type SweepResult struct {
	Outcome   SweepOutcome
	OldState  State
	NewState  State
	LostValue int
}

// AdvanceRiskState moves the daily streak through the time-driven part of
// its state machine. It is called by the periodic State Monitor sweep;
// event-driven mutations always take precedence because both run under the
// same per-user row lock and RecordActivity resets the risk clock.
func (l *Ledger) AdvanceRiskState(now time.Time) SweepResult {
	old := l.DailyState

	// Lost streaks only move through the repair window.
	if l.DailyState.IsLost() {
		if l.LostAt.IsZero() || now.Sub(l.LostAt) > RepairWindow {
			l.clearLossSnapshot()
			l.DailyState = StateActive
			l.touch(now)
			return SweepResult{Outcome: SweepWindowExpired, OldState: old, NewState: StateActive}
		}
		if l.DailyState == StateLost {
			l.DailyState = StateRecoverable
			l.touch(now)
			return SweepResult{Outcome: SweepRecoverable, OldState: old, NewState: StateRecoverable}
		}
		return SweepResult{Outcome: SweepNoChange, OldState: old, NewState: old}
	}

	if l.DailyCurrent <= 0 || !l.DailyState.IsMonitored() || l.LastActivityDate.IsZero() {
		return SweepResult{Outcome: SweepNoChange, OldState: old, NewState: old}
	}

	// Elapsed time since the end of the last active day, in the user's
	// fixed-offset local time.
	dayEnd := l.LastActivityDate.Time(l.Location()).AddDate(0, 0, 1)
	elapsed := now.Sub(dayEnd)

	switch RiskStateFor(elapsed) {
	case StateLost:
		lost := l.DailyCurrent
		l.LostStreakValue = lost
		l.LostAt = now.UTC()
		l.DailyCurrent = 0
		l.DailyState = StateLost
		l.DailyLevel = LevelForDays(0)
		l.clearRiskFlags()
		l.touch(now)
		return SweepResult{Outcome: SweepLost, OldState: old, NewState: StateLost, LostValue: lost}

	case StateCritical:
		if l.CriticalNotified {
			return SweepResult{Outcome: SweepNoChange, OldState: old, NewState: old}
		}
		l.DailyState = StateCritical
		l.CriticalNotified = true
		l.touch(now)
		return SweepResult{Outcome: SweepCritical, OldState: old, NewState: StateCritical}

	case StateAtRisk:
		if l.AtRiskNotified || l.DailyState == StateCritical {
			return SweepResult{Outcome: SweepNoChange, OldState: old, NewState: old}
		}
		l.DailyState = StateAtRisk
		l.AtRiskNotified = true
		l.touch(now)
		return SweepResult{Outcome: SweepAtRisk, OldState: old, NewState: StateAtRisk}

	default:
		return SweepResult{Outcome: SweepNoChange, OldState: old, NewState: old}
	}
}
