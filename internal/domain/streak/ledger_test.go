package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizhub/streak-engine/internal/domain/shared"
)

func day(y int, m time.Month, d int) shared.Day {
	return shared.Day{Year: y, Month: m, DayOfMonth: d}
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	uid, err := shared.NewUserID(42)
	require.NoError(t, err)
	return NewLedger(uid, time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC))
}

// activeLedger builds a ledger with an established streak ending on the
// given day.
func activeLedger(t *testing.T, current int, last shared.Day) *Ledger {
	t.Helper()
	l := newTestLedger(t)
	l.DailyCurrent = current
	l.DailyMax = current
	l.LongestEver = current
	l.TotalDaysActive = current
	l.LastActivityDate = last
	l.DailyLevel = LevelForDays(current)
	return l
}

func TestRecordActivityFirstEver(t *testing.T) {
	l := newTestLedger(t)
	now := time.Date(2026, time.March, 1, 13, 0, 0, 0, time.UTC)

	res := l.RecordActivity(day(2026, time.March, 1), now)

	assert.Equal(t, DailyStarted, res.Outcome)
	assert.Equal(t, 1, l.DailyCurrent)
	assert.Equal(t, 1, l.DailyMax)
	assert.Equal(t, 1, l.LongestEver)
	assert.Equal(t, 1, l.TotalDaysActive)
	assert.Equal(t, StateActive, l.DailyState)
	assert.Equal(t, LevelNovice, l.DailyLevel)
	assert.NoError(t, l.Validate())
}

func TestRecordActivitySameDayReentry(t *testing.T) {
	l := activeLedger(t, 5, day(2026, time.March, 1))
	now := time.Date(2026, time.March, 1, 20, 0, 0, 0, time.UTC)

	res := l.RecordActivity(day(2026, time.March, 1), now)

	assert.Equal(t, DailyReentry, res.Outcome)
	assert.False(t, res.FlagsCleared)
	assert.Equal(t, 5, l.DailyCurrent)
	assert.Equal(t, 5, l.TotalDaysActive)
}

func TestRecordActivityReentryClearsRiskEscalation(t *testing.T) {
	l := activeLedger(t, 5, day(2026, time.March, 1))
	l.DailyState = StateAtRisk
	l.AtRiskNotified = true
	now := time.Date(2026, time.March, 1, 23, 0, 0, 0, time.UTC)

	res := l.RecordActivity(day(2026, time.March, 1), now)

	assert.Equal(t, DailyReentry, res.Outcome)
	assert.True(t, res.FlagsCleared)
	assert.Equal(t, StateActive, l.DailyState)
	assert.False(t, l.AtRiskNotified)
	assert.False(t, l.CriticalNotified)
	assert.Equal(t, 5, l.DailyCurrent)
}

func TestRecordActivityStaleEventIgnored(t *testing.T) {
	l := activeLedger(t, 5, day(2026, time.March, 10))
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	// A replayed event from three days ago must not move anything backwards.
	res := l.RecordActivity(day(2026, time.March, 7), now)

	assert.Equal(t, DailyReentry, res.Outcome)
	assert.Equal(t, 5, l.DailyCurrent)
	assert.Equal(t, day(2026, time.March, 10), l.LastActivityDate)
}

func TestRecordActivityConsecutiveDay(t *testing.T) {
	l := activeLedger(t, 6, day(2026, time.March, 1))
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	res := l.RecordActivity(day(2026, time.March, 2), now)

	assert.Equal(t, DailyContinued, res.Outcome)
	assert.Equal(t, 7, l.DailyCurrent)
	assert.Equal(t, 7, l.DailyMax)
	assert.Equal(t, 7, l.TotalDaysActive)
	assert.Equal(t, LevelStudent, l.DailyLevel)
	assert.NoError(t, l.Validate())
}

func TestRecordActivityGapCoveredByFreezes(t *testing.T) {
	l := activeLedger(t, 6, day(2026, time.March, 1))
	l.FreezeCount = 1
	now := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)

	// One whole day missed, one freeze available: the streak survives.
	res := l.RecordActivity(day(2026, time.March, 3), now)

	assert.Equal(t, DailyFrozen, res.Outcome)
	assert.Equal(t, 1, res.FreezesUsed)
	assert.Equal(t, 1, res.DaysMissed)
	assert.Equal(t, 7, l.DailyCurrent)
	assert.Equal(t, 0, l.FreezeCount)
	assert.Equal(t, StateActive, l.DailyState)
}

func TestRecordActivityGapExceedsFreezes(t *testing.T) {
	l := activeLedger(t, 6, day(2026, time.March, 1))
	l.FreezeCount = 1
	now := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)

	// Two whole days missed with only one freeze: the freeze is NOT
	// partially consumed, the streak breaks and restarts at one.
	res := l.RecordActivity(day(2026, time.March, 4), now)

	assert.Equal(t, DailyLost, res.Outcome)
	assert.Equal(t, 2, res.DaysMissed)
	assert.Equal(t, 6, res.LostValue)
	assert.Equal(t, 1, l.FreezeCount)
	assert.Equal(t, 1, l.DailyCurrent)
	assert.Equal(t, 6, l.LostStreakValue)
	assert.Equal(t, StateLost, l.DailyState)
	assert.False(t, l.LostAt.IsZero())
	assert.NoError(t, l.Validate())
}

func TestRecordActivityLossKeepsMaxima(t *testing.T) {
	l := activeLedger(t, 6, day(2026, time.March, 1))
	now := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)

	l.RecordActivity(day(2026, time.March, 4), now)

	assert.Equal(t, 6, l.DailyMax)
	assert.Equal(t, 6, l.LongestEver)
	assert.Equal(t, 7, l.TotalDaysActive)
}

func TestRecordActivityContinuingClosesRepairWindow(t *testing.T) {
	l := activeLedger(t, 1, day(2026, time.March, 4))
	l.DailyMax = 6
	l.LongestEver = 6
	l.DailyState = StateRecoverable
	l.LostStreakValue = 6
	l.LostAt = time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, time.March, 5, 9, 0, 0, 0, time.UTC)

	res := l.RecordActivity(day(2026, time.March, 5), now)

	assert.Equal(t, DailyContinued, res.Outcome)
	assert.True(t, res.WindowClosed)
	assert.Equal(t, 2, l.DailyCurrent)
	assert.Equal(t, StateActive, l.DailyState)
	assert.Zero(t, l.LostStreakValue)
	assert.True(t, l.LostAt.IsZero())
	assert.NoError(t, l.Validate())
}

func TestRecordAnswerCorrectExtends(t *testing.T) {
	l := newTestLedger(t)
	now := time.Now().UTC()

	for i := 1; i <= 5; i++ {
		res := l.RecordAnswer(true, now)
		assert.Equal(t, AnswerExtended, res.Outcome)
	}

	assert.Equal(t, 5, l.CorrectCurrent)
	assert.Equal(t, 5, l.CorrectMax)
}

func TestRecordAnswerWrongConsumesShield(t *testing.T) {
	l := newTestLedger(t)
	l.CorrectCurrent = 9
	l.CorrectMax = 9
	l.ShieldCount = 2
	now := time.Now().UTC()

	res := l.RecordAnswer(false, now)

	assert.Equal(t, AnswerShielded, res.Outcome)
	assert.Equal(t, 9, l.CorrectCurrent)
	assert.Equal(t, 1, l.ShieldCount)
}

func TestRecordAnswerWrongWithoutShieldResets(t *testing.T) {
	l := newTestLedger(t)
	l.CorrectCurrent = 9
	l.CorrectMax = 9
	now := time.Now().UTC()

	res := l.RecordAnswer(false, now)

	assert.Equal(t, AnswerReset, res.Outcome)
	assert.Equal(t, 9, res.LostValue)
	assert.Equal(t, 0, l.CorrectCurrent)
	assert.Equal(t, 9, l.CorrectMax)
}

func TestGrantItems(t *testing.T) {
	l := newTestLedger(t)
	now := time.Now().UTC()

	require.NoError(t, l.GrantItems(ItemFreeze, 2, now))
	require.NoError(t, l.GrantItems(ItemShield, 1, now))

	assert.Equal(t, 2, l.FreezeCount)
	assert.Equal(t, 1, l.ShieldCount)
	assert.Equal(t, 2, l.ItemCount(ItemFreeze))
	assert.Equal(t, 1, l.ItemCount(ItemShield))

	assert.ErrorIs(t, l.GrantItems(ItemFreeze, 0, now), shared.ErrInvalidQuantity)
	assert.ErrorIs(t, l.GrantItems(ItemKind("banana"), 1, now), shared.ErrInvalidItemKind)
}

func lostLedger(t *testing.T, lostValue int, lostAt time.Time) *Ledger {
	t.Helper()
	l := newTestLedger(t)
	l.DailyMax = lostValue
	l.LongestEver = lostValue
	l.TotalDaysActive = lostValue
	l.DailyState = StateRecoverable
	l.LostStreakValue = lostValue
	l.LostAt = lostAt.UTC()
	l.LastActivityDate = day(2026, time.March, 1)
	return l
}

func TestApplyRepairWithinWindow(t *testing.T) {
	lostAt := time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)
	l := lostLedger(t, 12, lostAt)
	now := lostAt.Add(47*time.Hour + 59*time.Minute)

	restored, err := l.ApplyRepair(now)

	require.NoError(t, err)
	assert.Equal(t, 12, restored)
	assert.Equal(t, 12, l.DailyCurrent)
	assert.Equal(t, StateActive, l.DailyState)
	assert.Equal(t, LevelStudent, l.DailyLevel)
	assert.Zero(t, l.LostStreakValue)
	assert.True(t, l.LostAt.IsZero())
	assert.NoError(t, l.Validate())
}

func TestApplyRepairAfterWindow(t *testing.T) {
	lostAt := time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)
	l := lostLedger(t, 12, lostAt)
	now := lostAt.Add(48*time.Hour + time.Minute)

	_, err := l.ApplyRepair(now)

	assert.ErrorIs(t, err, shared.ErrRepairWindowOver)
	assert.Equal(t, StateRecoverable, l.DailyState)
	assert.Equal(t, 12, l.LostStreakValue)
}

func TestApplyRepairNothingLost(t *testing.T) {
	l := activeLedger(t, 5, day(2026, time.March, 1))

	_, err := l.ApplyRepair(time.Now().UTC())

	assert.ErrorIs(t, err, shared.ErrNoLostStreak)
}

func TestApplyRepairTwiceFailsSecondTime(t *testing.T) {
	lostAt := time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)
	l := lostLedger(t, 12, lostAt)
	now := lostAt.Add(time.Hour)

	_, err := l.ApplyRepair(now)
	require.NoError(t, err)

	// Duplicate payment callback: the state is no longer lost.
	_, err = l.ApplyRepair(now.Add(time.Minute))
	assert.ErrorIs(t, err, shared.ErrNoLostStreak)
}

func TestRepairEligible(t *testing.T) {
	lostAt := time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)
	l := lostLedger(t, 12, lostAt)

	assert.True(t, l.RepairEligible(lostAt.Add(time.Hour)))
	assert.True(t, l.RepairEligible(lostAt.Add(48*time.Hour)))
	assert.False(t, l.RepairEligible(lostAt.Add(48*time.Hour+time.Second)))

	active := activeLedger(t, 5, day(2026, time.March, 1))
	assert.False(t, active.RepairEligible(lostAt))
}

// ─── Risk state sweep ───

func TestAdvanceRiskStateThresholds(t *testing.T) {
	last := day(2026, time.March, 1)
	dayEnd := last.Time(time.UTC).AddDate(0, 0, 1) // 2026-03-02 00:00 UTC

	tests := []struct {
		name    string
		elapsed time.Duration
		outcome SweepOutcome
		state   State
	}{
		{"before at-risk boundary", 17 * time.Hour, SweepNoChange, StateActive},
		{"at-risk boundary", 18 * time.Hour, SweepAtRisk, StateAtRisk},
		{"critical boundary", 22 * time.Hour, SweepCritical, StateCritical},
		{"lost boundary", 24 * time.Hour, SweepLost, StateLost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := activeLedger(t, 5, last)
			res := l.AdvanceRiskState(dayEnd.Add(tt.elapsed))

			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.state, l.DailyState)
			assert.NoError(t, l.Validate())
		})
	}
}

func TestAdvanceRiskStateNotifiesOnce(t *testing.T) {
	last := day(2026, time.March, 1)
	dayEnd := last.Time(time.UTC).AddDate(0, 0, 1)
	l := activeLedger(t, 5, last)

	first := l.AdvanceRiskState(dayEnd.Add(19 * time.Hour))
	assert.Equal(t, SweepAtRisk, first.Outcome)

	// The next sweep in the same band must stay silent.
	second := l.AdvanceRiskState(dayEnd.Add(20 * time.Hour))
	assert.Equal(t, SweepNoChange, second.Outcome)

	third := l.AdvanceRiskState(dayEnd.Add(23 * time.Hour))
	assert.Equal(t, SweepCritical, third.Outcome)

	fourth := l.AdvanceRiskState(dayEnd.Add(23*time.Hour + 30*time.Minute))
	assert.Equal(t, SweepNoChange, fourth.Outcome)
}

func TestAdvanceRiskStateLossZeroesCounter(t *testing.T) {
	last := day(2026, time.March, 1)
	dayEnd := last.Time(time.UTC).AddDate(0, 0, 1)
	l := activeLedger(t, 9, last)

	res := l.AdvanceRiskState(dayEnd.Add(25 * time.Hour))

	assert.Equal(t, SweepLost, res.Outcome)
	assert.Equal(t, 9, res.LostValue)
	assert.Equal(t, 0, l.DailyCurrent)
	assert.Equal(t, 9, l.LostStreakValue)
	assert.Equal(t, LevelNovice, l.DailyLevel)
	assert.Equal(t, 9, l.DailyMax)
	assert.NoError(t, l.Validate())
}

func TestAdvanceRiskStateLostBecomesRecoverable(t *testing.T) {
	lostAt := time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)
	l := lostLedger(t, 9, lostAt)
	l.DailyState = StateLost

	res := l.AdvanceRiskState(lostAt.Add(time.Hour))

	assert.Equal(t, SweepRecoverable, res.Outcome)
	assert.Equal(t, StateRecoverable, l.DailyState)
	assert.Equal(t, 9, l.LostStreakValue)
}

func TestAdvanceRiskStateWindowExpiry(t *testing.T) {
	lostAt := time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)
	l := lostLedger(t, 9, lostAt)

	res := l.AdvanceRiskState(lostAt.Add(49 * time.Hour))

	assert.Equal(t, SweepWindowExpired, res.Outcome)
	assert.Equal(t, StateActive, l.DailyState)
	assert.Zero(t, l.LostStreakValue)
	assert.True(t, l.LostAt.IsZero())
	assert.NoError(t, l.Validate())
}

func TestAdvanceRiskStateRespectsUserOffset(t *testing.T) {
	last := day(2026, time.March, 1)
	l := activeLedger(t, 5, last)
	l.UTCOffsetMinutes = 300 // UTC+5

	// Local day ends at 2026-03-02 00:00 UTC+5 = 2026-03-01 19:00 UTC.
	localDayEnd := time.Date(2026, time.March, 1, 19, 0, 0, 0, time.UTC)

	res := l.AdvanceRiskState(localDayEnd.Add(17 * time.Hour))
	assert.Equal(t, SweepNoChange, res.Outcome)

	res = l.AdvanceRiskState(localDayEnd.Add(18 * time.Hour))
	assert.Equal(t, SweepAtRisk, res.Outcome)
}

func TestValidateLossFieldPairing(t *testing.T) {
	l := activeLedger(t, 5, day(2026, time.March, 1))
	l.LostStreakValue = 3 // loss snapshot without a lost state

	assert.ErrorIs(t, l.Validate(), shared.ErrLostFieldsDangling)
}

func TestValidateCounterOrdering(t *testing.T) {
	l := activeLedger(t, 5, day(2026, time.March, 1))
	l.DailyMax = 4 // current exceeds max

	assert.ErrorIs(t, l.Validate(), shared.ErrCounterOrdering)
}

func TestLevelForDays(t *testing.T) {
	assert.Equal(t, LevelNovice, LevelForDays(0))
	assert.Equal(t, LevelNovice, LevelForDays(6))
	assert.Equal(t, LevelStudent, LevelForDays(7))
	assert.Equal(t, LevelPractitioner, LevelForDays(14))
	assert.Equal(t, LevelExpert, LevelForDays(30))
	assert.Equal(t, LevelMaster, LevelForDays(60))
	assert.Equal(t, LevelLegend, LevelForDays(100))
	assert.Equal(t, LevelLegend, LevelForDays(365))
}

func TestRiskStateFor(t *testing.T) {
	assert.Equal(t, StateActive, RiskStateFor(17*time.Hour+59*time.Minute))
	assert.Equal(t, StateAtRisk, RiskStateFor(18*time.Hour))
	assert.Equal(t, StateCritical, RiskStateFor(22*time.Hour))
	assert.Equal(t, StateLost, RiskStateFor(24*time.Hour))
}

func TestEmptySnapshot(t *testing.T) {
	snap := EmptySnapshot(shared.UserID(7))

	assert.Equal(t, shared.UserID(7), snap.UserID)
	assert.Equal(t, LevelNovice, snap.DailyLevel)
	assert.Equal(t, StateActive, snap.DailyState)
	assert.Zero(t, snap.DailyCurrent)
}

func TestSweepLossThenFreezeCoveredReturn(t *testing.T) {
	l := activeLedger(t, 6, day(2026, time.March, 1))
	l.FreezeCount = 1

	// Local day ends Mar 2 00:00; the sweep takes the loss once 24h elapse.
	sweepAt := time.Date(2026, time.March, 3, 0, 30, 0, 0, time.UTC)
	res := l.AdvanceRiskState(sweepAt)
	require.Equal(t, SweepLost, res.Outcome)
	require.Equal(t, 0, l.DailyCurrent)
	require.Equal(t, 6, l.LostStreakValue)

	// The user returns that morning; one freeze covers the one missed day
	// and the streak resumes where the sweep snapshotted it.
	returnAt := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	out := l.RecordActivity(day(2026, time.March, 3), returnAt)

	assert.Equal(t, DailyFrozen, out.Outcome)
	assert.Equal(t, 1, out.DaysMissed)
	assert.Equal(t, 1, out.FreezesUsed)
	assert.True(t, out.WindowClosed)
	assert.Equal(t, 7, l.DailyCurrent)
	assert.Equal(t, 7, l.DailyMax)
	assert.Equal(t, 0, l.FreezeCount)
	assert.Equal(t, StateActive, l.DailyState)
	assert.Equal(t, LevelStudent, l.DailyLevel)
	assert.Zero(t, l.LostStreakValue)
	assert.True(t, l.LostAt.IsZero())
	assert.NoError(t, l.Validate())
}

func TestSweepLossThenUncoveredReturnKeepsRepairWindow(t *testing.T) {
	l := activeLedger(t, 6, day(2026, time.March, 1))

	sweepAt := time.Date(2026, time.March, 3, 0, 30, 0, 0, time.UTC)
	require.Equal(t, SweepLost, l.AdvanceRiskState(sweepAt).Outcome)

	returnAt := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	out := l.RecordActivity(day(2026, time.March, 3), returnAt)

	assert.Equal(t, DailyStarted, out.Outcome)
	assert.Equal(t, 1, out.DaysMissed)
	assert.Equal(t, 1, l.DailyCurrent)

	// The snapshot the sweep took is untouched and the window stays open.
	assert.Equal(t, 6, l.LostStreakValue)
	assert.Equal(t, sweepAt, l.LostAt)
	assert.True(t, l.RepairEligible(returnAt))
	assert.NoError(t, l.Validate())

	// Repairing inside the window still restores the six-day streak.
	restored, err := l.ApplyRepair(returnAt)
	require.NoError(t, err)
	assert.Equal(t, 6, restored)
	assert.Equal(t, 6, l.DailyCurrent)
	assert.Equal(t, StateActive, l.DailyState)
	assert.NoError(t, l.Validate())
}

func TestSweepLossThenContinuedStreakClosesWindow(t *testing.T) {
	l := activeLedger(t, 6, day(2026, time.March, 1))

	sweepAt := time.Date(2026, time.March, 3, 0, 30, 0, 0, time.UTC)
	require.Equal(t, SweepLost, l.AdvanceRiskState(sweepAt).Outcome)

	// An uncovered return starts a fresh one-day streak alongside the open
	// window; continuing it the next day closes the window for good.
	require.Equal(t, DailyStarted,
		l.RecordActivity(day(2026, time.March, 3), time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)).Outcome)

	out := l.RecordActivity(day(2026, time.March, 4), time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC))

	assert.Equal(t, DailyContinued, out.Outcome)
	assert.True(t, out.WindowClosed)
	assert.Equal(t, 2, l.DailyCurrent)
	assert.Zero(t, l.LostStreakValue)
	assert.Equal(t, StateActive, l.DailyState)
	assert.NoError(t, l.Validate())
}
