package command

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizhub/streak-engine/internal/domain/milestone"
	"github.com/quizhub/streak-engine/internal/domain/protection"
	"github.com/quizhub/streak-engine/internal/domain/shared"
	"github.com/quizhub/streak-engine/internal/domain/streak"
	"github.com/quizhub/streak-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST DOUBLES
// ══════════════════════════════════════════════════════════════════════════════

// fakeLedgerRepo is an in-memory streak.Repository with the same
// transactional semantics as the postgres implementation: mutations commit
// atomically, grants apply exactly once per (user, type, value), and a
// configurable number of leading calls fail with a retryable error.
type fakeLedgerRepo struct {
	mu       sync.Mutex
	ledgers  map[shared.UserID]*streak.Ledger
	granted  map[string]bool
	log      []protection.Transaction
	failures int
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{
		ledgers: make(map[shared.UserID]*streak.Ledger),
		granted: make(map[string]bool),
	}
}

func (r *fakeLedgerRepo) Get(_ context.Context, userID shared.UserID) (*streak.Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[userID]
	if !ok {
		return nil, shared.ErrLedgerNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *fakeLedgerRepo) Mutate(_ context.Context, userID shared.UserID, fn streak.Mutator) (*streak.MutationOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failures > 0 {
		r.failures--
		return nil, shared.ErrConcurrentModification
	}

	// Work on a copy so a failed mutator leaves nothing behind,
	// mirroring a rolled back transaction.
	var work streak.Ledger
	if existing, ok := r.ledgers[userID]; ok {
		work = *existing
	} else {
		work = *streak.NewLedger(userID, time.Now().UTC())
	}

	mutation, err := fn(&work)
	if err != nil {
		return nil, err
	}

	outcome := &streak.MutationOutcome{Ledger: &work, Events: mutation.Events}

	now := time.Now().UTC()
	for _, g := range mutation.Grants {
		key := fmt.Sprintf("%d|%s|%d", g.Record.UserID.Int64(), g.Record.Type, g.Record.Value)
		if r.granted[key] {
			continue
		}
		r.granted[key] = true
		grantLog, event := streak.ApplyGrant(&work, g, now)
		mutation.Log = append(mutation.Log, grantLog...)
		outcome.GrantedMilestones = append(outcome.GrantedMilestones, g)
		outcome.Events = append(outcome.Events, event)
	}

	if mutation.NoChange && len(mutation.Log) == 0 && len(outcome.GrantedMilestones) == 0 {
		return outcome, nil
	}

	if err := work.Validate(); err != nil {
		return nil, err
	}

	r.ledgers[userID] = &work
	r.log = append(r.log, mutation.Log...)
	return outcome, nil
}

func (r *fakeLedgerRepo) ListMonitored(_ context.Context, _ int, fn func(shared.UserID) error) error {
	r.mu.Lock()
	ids := make([]shared.UserID, 0, len(r.ledgers))
	for id := range r.ledgers {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeLedgerRepo) logOfKind(kind protection.Kind) []protection.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protection.Transaction
	for _, tx := range r.log {
		if tx.Kind == kind {
			out = append(out, tx)
		}
	}
	return out
}

// fakeBus collects published events.
type fakeBus struct {
	mu     sync.Mutex
	events []shared.Event
}

func (b *fakeBus) Publish(event shared.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *fakeBus) typesSeen() []shared.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]shared.EventType, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.EventType())
	}
	return out
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

func utc(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordActivityStartsStreak(t *testing.T) {
	repo := newFakeLedgerRepo()
	bus := &fakeBus{}
	h := NewRecordActivityHandler(repo, bus, testLogger())

	res, err := h.Handle(context.Background(), RecordActivityCommand{
		UserID:     shared.UserID(1),
		OccurredAt: utc(2026, time.March, 1, 13),
	})

	require.NoError(t, err)
	assert.Equal(t, streak.DailyStarted, res.Outcome)
	assert.Equal(t, 1, res.Snapshot.DailyCurrent)
	assert.Contains(t, bus.typesSeen(), shared.EventStreakStarted)
}

func TestRecordActivityRejectsInvalidUser(t *testing.T) {
	h := NewRecordActivityHandler(newFakeLedgerRepo(), &fakeBus{}, testLogger())

	_, err := h.Handle(context.Background(), RecordActivityCommand{UserID: 0})

	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}

func TestRecordActivitySameDayIsIdempotent(t *testing.T) {
	repo := newFakeLedgerRepo()
	bus := &fakeBus{}
	h := NewRecordActivityHandler(repo, bus, testLogger())
	cmd := RecordActivityCommand{UserID: shared.UserID(1), OccurredAt: utc(2026, time.March, 1, 13)}

	_, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)

	cmd.OccurredAt = utc(2026, time.March, 1, 20)
	res, err := h.Handle(context.Background(), cmd)

	require.NoError(t, err)
	assert.Equal(t, streak.DailyReentry, res.Outcome)
	assert.Equal(t, 1, res.Snapshot.DailyCurrent)
	// Only the first call published anything.
	assert.Len(t, bus.typesSeen(), 1)
}

func TestRecordActivityGrantsMilestoneOnce(t *testing.T) {
	repo := newFakeLedgerRepo()
	bus := &fakeBus{}
	h := NewRecordActivityHandler(repo, bus, testLogger())

	// Seven consecutive days cross the first daily milestone.
	for d := 1; d <= 7; d++ {
		_, err := h.Handle(context.Background(), RecordActivityCommand{
			UserID:     shared.UserID(1),
			OccurredAt: utc(2026, time.March, d, 13),
		})
		require.NoError(t, err)
	}

	ledger, err := repo.Get(context.Background(), shared.UserID(1))
	require.NoError(t, err)
	assert.Equal(t, 7, ledger.DailyCurrent)
	assert.Equal(t, 1, ledger.FreezeCount, "7-day milestone rewards one freeze")
	assert.Contains(t, bus.typesSeen(), shared.EventMilestoneAchieved)

	grants := repo.logOfKind(protection.KindFreezeGrant)
	require.Len(t, grants, 1)
	assert.Equal(t, protection.ReasonMilestone, grants[0].Reason)
}

func TestRecordActivityFreezeCoversGap(t *testing.T) {
	repo := newFakeLedgerRepo()
	bus := &fakeBus{}
	h := NewRecordActivityHandler(repo, bus, testLogger())
	ctx := context.Background()
	uid := shared.UserID(1)

	_, err := h.Handle(ctx, RecordActivityCommand{UserID: uid, OccurredAt: utc(2026, time.March, 1, 13)})
	require.NoError(t, err)

	gh := NewGrantItemHandler(repo, bus, testLogger())
	_, err = gh.Handle(ctx, GrantItemCommand{
		UserID: uid, Kind: streak.ItemFreeze, Quantity: 1, AmountPaid: protection.FreezePrice,
		OccurredAt: utc(2026, time.March, 1, 14),
	})
	require.NoError(t, err)

	// Skip March 2 entirely; the freeze should bridge it.
	res, err := h.Handle(ctx, RecordActivityCommand{UserID: uid, OccurredAt: utc(2026, time.March, 3, 13)})

	require.NoError(t, err)
	assert.Equal(t, streak.DailyFrozen, res.Outcome)
	assert.Equal(t, 1, res.FreezesUsed)
	assert.Equal(t, 2, res.Snapshot.DailyCurrent)
	assert.Equal(t, 0, res.Snapshot.FreezeCount)
	assert.Contains(t, bus.typesSeen(), shared.EventStreakFrozen)

	consumed := repo.logOfKind(protection.KindFreezeConsume)
	require.Len(t, consumed, 1)
	assert.Equal(t, protection.ReasonMissedDay, consumed[0].Reason)
	assert.Equal(t, 2, consumed[0].StreakValueSaved)
}

func TestRecordActivityUncoveredGapBreaksStreak(t *testing.T) {
	repo := newFakeLedgerRepo()
	bus := &fakeBus{}
	h := NewRecordActivityHandler(repo, bus, testLogger())
	ctx := context.Background()
	uid := shared.UserID(1)

	for d := 1; d <= 6; d++ {
		_, err := h.Handle(ctx, RecordActivityCommand{UserID: uid, OccurredAt: utc(2026, time.March, d, 13)})
		require.NoError(t, err)
	}

	// Two missed days and no freezes.
	res, err := h.Handle(ctx, RecordActivityCommand{UserID: uid, OccurredAt: utc(2026, time.March, 9, 13)})

	require.NoError(t, err)
	assert.Equal(t, streak.DailyLost, res.Outcome)
	assert.True(t, res.StreakLost)
	assert.Equal(t, 6, res.LostValue)
	assert.Equal(t, 1, res.Snapshot.DailyCurrent)
	assert.Equal(t, streak.StateLost, res.Snapshot.DailyState)
	assert.Contains(t, bus.typesSeen(), shared.EventStreakLost)
}

func TestRecordActivityRetriesTransientFailure(t *testing.T) {
	repo := newFakeLedgerRepo()
	repo.failures = 1
	bus := &fakeBus{}
	h := NewRecordActivityHandler(repo, bus, testLogger())

	res, err := h.Handle(context.Background(), RecordActivityCommand{
		UserID:     shared.UserID(1),
		OccurredAt: utc(2026, time.March, 1, 13),
	})

	require.NoError(t, err)
	assert.Equal(t, streak.DailyStarted, res.Outcome)
	assert.Len(t, bus.typesSeen(), 1, "the retried attempt publishes exactly once")
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ANSWER
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordAnswerExtendsAndGrantsMilestone(t *testing.T) {
	repo := newFakeLedgerRepo()
	bus := &fakeBus{}
	h := NewRecordAnswerHandler(repo, bus, testLogger())
	ctx := context.Background()

	var last *RecordAnswerResult
	for i := 0; i < 5; i++ {
		var err error
		last, err = h.Handle(ctx, RecordAnswerCommand{UserID: shared.UserID(1), IsCorrect: true})
		require.NoError(t, err)
	}

	assert.Equal(t, streak.AnswerExtended, last.Outcome)
	assert.Equal(t, 5, last.Snapshot.CorrectCurrent)
	require.Len(t, last.Milestones, 1)
	assert.Equal(t, milestone.TypeCorrect, last.Milestones[0].Record.Type)
	assert.Equal(t, 5, last.Milestones[0].Record.Value)
	assert.Contains(t, bus.typesSeen(), shared.EventMilestoneAchieved)
}

func TestRecordAnswerShieldAbsorbsWrongAnswer(t *testing.T) {
	repo := newFakeLedgerRepo()
	bus := &fakeBus{}
	ctx := context.Background()
	uid := shared.UserID(1)

	gh := NewGrantItemHandler(repo, bus, testLogger())
	_, err := gh.Handle(ctx, GrantItemCommand{UserID: uid, Kind: streak.ItemShield, Quantity: 1})
	require.NoError(t, err)

	h := NewRecordAnswerHandler(repo, bus, testLogger())
	for i := 0; i < 3; i++ {
		_, err := h.Handle(ctx, RecordAnswerCommand{UserID: uid, IsCorrect: true})
		require.NoError(t, err)
	}

	res, err := h.Handle(ctx, RecordAnswerCommand{UserID: uid, IsCorrect: false})

	require.NoError(t, err)
	assert.Equal(t, streak.AnswerShielded, res.Outcome)
	assert.Equal(t, 3, res.Snapshot.CorrectCurrent)
	assert.Equal(t, 0, res.Snapshot.ShieldCount)
	assert.Contains(t, bus.typesSeen(), shared.EventAnswerStreakShielded)

	consumed := repo.logOfKind(protection.KindShieldConsume)
	require.Len(t, consumed, 1)
	assert.Equal(t, protection.ReasonWrongAnswer, consumed[0].Reason)
	assert.Equal(t, 3, consumed[0].StreakValueSaved)
}

func TestRecordAnswerResetWithoutShield(t *testing.T) {
	repo := newFakeLedgerRepo()
	bus := &fakeBus{}
	h := NewRecordAnswerHandler(repo, bus, testLogger())
	ctx := context.Background()
	uid := shared.UserID(1)

	for i := 0; i < 3; i++ {
		_, err := h.Handle(ctx, RecordAnswerCommand{UserID: uid, IsCorrect: true})
		require.NoError(t, err)
	}

	res, err := h.Handle(ctx, RecordAnswerCommand{UserID: uid, IsCorrect: false})

	require.NoError(t, err)
	assert.Equal(t, streak.AnswerReset, res.Outcome)
	assert.Equal(t, 3, res.LostValue)
	assert.Equal(t, 0, res.Snapshot.CorrectCurrent)
	assert.Equal(t, 3, res.Snapshot.CorrectMax)
	assert.Contains(t, bus.typesSeen(), shared.EventAnswerStreakReset)
}

// ══════════════════════════════════════════════════════════════════════════════
// GRANT ITEM
// ══════════════════════════════════════════════════════════════════════════════

func TestGrantItemCreditsInventory(t *testing.T) {
	repo := newFakeLedgerRepo()
	bus := &fakeBus{}
	h := NewGrantItemHandler(repo, bus, testLogger())

	res, err := h.Handle(context.Background(), GrantItemCommand{
		UserID:     shared.UserID(1),
		Kind:       streak.ItemFreeze,
		Quantity:   2,
		AmountPaid: 2 * protection.FreezePrice,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.NewTotal)
	assert.Equal(t, 2, res.Snapshot.FreezeCount)
	assert.Contains(t, bus.typesSeen(), shared.EventItemGranted)

	logged := repo.logOfKind(protection.KindFreezeGrant)
	require.Len(t, logged, 1)
	assert.Equal(t, protection.ReasonPurchase, logged[0].Reason)
	assert.Equal(t, 2*protection.FreezePrice, logged[0].Amount)
}

func TestGrantItemValidation(t *testing.T) {
	h := NewGrantItemHandler(newFakeLedgerRepo(), &fakeBus{}, testLogger())
	ctx := context.Background()

	_, err := h.Handle(ctx, GrantItemCommand{UserID: 0, Kind: streak.ItemFreeze, Quantity: 1})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)

	_, err = h.Handle(ctx, GrantItemCommand{UserID: 1, Kind: streak.ItemKind("banana"), Quantity: 1})
	assert.ErrorIs(t, err, shared.ErrInvalidItemKind)

	_, err = h.Handle(ctx, GrantItemCommand{UserID: 1, Kind: streak.ItemShield, Quantity: 0})
	assert.ErrorIs(t, err, shared.ErrInvalidQuantity)
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLY REPAIR
// ══════════════════════════════════════════════════════════════════════════════

// breakStreak drives a user to a lost streak of the given length.
func breakStreak(t *testing.T, repo *fakeLedgerRepo, bus *fakeBus, uid shared.UserID, length int) time.Time {
	t.Helper()
	h := NewRecordActivityHandler(repo, bus, testLogger())
	ctx := context.Background()

	for d := 1; d <= length; d++ {
		_, err := h.Handle(ctx, RecordActivityCommand{UserID: uid, OccurredAt: utc(2026, time.March, d, 13)})
		require.NoError(t, err)
	}
	lostAt := utc(2026, time.March, length+3, 13)
	res, err := h.Handle(ctx, RecordActivityCommand{UserID: uid, OccurredAt: lostAt})
	require.NoError(t, err)
	require.True(t, res.StreakLost)
	return lostAt
}

func TestApplyRepairRestoresStreak(t *testing.T) {
	repo := newFakeLedgerRepo()
	bus := &fakeBus{}
	uid := shared.UserID(1)
	lostAt := breakStreak(t, repo, bus, uid, 10)

	h := NewApplyRepairHandler(repo, bus, testLogger())
	res, err := h.Handle(context.Background(), ApplyRepairCommand{
		UserID:     uid,
		AmountPaid: 149,
		OccurredAt: lostAt.Add(3 * time.Hour),
	})

	require.NoError(t, err)
	assert.Equal(t, 10, res.Restored)
	assert.Equal(t, shared.Price(149), res.Price)
	assert.Equal(t, 10, res.Snapshot.DailyCurrent)
	assert.Equal(t, streak.StateActive, res.Snapshot.DailyState)
	assert.Contains(t, bus.typesSeen(), shared.EventStreakRepaired)

	repairs := repo.logOfKind(protection.KindRepair)
	require.Len(t, repairs, 1)
	assert.Equal(t, 10, repairs[0].StreakValueSaved)
	assert.Equal(t, shared.Price(149), repairs[0].Amount)
}

func TestApplyRepairOutsideWindow(t *testing.T) {
	repo := newFakeLedgerRepo()
	bus := &fakeBus{}
	uid := shared.UserID(1)
	lostAt := breakStreak(t, repo, bus, uid, 10)

	h := NewApplyRepairHandler(repo, bus, testLogger())
	_, err := h.Handle(context.Background(), ApplyRepairCommand{
		UserID:     uid,
		OccurredAt: lostAt.Add(49 * time.Hour),
	})

	assert.ErrorIs(t, err, shared.ErrRepairWindowOver)
}

func TestApplyRepairNothingToRepair(t *testing.T) {
	repo := newFakeLedgerRepo()
	bus := &fakeBus{}
	h := NewApplyRepairHandler(repo, bus, testLogger())

	// Active streak, nothing lost.
	ah := NewRecordActivityHandler(repo, bus, testLogger())
	_, err := ah.Handle(context.Background(), RecordActivityCommand{
		UserID: shared.UserID(1), OccurredAt: utc(2026, time.March, 1, 13),
	})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), ApplyRepairCommand{UserID: shared.UserID(1)})
	assert.ErrorIs(t, err, shared.ErrNoLostStreak)
}

func TestApplyRepairTwiceFailsSecondTime(t *testing.T) {
	repo := newFakeLedgerRepo()
	bus := &fakeBus{}
	uid := shared.UserID(1)
	lostAt := breakStreak(t, repo, bus, uid, 10)

	h := NewApplyRepairHandler(repo, bus, testLogger())
	_, err := h.Handle(context.Background(), ApplyRepairCommand{UserID: uid, OccurredAt: lostAt.Add(time.Hour)})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), ApplyRepairCommand{UserID: uid, OccurredAt: lostAt.Add(2 * time.Hour)})
	assert.ErrorIs(t, err, shared.ErrNoLostStreak)
}

func TestRecordActivityAfterSweepLossFreezeStillSaves(t *testing.T) {
	repo := newFakeLedgerRepo()
	bus := &fakeBus{}
	uid := shared.UserID(1)
	h := NewRecordActivityHandler(repo, bus, testLogger())
	ctx := context.Background()

	// Seven days of activity; the day-7 milestone grants one freeze.
	for d := 1; d <= 7; d++ {
		_, err := h.Handle(ctx, RecordActivityCommand{UserID: uid, OccurredAt: utc(2026, time.March, d, 13)})
		require.NoError(t, err)
	}

	// The background sweep takes the loss first, 25h after day end.
	repo.mu.Lock()
	res := repo.ledgers[uid].AdvanceRiskState(utc(2026, time.March, 9, 1))
	repo.mu.Unlock()
	require.Equal(t, streak.SweepLost, res.Outcome)

	// The user comes back later that day. The freeze still covers the gap
	// and the streak continues from where the sweep snapshotted it.
	out, err := h.Handle(ctx, RecordActivityCommand{UserID: uid, OccurredAt: utc(2026, time.March, 9, 13)})
	require.NoError(t, err)

	assert.Equal(t, streak.DailyFrozen, out.Outcome)
	assert.Equal(t, 1, out.FreezesUsed)
	assert.Equal(t, 8, out.Snapshot.DailyCurrent)
	assert.Equal(t, 0, out.Snapshot.FreezeCount)
	assert.Equal(t, streak.StateActive, out.Snapshot.DailyState)
	assert.False(t, out.StreakLost)

	assert.Contains(t, bus.typesSeen(), shared.EventStreakFrozen)
	assert.NotContains(t, bus.typesSeen(), shared.EventStreakLost)
}

func TestRecordActivityStoresUserOffset(t *testing.T) {
	repo := newFakeLedgerRepo()
	bus := &fakeBus{}
	uid := shared.UserID(1)
	h := NewRecordActivityHandler(repo, bus, testLogger())
	ctx := context.Background()
	offset := 300 // UTC+05:00

	// 22:00 UTC is already the next local day at UTC+5.
	res, err := h.Handle(ctx, RecordActivityCommand{
		UserID:           uid,
		OccurredAt:       utc(2026, time.March, 1, 22),
		UTCOffsetMinutes: &offset,
	})
	require.NoError(t, err)
	require.Equal(t, streak.DailyStarted, res.Outcome)

	repo.mu.Lock()
	l := repo.ledgers[uid]
	require.Equal(t, 300, l.UTCOffsetMinutes)
	require.Equal(t, shared.Day{Year: 2026, Month: time.March, DayOfMonth: 2}, l.LastActivityDate)
	repo.mu.Unlock()

	// 20:00 UTC the next day is local March 3 01:00, one day later: the
	// stored offset keeps driving day boundaries without being resent.
	res, err = h.Handle(ctx, RecordActivityCommand{UserID: uid, OccurredAt: utc(2026, time.March, 2, 20)})
	require.NoError(t, err)
	assert.Equal(t, streak.DailyContinued, res.Outcome)
	assert.Equal(t, 2, res.Snapshot.DailyCurrent)
}

func TestRecordActivityRejectsImpossibleOffset(t *testing.T) {
	repo := newFakeLedgerRepo()
	h := NewRecordActivityHandler(repo, &fakeBus{}, testLogger())
	offset := 15 * 60

	_, err := h.Handle(context.Background(), RecordActivityCommand{
		UserID:           shared.UserID(1),
		OccurredAt:       utc(2026, time.March, 1, 13),
		UTCOffsetMinutes: &offset,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
