package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/quizhub/streak-engine/internal/domain/milestone"
	"github.com/quizhub/streak-engine/internal/domain/protection"
	"github.com/quizhub/streak-engine/internal/domain/shared"
	"github.com/quizhub/streak-engine/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY
// Implements streak.Repository. The per-user row lock (SELECT ... FOR
// UPDATE) serializes concurrent mutations for one user; the milestone
// unique constraint plus ON CONFLICT DO NOTHING decides which transaction
// applies a reward.
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository is the PostgreSQL implementation of streak.Repository.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

const ledgerColumns = `
	user_id, daily_current, daily_max, longest_ever, daily_level,
	last_activity_date, total_days_active, daily_state,
	at_risk_notified, critical_notified, lost_streak_value, lost_at,
	correct_current, correct_max, freeze_count, shield_count,
	utc_offset_minutes, created_at, updated_at`

// Get implements streak.Repository.
func (r *LedgerRepository) Get(ctx context.Context, userID shared.UserID) (*streak.Ledger, error) {
	query := `SELECT` + ledgerColumns + ` FROM streak_ledgers WHERE user_id = $1`

	ledger, err := scanLedger(r.conn.Pool().QueryRow(ctx, query, userID.Int64()))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLedgerNotFound
		}
		return nil, storageErr("Get", err)
	}
	return ledger, nil
}

// Mutate implements streak.Repository.
//
// The sequence inside the transaction:
//  1. lock (or lazily insert) the user's row
//  2. run the mutator against the in-memory ledger
//  3. for each milestone grant, insert the record; skip the reward when a
//     previous transaction already holds it
//  4. validate invariants and write the row plus all audit entries
func (r *LedgerRepository) Mutate(ctx context.Context, userID shared.UserID, fn streak.Mutator) (*streak.MutationOutcome, error) {
	if !userID.IsValid() {
		return nil, shared.ErrInvalidUserID
	}

	var outcome *streak.MutationOutcome

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		ledger, err := r.lockLedger(ctx, tx, userID)
		if err != nil {
			return err
		}

		mutation, err := fn(ledger)
		if err != nil {
			return err
		}
		if mutation == nil {
			mutation = &streak.Mutation{}
		}

		outcome = &streak.MutationOutcome{
			Ledger: ledger,
			Events: mutation.Events,
		}

		logEntries := mutation.Log

		now := time.Now().UTC()
		for _, g := range mutation.Grants {
			won, err := r.insertMilestone(ctx, tx, g.Record)
			if err != nil {
				return err
			}
			if !won {
				continue
			}
			grantLog, event := streak.ApplyGrant(ledger, g, now)
			logEntries = append(logEntries, grantLog...)
			outcome.GrantedMilestones = append(outcome.GrantedMilestones, g)
			outcome.Events = append(outcome.Events, event)
		}

		if mutation.NoChange && len(logEntries) == 0 && len(outcome.GrantedMilestones) == 0 {
			return nil
		}

		if err := ledger.Validate(); err != nil {
			return err
		}
		if err := r.saveLedger(ctx, tx, ledger); err != nil {
			return err
		}
		return r.insertLog(ctx, tx, logEntries)
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// ListMonitored implements streak.Repository. User IDs stream in primary
// key order so the sweep can page through arbitrarily large populations
// with a fixed memory footprint.
func (r *LedgerRepository) ListMonitored(ctx context.Context, batchSize int, fn func(userID shared.UserID) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}

	query := `
		SELECT user_id FROM streak_ledgers
		WHERE (daily_current > 0 OR daily_state IN ('lost', 'recoverable'))
		  AND user_id > $1
		ORDER BY user_id
		LIMIT $2`

	var cursor int64
	for {
		ids, err := r.fetchMonitoredPage(ctx, query, cursor, batchSize)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(shared.UserID(id)); err != nil {
				return err
			}
		}
		cursor = ids[len(ids)-1]
	}
}

func (r *LedgerRepository) fetchMonitoredPage(ctx context.Context, query string, cursor int64, limit int) ([]int64, error) {
	rows, err := r.conn.Pool().Query(ctx, query, cursor, limit)
	if err != nil {
		return nil, storageErr("ListMonitored", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("ListMonitored", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// lockLedger loads the user's row under FOR UPDATE, creating it first if
// this is the user's first event. A concurrent first event loses the
// insert race and falls back to locking the winner's row.
func (r *LedgerRepository) lockLedger(ctx context.Context, tx pgx.Tx, userID shared.UserID) (*streak.Ledger, error) {
	query := `SELECT` + ledgerColumns + ` FROM streak_ledgers WHERE user_id = $1 FOR UPDATE`

	ledger, err := scanLedger(tx.QueryRow(ctx, query, userID.Int64()))
	if err == nil {
		return ledger, nil
	}
	if !IsNoRows(err) {
		return nil, storageErr("Mutate", err)
	}

	fresh := streak.NewLedger(userID, time.Now().UTC())
	insert := `
		INSERT INTO streak_ledgers (user_id, daily_state, daily_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := tx.Exec(ctx, insert,
		userID.Int64(), string(fresh.DailyState), int(fresh.DailyLevel), fresh.CreatedAt, fresh.UpdatedAt); err != nil {
		return nil, storageErr("Mutate", err)
	}

	ledger, err = scanLedger(tx.QueryRow(ctx, query, userID.Int64()))
	if err != nil {
		return nil, storageErr("Mutate", err)
	}
	return ledger, nil
}

func (r *LedgerRepository) saveLedger(ctx context.Context, tx pgx.Tx, l *streak.Ledger) error {
	query := `
		UPDATE streak_ledgers SET
			daily_current = $2, daily_max = $3, longest_ever = $4, daily_level = $5,
			last_activity_date = $6, total_days_active = $7, daily_state = $8,
			at_risk_notified = $9, critical_notified = $10,
			lost_streak_value = $11, lost_at = $12,
			correct_current = $13, correct_max = $14,
			freeze_count = $15, shield_count = $16,
			utc_offset_minutes = $17, updated_at = $18
		WHERE user_id = $1`

	var lastActivity *time.Time
	if !l.LastActivityDate.IsZero() {
		t := l.LastActivityDate.Time(time.UTC)
		lastActivity = &t
	}
	var lostAt *time.Time
	if !l.LostAt.IsZero() {
		t := l.LostAt
		lostAt = &t
	}

	_, err := tx.Exec(ctx, query,
		l.UserID.Int64(),
		l.DailyCurrent, l.DailyMax, l.LongestEver, int(l.DailyLevel),
		lastActivity, l.TotalDaysActive, string(l.DailyState),
		l.AtRiskNotified, l.CriticalNotified,
		l.LostStreakValue, lostAt,
		l.CorrectCurrent, l.CorrectMax,
		l.FreezeCount, l.ShieldCount,
		l.UTCOffsetMinutes, l.UpdatedAt,
	)
	if err != nil {
		return storageErr("Mutate", err)
	}
	return nil
}

// insertMilestone inserts the record and reports whether this transaction
// won the insert. ON CONFLICT DO NOTHING makes a duplicate crossing a
// silent no-op instead of an error.
func (r *LedgerRepository) insertMilestone(ctx context.Context, tx pgx.Tx, rec milestone.Record) (bool, error) {
	query := `
		INSERT INTO streak_milestones (user_id, milestone_type, value, achieved_at, reward_descriptor)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, milestone_type, value) DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		rec.UserID.Int64(), rec.Type.String(), rec.Value, rec.AchievedAt, rec.RewardDescriptor)
	if err != nil {
		return false, storageErr("Mutate", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *LedgerRepository) insertLog(ctx context.Context, tx pgx.Tx, entries []protection.Transaction) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO protection_log (id, user_id, kind, quantity, streak_value_saved, amount, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(query,
			e.ID, e.UserID.Int64(), string(e.Kind), e.Quantity,
			e.StreakValueSaved, e.Amount.Int(), string(e.Reason), e.CreatedAt)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range entries {
		if _, err := results.Exec(); err != nil {
			return storageErr("Mutate", err)
		}
	}
	return nil
}

// scanLedger reads one ledger row.
func scanLedger(row pgx.Row) (*streak.Ledger, error) {
	var (
		l            streak.Ledger
		userID       int64
		dailyLevel   int
		dailyState   string
		lastActivity *time.Time
		lostAt       *time.Time
	)

	err := row.Scan(
		&userID, &l.DailyCurrent, &l.DailyMax, &l.LongestEver, &dailyLevel,
		&lastActivity, &l.TotalDaysActive, &dailyState,
		&l.AtRiskNotified, &l.CriticalNotified, &l.LostStreakValue, &lostAt,
		&l.CorrectCurrent, &l.CorrectMax, &l.FreezeCount, &l.ShieldCount,
		&l.UTCOffsetMinutes, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.UserID = shared.UserID(userID)
	l.DailyLevel = streak.Level(dailyLevel)
	l.DailyState = streak.State(dailyState)
	if lastActivity != nil {
		l.LastActivityDate = shared.DayOf(lastActivity.UTC())
	}
	if lostAt != nil {
		l.LostAt = lostAt.UTC()
	}
	return &l, nil
}

// storageErr classifies a driver error for the retry layer: serialization
// conflicts retry as concurrent modification, everything else surfaces as
// storage unavailability.
func storageErr(op string, err error) error {
	if IsSerializationFailure(err) {
		return shared.WrapError("streak", op, shared.ErrConcurrentModification, "serialization conflict", err)
	}
	return shared.WrapError("streak", op, shared.ErrStorageUnavailable, "storage operation failed", err)
}

var _ streak.Repository = (*LedgerRepository)(nil)
