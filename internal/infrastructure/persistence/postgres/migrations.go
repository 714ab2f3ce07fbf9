package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: STREAK LEDGERS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS streak_ledgers (
    user_id BIGINT PRIMARY KEY,
    daily_current INTEGER NOT NULL DEFAULT 0,
    daily_max INTEGER NOT NULL DEFAULT 0,
    longest_ever INTEGER NOT NULL DEFAULT 0,
    daily_level INTEGER NOT NULL DEFAULT 1,
    daily_state VARCHAR(20) NOT NULL DEFAULT 'active',
    last_activity_date DATE,
    total_days_active INTEGER NOT NULL DEFAULT 0,
    at_risk_notified BOOLEAN NOT NULL DEFAULT FALSE,
    critical_notified BOOLEAN NOT NULL DEFAULT FALSE,
    lost_streak_value INTEGER NOT NULL DEFAULT 0,
    lost_at TIMESTAMP WITH TIME ZONE,
    correct_current INTEGER NOT NULL DEFAULT 0,
    correct_max INTEGER NOT NULL DEFAULT 0,
    freeze_count INTEGER NOT NULL DEFAULT 0,
    shield_count INTEGER NOT NULL DEFAULT 0,
    utc_offset_minutes INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_daily_state CHECK (daily_state IN ('active', 'at_risk', 'critical', 'lost', 'recoverable')),
    CONSTRAINT non_negative_counters CHECK (
        daily_current >= 0 AND daily_max >= 0 AND longest_ever >= 0 AND
        correct_current >= 0 AND correct_max >= 0 AND total_days_active >= 0
    ),
    CONSTRAINT counter_ordering CHECK (daily_current <= daily_max AND daily_max <= longest_ever AND correct_current <= correct_max),
    CONSTRAINT non_negative_inventory CHECK (freeze_count >= 0 AND shield_count >= 0),
    CONSTRAINT loss_fields_paired CHECK (
        ((lost_streak_value != 0 OR lost_at IS NOT NULL) AND daily_state IN ('lost', 'recoverable'))
        OR (lost_streak_value = 0 AND lost_at IS NULL AND daily_state NOT IN ('lost', 'recoverable'))
    )
);

-- The sweep scans streaks that can still change state without activity.
CREATE INDEX IF NOT EXISTS idx_streak_ledgers_monitored
    ON streak_ledgers(user_id)
    WHERE daily_current > 0 OR daily_state IN ('lost', 'recoverable');
`

const migration001Down = `
DROP TABLE IF EXISTS streak_ledgers;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: MILESTONE RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS streak_milestones (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id BIGINT NOT NULL REFERENCES streak_ledgers(user_id) ON DELETE CASCADE,
    milestone_type VARCHAR(20) NOT NULL,
    value INTEGER NOT NULL,
    achieved_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    reward_descriptor VARCHAR(200) NOT NULL DEFAULT '',

    CONSTRAINT valid_milestone_type CHECK (milestone_type IN ('daily', 'correct')),
    CONSTRAINT positive_value CHECK (value > 0),

    -- One reward per (user, type, value), ever. The insert race decides
    -- which transaction applies the reward.
    UNIQUE(user_id, milestone_type, value)
);

CREATE INDEX IF NOT EXISTS idx_streak_milestones_user ON streak_milestones(user_id, achieved_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS streak_milestones;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PROTECTION AUDIT LOG
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS protection_log (
    id UUID PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES streak_ledgers(user_id) ON DELETE CASCADE,
    kind VARCHAR(20) NOT NULL,
    quantity INTEGER NOT NULL,
    streak_value_saved INTEGER NOT NULL DEFAULT 0,
    amount INTEGER NOT NULL DEFAULT 0,
    reason VARCHAR(30) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_kind CHECK (kind IN ('freeze_grant', 'freeze_consume', 'shield_grant', 'shield_consume', 'repair')),
    CONSTRAINT valid_reason CHECK (reason IN ('purchase', 'milestone_reward', 'missed_day', 'wrong_answer', 'repair')),
    CONSTRAINT positive_quantity CHECK (quantity > 0),
    CONSTRAINT non_negative_amount CHECK (amount >= 0)
);

CREATE INDEX IF NOT EXISTS idx_protection_log_user ON protection_log(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_protection_log_user_kind ON protection_log(user_id, kind, created_at DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS protection_log;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_streak_ledgers", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_streak_milestones", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_protection_log", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// Migrator applies the embedded migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Pool().Exec(ctx, query); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	query := fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName)

	rows, err := m.conn.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}

		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("execute migration %d: %w", mig.Version, err)
			}
			insert := fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName)
			_, err := tx.Exec(ctx, insert, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}
