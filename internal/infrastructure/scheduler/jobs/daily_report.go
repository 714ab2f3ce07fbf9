package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quizhub/streak-engine/internal/domain/shared"
	"github.com/quizhub/streak-engine/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY REPORT JOB
// Once a day, walks the monitored ledger population and logs an
// operational summary: streaks by risk state, protection items in
// circulation, open repair windows. Read-only; it never mutates a ledger.
// ══════════════════════════════════════════════════════════════════════════════

// DailyReportJob produces the daily operational summary.
type DailyReportJob struct {
	ledgers streak.Repository
	logger  *slog.Logger
	config  DailyReportConfig

	lastRunStats atomic.Value // *DailyReportStats
}

// DailyReportConfig contains configuration for the report.
type DailyReportConfig struct {
	// BatchSize is how many users to page at once from storage.
	BatchSize int

	// Timeout bounds one full report run.
	Timeout time.Duration
}

// DailyReportStats contains counters from one report run.
type DailyReportStats struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Scanned     int `json:"scanned"`
	Active      int `json:"active"`
	AtRisk      int `json:"at_risk"`
	Critical    int `json:"critical"`
	Lost        int `json:"lost"`
	Recoverable int `json:"recoverable"`

	OpenRepairWindows int `json:"open_repair_windows"`
	FreezesHeld       int `json:"freezes_held"`
	ShieldsHeld       int `json:"shields_held"`
	Errors            int `json:"errors"`
}

// NewDailyReportJob creates the job.
func NewDailyReportJob(ledgers streak.Repository, logger *slog.Logger, config DailyReportConfig) *DailyReportJob {
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	return &DailyReportJob{
		ledgers: ledgers,
		logger:  logger.With(slog.String("job", "daily_report")),
		config:  config,
	}
}

// Name implements scheduler.Job.
func (j *DailyReportJob) Name() string {
	return "daily_report"
}

// Description implements scheduler.Job.
func (j *DailyReportJob) Description() string {
	return "Logs a daily operational summary of streak states and protection inventory"
}

// Run implements scheduler.Job.
func (j *DailyReportJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	stats := &DailyReportStats{StartedAt: time.Now().UTC()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastRunStats.Store(stats)
	}()

	now := time.Now().UTC()

	err := j.ledgers.ListMonitored(ctx, j.config.BatchSize, func(userID shared.UserID) error {
		stats.Scanned++
		l, err := j.ledgers.Get(ctx, userID)
		if err != nil {
			stats.Errors++
			j.logger.Warn("report failed for user",
				slog.Int64("user_id", userID.Int64()),
				slog.String("error", err.Error()))
			return nil
		}
		j.tally(l, now, stats)
		return nil
	})
	if err != nil {
		return fmt.Errorf("daily_report: %w", err)
	}

	j.logger.Info("daily report",
		slog.Int("scanned", stats.Scanned),
		slog.Int("active", stats.Active),
		slog.Int("at_risk", stats.AtRisk),
		slog.Int("critical", stats.Critical),
		slog.Int("lost", stats.Lost),
		slog.Int("recoverable", stats.Recoverable),
		slog.Int("open_repair_windows", stats.OpenRepairWindows),
		slog.Int("freezes_held", stats.FreezesHeld),
		slog.Int("shields_held", stats.ShieldsHeld),
		slog.Int("errors", stats.Errors))
	return nil
}

func (j *DailyReportJob) tally(l *streak.Ledger, now time.Time, stats *DailyReportStats) {
	switch l.DailyState {
	case streak.StateActive:
		stats.Active++
	case streak.StateAtRisk:
		stats.AtRisk++
	case streak.StateCritical:
		stats.Critical++
	case streak.StateLost:
		stats.Lost++
	case streak.StateRecoverable:
		stats.Recoverable++
	}

	if l.RepairEligible(now) {
		stats.OpenRepairWindows++
	}
	stats.FreezesHeld += l.FreezeCount
	stats.ShieldsHeld += l.ShieldCount
}

// LastRunStats returns counters from the most recent run, or nil.
func (j *DailyReportJob) LastRunStats() *DailyReportStats {
	if v := j.lastRunStats.Load(); v != nil {
		return v.(*DailyReportStats)
	}
	return nil
}
