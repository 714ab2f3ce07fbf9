// Package jobs contains the scheduled jobs of the streak engine.
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
// MONITOR STATES JOB
// The time-driven half of the streak state machine. Scans every streak the
// clock can still affect and advances it: escalates risk states as the
// day runs out, detects losses for users who never came back, opens and
// expires repair windows.
// ══════════════════════════════════════════════════════════════════════════════

// SweepLock guards the sweep so only one instance runs it at a time.
// A nil lock disables the guard (single-instance deployments and tests).
type SweepLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// MonitorStatesJob advances the time-driven risk state machine.
type MonitorStatesJob struct {
	ledgers streak.Repository
	events  shared.EventPublisher
	lock    SweepLock
	logger  *slog.Logger
	config  MonitorStatesConfig

	lastRunStats atomic.Value // *MonitorStatesStats
}

// MonitorStatesConfig contains configuration for the sweep.
type MonitorStatesConfig struct {
	// BatchSize is how many users to page at once from storage.
	BatchSize int

	// Timeout bounds one full sweep run.
	Timeout time.Duration
}

// DefaultMonitorStatesConfig returns sensible defaults.
func DefaultMonitorStatesConfig() MonitorStatesConfig {
	return MonitorStatesConfig{
		BatchSize: 500,
		Timeout:   5 * time.Minute,
	}
}

// MonitorStatesStats contains counters from one sweep run.
type MonitorStatesStats struct {
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Scanned        int           `json:"scanned"`
	AtRisk         int           `json:"at_risk"`
	Critical       int           `json:"critical"`
	Lost           int           `json:"lost"`
	Recoverable    int           `json:"recoverable"`
	WindowsExpired int           `json:"windows_expired"`
	Errors         int           `json:"errors"`
	Skipped        bool          `json:"skipped"`
}

// NewMonitorStatesJob creates the job. lock may be nil.
func NewMonitorStatesJob(
	ledgers streak.Repository,
	events shared.EventPublisher,
	lock SweepLock,
	logger *slog.Logger,
	config MonitorStatesConfig,
) *MonitorStatesJob {
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	return &MonitorStatesJob{
		ledgers: ledgers,
		events:  events,
		lock:    lock,
		logger:  logger.With(slog.String("job", "monitor_states")),
		config:  config,
	}
}

// Name implements scheduler.Job.
func (j *MonitorStatesJob) Name() string {
	return "monitor_states"
}

// Description implements scheduler.Job.
func (j *MonitorStatesJob) Description() string {
	return "Advances streak risk states, detects losses, and expires repair windows"
}

// Run implements scheduler.Job.
func (j *MonitorStatesJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	stats := &MonitorStatesStats{StartedAt: time.Now().UTC()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastRunStats.Store(stats)
	}()

	if j.lock != nil {
		acquired, err := j.lock.TryAcquire(ctx)
		if err != nil {
			return fmt.Errorf("monitor_states: acquire lock: %w", err)
		}
		if !acquired {
			// Another instance is mid-sweep.
			stats.Skipped = true
			j.logger.Debug("sweep already running elsewhere, skipping")
			return nil
		}
		defer func() {
			if err := j.lock.Release(context.WithoutCancel(ctx)); err != nil {
				j.logger.Warn("failed to release sweep lock", slog.String("error", err.Error()))
			}
		}()
	}

	err := j.ledgers.ListMonitored(ctx, j.config.BatchSize, func(userID shared.UserID) error {
		stats.Scanned++
		if err := j.sweepUser(ctx, userID, stats); err != nil {
			// One bad row must not halt the whole population.
			stats.Errors++
			j.logger.Warn("sweep failed for user",
				slog.Int64("user_id", userID.Int64()),
				slog.String("error", err.Error()))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("monitor_states: %w", err)
	}

	j.logger.Info("sweep completed",
		slog.Int("scanned", stats.Scanned),
		slog.Int("at_risk", stats.AtRisk),
		slog.Int("critical", stats.Critical),
		slog.Int("lost", stats.Lost),
		slog.Int("recoverable", stats.Recoverable),
		slog.Int("windows_expired", stats.WindowsExpired),
		slog.Int("errors", stats.Errors))
	return nil
}

// sweepUser advances one ledger. The repository's row lock means an
// activity event landing at the same moment simply serializes with us and
// whichever runs second sees fresh state.
func (j *MonitorStatesJob) sweepUser(ctx context.Context, userID shared.UserID, stats *MonitorStatesStats) error {
	outcome, err := j.ledgers.Mutate(ctx, userID, func(l *streak.Ledger) (*streak.Mutation, error) {
		res := l.AdvanceRiskState(time.Now().UTC())

		m := &streak.Mutation{}
		switch res.Outcome {
		case streak.SweepNoChange:
			m.NoChange = true
			return m, nil

		case streak.SweepLost:
			stats.Lost++
			m.Events = append(m.Events,
				shared.NewStreakLostEvent(l.UserID, res.LostValue, 1, true),
				shared.NewStateChangedEvent(l.UserID, string(res.OldState), string(res.NewState), l.DailyCurrent))

		case streak.SweepAtRisk:
			stats.AtRisk++
			m.Events = append(m.Events,
				shared.NewStateChangedEvent(l.UserID, string(res.OldState), string(res.NewState), l.DailyCurrent))

		case streak.SweepCritical:
			stats.Critical++
			m.Events = append(m.Events,
				shared.NewStateChangedEvent(l.UserID, string(res.OldState), string(res.NewState), l.DailyCurrent))

		case streak.SweepRecoverable:
			stats.Recoverable++
			m.Events = append(m.Events,
				shared.NewStateChangedEvent(l.UserID, string(res.OldState), string(res.NewState), l.DailyCurrent))

		case streak.SweepWindowExpired:
			stats.WindowsExpired++
			m.Events = append(m.Events,
				shared.NewStateChangedEvent(l.UserID, string(res.OldState), string(res.NewState), l.DailyCurrent))
		}
		return m, nil
	})
	if err != nil {
		return err
	}

	for _, e := range outcome.Events {
		if perr := j.events.Publish(e); perr != nil {
			j.logger.Warn("failed to publish sweep event",
				slog.String("event_type", string(e.EventType())),
				slog.String("error", perr.Error()))
		}
	}
	return nil
}

// LastRunStats returns counters from the most recent run, or nil.
func (j *MonitorStatesJob) LastRunStats() *MonitorStatesStats {
	if v := j.lastRunStats.Load(); v != nil {
		return v.(*MonitorStatesStats)
	}
	return nil
}
