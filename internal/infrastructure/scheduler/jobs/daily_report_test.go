package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizhub/streak-engine/internal/domain/shared"
	"github.com/quizhub/streak-engine/internal/domain/streak"
)

func TestDailyReportTalliesPopulation(t *testing.T) {
	repo := newSweepRepo()

	active := freshLedger(shared.UserID(1), 5)
	active.FreezeCount = 2
	repo.add(active)

	atRisk := freshLedger(shared.UserID(2), 3)
	atRisk.DailyState = streak.StateAtRisk
	atRisk.AtRiskNotified = true
	atRisk.ShieldCount = 1
	repo.add(atRisk)

	lost := streak.NewLedger(shared.UserID(3), time.Now().UTC())
	lost.DailyState = streak.StateRecoverable
	lost.LostStreakValue = 9
	lost.LostAt = time.Now().UTC().Add(-3 * time.Hour)
	repo.add(lost)

	job := NewDailyReportJob(repo, quietSlog(), DailyReportConfig{})
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.Scanned)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.AtRisk)
	assert.Equal(t, 1, stats.Recoverable)
	assert.Equal(t, 1, stats.OpenRepairWindows)
	assert.Equal(t, 2, stats.FreezesHeld)
	assert.Equal(t, 1, stats.ShieldsHeld)
	assert.Zero(t, stats.Errors)
}

func TestDailyReportNeverMutates(t *testing.T) {
	repo := newSweepRepo()
	repo.add(staleLedger(shared.UserID(1), 8))

	job := NewDailyReportJob(repo, quietSlog(), DailyReportConfig{})
	require.NoError(t, job.Run(context.Background()))

	l, err := repo.Get(context.Background(), shared.UserID(1))
	require.NoError(t, err)
	assert.Equal(t, 8, l.DailyCurrent)
	assert.Equal(t, streak.StateActive, l.DailyState)
}

func TestDailyReportSurvivesBadRow(t *testing.T) {
	repo := newSweepRepo()
	repo.add(freshLedger(shared.UserID(1), 5))
	repo.add(freshLedger(shared.UserID(2), 2))
	repo.failFor[shared.UserID(1)] = shared.ErrStorageUnavailable

	job := NewDailyReportJob(repo, quietSlog(), DailyReportConfig{})
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.Active)
}
