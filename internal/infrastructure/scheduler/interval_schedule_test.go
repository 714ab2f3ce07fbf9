package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntervalScheduleNext(t *testing.T) {
	s := NewIntervalSchedule(10 * time.Minute)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, at.Add(10*time.Minute), s.Next(at))
}

func TestIntervalScheduleString(t *testing.T) {
	assert.Equal(t, "@every 10m0s", NewIntervalSchedule(10*time.Minute).String())
	assert.Equal(t, "@every 1h30m0s", NewIntervalSchedule(90*time.Minute).String())
}

func TestDailyAtScheduleNextSameDay(t *testing.T) {
	s := NewDailyAtSchedule(3, 0, time.UTC)

	at := time.Date(2026, 3, 1, 1, 30, 0, 0, time.UTC)
	next := s.Next(at)

	assert.Equal(t, time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC), next)
}

func TestDailyAtScheduleNextRollsToTomorrow(t *testing.T) {
	s := NewDailyAtSchedule(3, 0, time.UTC)

	at := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	next := s.Next(at)

	// Exactly at the scheduled minute counts as passed.
	assert.Equal(t, time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC), next)
}

func TestDailyAtScheduleHonorsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+05:00", 5*3600)
	s := NewDailyAtSchedule(9, 0, loc)

	// 05:00 UTC is 10:00 local, so 09:00 local already passed today.
	at := time.Date(2026, 3, 1, 5, 0, 0, 0, time.UTC)
	next := s.Next(at)

	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, loc), next)
}

func TestDailyAtScheduleNilLocationDefaultsToUTC(t *testing.T) {
	s := NewDailyAtSchedule(12, 30, nil)
	assert.Equal(t, time.UTC, s.Location)
}

func TestDailyAtScheduleString(t *testing.T) {
	assert.Equal(t, "@daily 03:00", NewDailyAtSchedule(3, 0, time.UTC).String())
	assert.Equal(t, "@daily 23:45", NewDailyAtSchedule(23, 45, time.UTC).String())
}
