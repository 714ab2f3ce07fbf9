package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval.String())
}

// DailyAtSchedule runs a job once per day at a fixed wall-clock time.
type DailyAtSchedule struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// NewDailyAtSchedule creates a schedule for hh:mm in the given location.
func NewDailyAtSchedule(hour, minute int, loc *time.Location) *DailyAtSchedule {
	if loc == nil {
		loc = time.UTC
	}
	return &DailyAtSchedule{Hour: hour, Minute: minute, Location: loc}
}

// Next returns the next hh:mm after t.
func (s *DailyAtSchedule) Next(t time.Time) time.Time {
	local := t.In(s.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.Hour, s.Minute, 0, 0, s.Location)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// String returns the string representation of the schedule.
func (s *DailyAtSchedule) String() string {
	return fmt.Sprintf("@daily %02d:%02d", s.Hour, s.Minute)
}
