// Package timeutil provides fixed-offset timezone utilities for streak day
// boundaries. Users carry a fixed UTC offset (no DST rules), so local-day
// arithmetic reduces to shifting the clock before truncating to midnight.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// OffsetLocation returns a fixed-zone location for a UTC offset in minutes.
// Offset 0 returns UTC itself.
func OffsetLocation(offsetMinutes int) *time.Location {
	if offsetMinutes == 0 {
		return time.UTC
	}
	sign := "+"
	m := offsetMinutes
	if m < 0 {
		sign = "-"
		m = -m
	}
	name := fmt.Sprintf("UTC%s%02d:%02d", sign, m/60, m%60)
	return time.FixedZone(name, offsetMinutes*60)
}

// ToOffset converts a time into the fixed-offset local clock.
func ToOffset(t time.Time, offsetMinutes int) time.Time {
	return t.In(OffsetLocation(offsetMinutes))
}

// StartOfDay returns local midnight of t's calendar day in the offset zone.
func StartOfDay(t time.Time, offsetMinutes int) time.Time {
	local := ToOffset(t, offsetMinutes)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, local.Location())
}

// EndOfDay returns the first instant of the next local day, i.e. the
// moment the streak day closes.
func EndOfDay(t time.Time, offsetMinutes int) time.Time {
	return StartOfDay(t, offsetMinutes).AddDate(0, 0, 1)
}

// SameLocalDay reports whether two instants fall on the same calendar day
// in the offset zone.
func SameLocalDay(a, b time.Time, offsetMinutes int) bool {
	la := ToOffset(a, offsetMinutes)
	lb := ToOffset(b, offsetMinutes)
	ay, am, ad := la.Date()
	by, bm, bd := lb.Date()
	return ay == by && am == bm && ad == bd
}

// DaysBetween returns the number of whole local calendar days from a to b.
// Positive when b is on a later day than a.
func DaysBetween(a, b time.Time, offsetMinutes int) int {
	sa := StartOfDay(a, offsetMinutes)
	sb := StartOfDay(b, offsetMinutes)
	return int(sb.Sub(sa).Hours() / 24)
}

// SinceDayEnd returns how long ago the local day containing t closed.
// Negative while that day is still running.
func SinceDayEnd(dayAnchor time.Time, offsetMinutes int, now time.Time) time.Duration {
	return now.Sub(EndOfDay(dayAnchor, offsetMinutes))
}

// FormatDate returns the ISO date of t in the offset zone.
func FormatDate(t time.Time, offsetMinutes int) string {
	return ToOffset(t, offsetMinutes).Format("2006-01-02")
}
