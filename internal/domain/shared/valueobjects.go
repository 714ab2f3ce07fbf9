// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID represents a unique user identifier (the messenger user ID).
type UserID int64

// IsValid checks if the user ID is valid (positive number).
func (u UserID) IsValid() bool {
	return u > 0
}

// Int64 returns the underlying int64 value.
func (u UserID) Int64() int64 {
	return int64(u)
}

// String returns the string representation.
func (u UserID) String() string {
	return fmt.Sprintf("%d", u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id int64) (UserID, error) {
	if id <= 0 {
		return 0, ErrInvalidUserID
	}
	return UserID(id), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Calendar Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// Day represents a calendar date without a time component.
// Days are compared in the user's local calendar, so the wall-clock
// time and zone are stripped at construction.
type Day struct {
	Year       int
	Month      time.Month
	DayOfMonth int
}

// DayOf extracts the calendar day from a time value in its own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, DayOfMonth: d}
}

// IsZero reports whether the day is the zero value (no date recorded).
func (d Day) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.DayOfMonth == 0
}

// Time returns midnight of the day in the given location.
func (d Day) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.DayOfMonth, 0, 0, 0, 0, loc)
}

// AddDays returns the day shifted by n calendar days.
func (d Day) AddDays(n int) Day {
	return DayOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// DaysUntil returns the number of calendar days from d to other.
// Positive when other is later than d.
func (d Day) DaysUntil(other Day) int {
	from := d.Time(time.UTC)
	to := other.Time(time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// Equal reports whether two days are the same calendar date.
func (d Day) Equal(other Day) bool {
	return d == other
}

// String returns the ISO date representation (YYYY-MM-DD).
func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.DayOfMonth)
}

// ParseDay parses an ISO date string (YYYY-MM-DD) into a Day.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, WrapError("shared", "ParseDay", ErrInvalidInput, "invalid ISO date", err)
	}
	return DayOf(t), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Quantity Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// Quantity represents a non-negative item count.
type Quantity int

// IsValid checks that the quantity is non-negative.
func (q Quantity) IsValid() bool {
	return q >= 0
}

// Add returns the quantity increased by delta.
func (q Quantity) Add(delta Quantity) Quantity {
	return q + delta
}

// Sub returns the quantity decreased by delta. The caller is responsible
// for checking the result stays non-negative before persisting it.
func (q Quantity) Sub(delta Quantity) Quantity {
	return q - delta
}

// Int returns the underlying int value.
func (q Quantity) Int() int {
	return int(q)
}

// Price represents a currency-agnostic amount in minor units.
type Price int

// Int returns the underlying int value.
func (p Price) Int() int {
	return int(p)
}
