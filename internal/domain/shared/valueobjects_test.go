package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserID(t *testing.T) {
	uid, err := NewUserID(42)
	require.NoError(t, err)
	assert.Equal(t, UserID(42), uid)
	assert.True(t, uid.IsValid())
	assert.Equal(t, int64(42), uid.Int64())
	assert.Equal(t, "42", uid.String())

	_, err = NewUserID(0)
	assert.ErrorIs(t, err, ErrInvalidUserID)

	_, err = NewUserID(-7)
	assert.ErrorIs(t, err, ErrInvalidUserID)
}

func TestDayOf(t *testing.T) {
	// The calendar day is taken in the time's own location.
	loc := time.FixedZone("UTC+5", 5*3600)
	late := time.Date(2026, time.March, 1, 23, 30, 0, 0, loc)

	assert.Equal(t, Day{Year: 2026, Month: time.March, DayOfMonth: 1}, DayOf(late))
	assert.Equal(t, Day{Year: 2026, Month: time.March, DayOfMonth: 2}, DayOf(late.UTC().In(loc).Add(time.Hour)))
}

func TestDayArithmetic(t *testing.T) {
	d := Day{Year: 2026, Month: time.February, DayOfMonth: 27}

	assert.Equal(t, Day{Year: 2026, Month: time.March, DayOfMonth: 1}, d.AddDays(2))
	assert.Equal(t, 2, d.DaysUntil(d.AddDays(2)))
	assert.Equal(t, -2, d.AddDays(2).DaysUntil(d))
	assert.Equal(t, 0, d.DaysUntil(d))
	assert.True(t, d.Equal(d))
	assert.False(t, d.Equal(d.AddDays(1)))
}

func TestDayZero(t *testing.T) {
	var d Day
	assert.True(t, d.IsZero())
	assert.False(t, DayOf(time.Now()).IsZero())
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, Day{Year: 2026, Month: time.March, DayOfMonth: 1}, d)
	assert.Equal(t, "2026-03-01", d.String())

	_, err = ParseDay("01.03.2026")
	assert.Error(t, err)
}
