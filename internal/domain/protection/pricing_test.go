package protection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quizhub/streak-engine/internal/domain/shared"
)

func TestRepairPriceFor(t *testing.T) {
	assert.Equal(t, shared.Price(0), RepairPriceFor(0))
	assert.Equal(t, shared.Price(0), RepairPriceFor(-3))
	assert.Equal(t, shared.Price(99), RepairPriceFor(1))
	assert.Equal(t, shared.Price(99), RepairPriceFor(6))
	assert.Equal(t, shared.Price(149), RepairPriceFor(7))
	assert.Equal(t, shared.Price(149), RepairPriceFor(29))
	assert.Equal(t, shared.Price(199), RepairPriceFor(30))
	assert.Equal(t, shared.Price(199), RepairPriceFor(59))
	assert.Equal(t, shared.Price(249), RepairPriceFor(60))
	assert.Equal(t, shared.Price(249), RepairPriceFor(365))
}

func TestNewTransaction(t *testing.T) {
	now := time.Date(2026, time.March, 8, 10, 0, 0, 0, time.UTC)

	tx := NewTransaction(shared.UserID(42), KindFreezeConsume, 1, ReasonMissedDay, now).
		WithStreakSaved(12)

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, shared.UserID(42), tx.UserID)
	assert.Equal(t, KindFreezeConsume, tx.Kind)
	assert.Equal(t, 1, tx.Quantity)
	assert.Equal(t, 12, tx.StreakValueSaved)
	assert.Equal(t, shared.Price(0), tx.Amount)
	assert.Equal(t, ReasonMissedDay, tx.Reason)
	assert.Equal(t, now, tx.CreatedAt)

	paid := NewTransaction(shared.UserID(42), KindRepair, 1, ReasonRepair, now).
		WithStreakSaved(12).
		WithAmount(149)
	assert.Equal(t, shared.Price(149), paid.Amount)

	// Builders return copies; the original entry stays untouched.
	assert.Equal(t, shared.Price(0), tx.Amount)
}

func TestKindIsValid(t *testing.T) {
	for _, k := range []Kind{KindFreezeGrant, KindFreezeConsume, KindShieldGrant, KindShieldConsume, KindRepair} {
		assert.True(t, k.IsValid(), k.String())
	}
	assert.False(t, Kind("banana").IsValid())
}
