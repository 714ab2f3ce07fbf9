package protection

import "github.com/quizhub/streak-engine/internal/domain/shared"

// Shop prices in currency-agnostic units. Repair pricing is a step
// function of the lost streak's length: longer streaks cost more to bring
// back.
const (
	FreezePrice shared.Price = 49
	ShieldPrice shared.Price = 29
)

// RepairPriceFor returns the repair price for a lost streak of the given
// length. Zero means nothing to repair.
func RepairPriceFor(lostStreak int) shared.Price {
	switch {
	case lostStreak <= 0:
		return 0
	case lostStreak < 7:
		return 99
	case lostStreak < 30:
		return 149
	case lostStreak < 60:
		return 199
	default:
		return 249
	}
}
