package streak

// Level represents the display tier of a daily streak, derived from the
// current streak length via fixed thresholds.
type Level int

const (
	LevelNovice       Level = 1
	LevelStudent      Level = 2
	LevelPractitioner Level = 3
	LevelExpert       Level = 4
	LevelMaster       Level = 5
	LevelLegend       Level = 6
)

// DailyMilestones are the streak lengths that define both level boundaries
// and daily milestone rewards.
var DailyMilestones = []int{7, 14, 30, 60, 100}

// LevelForDays returns the level tier for the given streak length.
func LevelForDays(days int) Level {
	switch {
	case days >= 100:
		return LevelLegend
	case days >= 60:
		return LevelMaster
	case days >= 30:
		return LevelExpert
	case days >= 14:
		return LevelPractitioner
	case days >= 7:
		return LevelStudent
	default:
		return LevelNovice
	}
}

// String returns a human-readable tier name.
func (l Level) String() string {
	switch l {
	case LevelNovice:
		return "novice"
	case LevelStudent:
		return "student"
	case LevelPractitioner:
		return "practitioner"
	case LevelExpert:
		return "expert"
	case LevelMaster:
		return "master"
	case LevelLegend:
		return "legend"
	default:
		return "unknown"
	}
}

// DaysRequired returns the streak length at which the level begins.
func (l Level) DaysRequired() int {
	switch l {
	case LevelStudent:
		return 7
	case LevelPractitioner:
		return 14
	case LevelExpert:
		return 30
	case LevelMaster:
		return 60
	case LevelLegend:
		return 100
	default:
		return 0
	}
}
