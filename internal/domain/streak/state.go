package streak

import "time"

// State represents the lifecycle state of a daily streak.
type State string

const (
	// StateActive - the streak is healthy; the user was active recently.
	StateActive State = "active"

	// StateAtRisk - less than 6 hours remain until the streak day ends.
	StateAtRisk State = "at_risk"

	// StateCritical - less than 2 hours remain until the streak day ends.
	StateCritical State = "critical"

	// StateLost - the streak broke; a repair window may still be open.
	StateLost State = "lost"

	// StateRecoverable - the streak is lost but within the 48h repair window.
	StateRecoverable State = "recoverable"
)

// IsValid checks that the state is one of the known values.
func (s State) IsValid() bool {
	switch s {
	case StateActive, StateAtRisk, StateCritical, StateLost, StateRecoverable:
		return true
	}
	return false
}

// String returns the string representation.
func (s State) String() string {
	return string(s)
}

// IsLost reports whether the streak is in a broken state (repairable or not).
func (s State) IsLost() bool {
	return s == StateLost || s == StateRecoverable
}

// IsMonitored reports whether the periodic sweep tracks this state for
// risk transitions. Lost streaks are handled by the recovery window logic
// instead.
func (s State) IsMonitored() bool {
	switch s {
	case StateActive, StateAtRisk, StateCritical:
		return true
	}
	return false
}

// Risk boundaries, measured from the end of the last active streak day
// in the user's local time. At 24 elapsed hours a full calendar day has
// passed without activity and the streak is gone.
const (
	AtRiskAfter   = 18 * time.Hour
	CriticalAfter = 22 * time.Hour
	LostAfter     = 24 * time.Hour
)

// RepairWindow is how long a lost streak stays repairable.
const RepairWindow = 48 * time.Hour

// RiskStateFor returns the state a monitored streak should be in after
// the given time has elapsed since the end of its last active day.
func RiskStateFor(elapsed time.Duration) State {
	switch {
	case elapsed >= LostAfter:
		return StateLost
	case elapsed >= CriticalAfter:
		return StateCritical
	case elapsed >= AtRiskAfter:
		return StateAtRisk
	default:
		return StateActive
	}
}
