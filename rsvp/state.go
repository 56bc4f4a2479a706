package rsvp

import "time"

// State is the playback phase of the engine.
type State int

const (
	// StateIdle means playback has not begun, or was stopped.
	StateIdle State = iota
	// StatePlaying means units are advancing on schedule.
	StatePlaying
	// StatePaused means playback is holding at the current unit.
	StatePaused
	// StateCompleted means the final unit has finished.
	StateCompleted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// IsActive reports whether a session is underway, paused or not.
func (s State) IsActive() bool {
	return s == StatePlaying || s == StatePaused
}

// Snapshot is a point-in-time view of the engine for status lines and
// progress bars.
type Snapshot struct {
	State State

	// Index is the current unit. It equals TotalUnits once the session has
	// completed.
	Index      int
	TotalUnits int
	TotalWords int

	// Elapsed is time spent on the session timeline; while playing or
	// paused it includes partial progress through the current unit.
	// Remaining is the rest of the timeline.
	Elapsed   time.Duration
	Remaining time.Duration

	// WarmupActive is set while the rate ramp is still adjusting.
	WarmupActive bool

	// Interrupted is set when the pause was imposed from outside (focus
	// loss) rather than asked for.
	Interrupted bool
}
