// Package detection turns a stream of (reading, speed) pairs into run
// lifecycle transitions using start and stop hysteresis.
package detection

import "time"

// State is one of Idle, Detecting, Active or Ended. The set is closed.
type State interface {
	Name() string
	isState()
}

// Idle waits for speed to reach the start threshold.
type Idle struct{}

// Detecting counts consecutive readings at or above the start threshold.
type Detecting struct {
	Count int
}

// Active is an ongoing run.
type Active struct {
	StartTime        time.Time
	StartElevation   float64
	LastMovementTime time.Time
}

// Ended carries the run that just finished. It is only ever observed as the
// target of a RunEnded transition; the detector itself moves back to Idle.
type Ended struct {
	Run     Active
	EndTime time.Time
}

func (Idle) Name() string { return "idle" }
func (Detecting) Name() string { return "detecting" }
func (Active) Name() string { return "active" }
func (Ended) Name() string { return "ended" }

func (Idle) isState() {}
func (Detecting) isState() {}
func (Active) isState() {}
func (Ended) isState() {}

// TransitionKind is what a single reading did to the state.
type TransitionKind int

const (
	TransitionNone TransitionKind = iota
	TransitionStartedDetecting
	TransitionDetectionReset
	TransitionRunStarted
	TransitionRunUpdated
	TransitionRunEnded
)

var transitionNames = [...]string{
	TransitionNone:             "none",
	TransitionStartedDetecting: "started_detecting",
	TransitionDetectionReset:   "detection_reset",
	TransitionRunStarted:       "run_started",
	TransitionRunUpdated:       "run_updated",
	TransitionRunEnded:         "run_ended",
}

func (k TransitionKind) String() string {
	if k < TransitionNone || k > TransitionRunEnded {
		return "unknown"
	}
	return transitionNames[k]
}

func (k TransitionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Transition is the outcome of one reading. To is the state the reading
// led to; for RunEnded it is an Ended value while the detector is Idle again.
type Transition struct {
	Kind TransitionKind
	From State
	To   State
}
