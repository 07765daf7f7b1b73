package detection

import (
	"time"

	"backend-slopetrack/internal/location"
	"backend-slopetrack/internal/logging"

	"github.com/sirupsen/logrus"
)

// Config holds the hysteresis thresholds.
type Config struct {
	StartSpeedThreshold       float64       // m/s - must be reached to start detecting
	StopSpeedThreshold        float64       // m/s - at or below counts as not moving
	SustainedReadingsRequired int           // consecutive readings at start speed before a run starts
	StopTimeThreshold         time.Duration // dwell without movement before a run ends
}

// DefaultConfig is tuned for skiing and snowboarding.
func DefaultConfig() Config {
	return Config{
		StartSpeedThreshold:       3.5,
		StopSpeedThreshold:        1.5,
		SustainedReadingsRequired: 3,
		StopTimeThreshold:         30 * time.Second,
	}
}

// VehicleTestingConfig suits validating the pipeline from a car, where
// traffic stops are long and speeds high.
func VehicleTestingConfig() Config {
	return Config{
		StartSpeedThreshold:       8,
		StopSpeedThreshold:        3,
		SustainedReadingsRequired: 5,
		StopTimeThreshold:         60 * time.Second,
	}
}

// Next is the transition function. It is total over every state and has no
// side effects.
func Next(cfg Config, state State, reading location.CleanedReading, speed float64, now time.Time) Transition {
	switch s := state.(type) {
	case Idle, Ended, nil:
		if speed >= cfg.StartSpeedThreshold {
			if cfg.SustainedReadingsRequired <= 1 {
				return Transition{Kind: TransitionRunStarted, From: orIdle(state), To: startRun(reading, now)}
			}
			return Transition{Kind: TransitionStartedDetecting, From: orIdle(state), To: Detecting{Count: 1}}
		}
		return Transition{Kind: TransitionNone, From: orIdle(state), To: Idle{}}

	case Detecting:
		if speed < cfg.StartSpeedThreshold {
			return Transition{Kind: TransitionDetectionReset, From: s, To: Idle{}}
		}
		count := s.Count + 1
		if count >= cfg.SustainedReadingsRequired {
			return Transition{Kind: TransitionRunStarted, From: s, To: startRun(reading, now)}
		}
		return Transition{Kind: TransitionStartedDetecting, From: s, To: Detecting{Count: count}}

	case Active:
		if speed > cfg.StopSpeedThreshold {
			s.LastMovementTime = now
			return Transition{Kind: TransitionRunUpdated, From: state, To: s}
		}
		if now.Sub(s.LastMovementTime) >= cfg.StopTimeThreshold {
			return Transition{Kind: TransitionRunEnded, From: s, To: Ended{Run: s, EndTime: now}}
		}
		return Transition{Kind: TransitionNone, From: s, To: s}
	}

	return Transition{Kind: TransitionNone, From: state, To: state}
}

func startRun(reading location.CleanedReading, now time.Time) Active {
	return Active{StartTime: now, StartElevation: reading.Altitude, LastMovementTime: now}
}

func orIdle(state State) State {
	if state == nil {
		return Idle{}
	}
	return state
}

// Detector holds the live state. It is not safe for concurrent use.
type Detector struct {
	cfg   Config
	state State
	log   logrus.FieldLogger
}

func NewDetector(cfg Config, log logrus.FieldLogger) *Detector {
	return &Detector{cfg: cfg, state: Idle{}, log: logging.OrNop(log)}
}

// ProcessReading advances the state machine by one reading.
func (d *Detector) ProcessReading(reading location.CleanedReading, speed float64, now time.Time) Transition {
	tr := Next(d.cfg, d.state, reading, speed, now)

	if _, ended := tr.To.(Ended); ended {
		d.state = Idle{}
	} else {
		d.state = tr.To
	}

	switch tr.Kind {
	case TransitionRunStarted, TransitionRunEnded, TransitionDetectionReset:
		d.log.WithFields(logrus.Fields{
			"transition": tr.Kind.String(),
			"from":       tr.From.Name(),
			"to":         tr.To.Name(),
			"speed":      speed,
		}).Info("run state changed")
	case TransitionStartedDetecting:
		d.log.WithField("speed", speed).Debug("detecting run start")
	}
	return tr
}

// State returns the live state.
func (d *Detector) State() State {
	return d.state
}

// Reset drops back to Idle and forgets any counters.
func (d *Detector) Reset() {
	d.state = Idle{}
}

// Configure swaps thresholds from the next reading on.
func (d *Detector) Configure(cfg Config) {
	d.cfg = cfg
}

func (d *Detector) Config() Config {
	return d.cfg
}
