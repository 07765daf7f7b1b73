package runs

import (
	"time"

	"backend-slopetrack/internal/location"
	"backend-slopetrack/internal/logging"
	"backend-slopetrack/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// minSlopeSegment keeps near-vertical GPS noise out of the max slope.
const minSlopeSegment = 2.0

// Sink receives runs once they are finalized.
type Sink interface {
	RunFinalized(Run)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Run)

func (f SinkFunc) RunFinalized(r Run) { f(r) }

// Manager owns at most one active run. It is not safe for concurrent use.
type Manager struct {
	sessionID string
	sink      Sink
	log       logrus.FieldLogger

	active    *ActiveRun
	completed []Run
}

func NewManager(sessionID string, sink Sink, log logrus.FieldLogger) *Manager {
	return &Manager{
		sessionID: sessionID,
		sink:      sink,
		log:       logging.OrNop(log).WithField("session_id", sessionID),
	}
}

// StartNewRun opens a run. It is a no-op returning false when one is
// already active.
func (m *Manager) StartNewRun(start time.Time, elevation float64, cfg ValidationConfig) bool {
	if m.active != nil {
		m.log.WithField("active_since", m.active.StartTime).Warn("start requested while a run is active")
		return false
	}
	m.active = &ActiveRun{
		StartTime:      start,
		StartElevation: elevation,
		Validation:     cfg,
	}
	m.log.WithFields(logrus.Fields{"start": start, "elevation": elevation}).Info("run started")
	return true
}

// UpdateCurrentRun appends reading to the route and accumulates distance.
// Callers pass only realistic distances. A reading whose timestamp equals the
// last point's is ignored.
func (m *Manager) UpdateCurrentRun(reading location.CleanedReading, speed, distance float64) bool {
	if m.active == nil {
		m.log.Warn("update requested with no active run")
		return false
	}
	run := m.active
	if n := len(run.Route); n > 0 && run.Route[n-1].Timestamp.Equal(reading.Timestamp) {
		m.log.WithField("timestamp", reading.Timestamp).Debug("duplicate sample skipped")
		return false
	}

	point := RoutePoint{
		Latitude:  reading.Latitude,
		Longitude: reading.Longitude,
		Altitude:  reading.Altitude,
		Speed:     speed,
		Timestamp: reading.Timestamp,
	}
	run.Route = append(run.Route, point)
	run.Speeds = append(run.Speeds, speed)
	if speed > run.TopSpeed {
		run.TopSpeed = speed
		run.TopSpeedPoint = point
	}
	if distance > 0 {
		run.Distance += distance
	}
	return true
}

// EndCurrentRun finalizes the active run. A run failing validation is
// discarded and a *ValidationError returned.
func (m *Manager) EndCurrentRun(end time.Time) (Run, error) {
	if m.active == nil {
		m.log.Warn("end requested with no active run")
		return Run{}, ErrNoActiveRun
	}
	active := m.active
	m.active = nil

	candidate := finalize(m.sessionID, *active, end)
	if err := Validate(active.Validation, candidate); err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"duration": candidate.Duration().String(),
			"distance": candidate.Distance,
			"descent":  candidate.VerticalDescent,
		}).Info("run discarded")
		return Run{}, err
	}

	m.completed = append(m.completed, candidate)
	m.log.WithFields(logrus.Fields{
		"run_id":    candidate.ID,
		"distance":  candidate.Distance,
		"descent":   candidate.VerticalDescent,
		"top_speed": candidate.TopSpeed,
	}).Info("run finalized")
	if m.sink != nil {
		m.sink.RunFinalized(candidate)
	}
	return candidate, nil
}

// Discard drops the active run without validating it.
func (m *Manager) Discard() {
	if m.active != nil {
		m.log.Debug("active run discarded")
	}
	m.active = nil
}

// Active returns a copy of the run being accumulated.
func (m *Manager) Active() (ActiveRun, bool) {
	if m.active == nil {
		return ActiveRun{}, false
	}
	snapshot := *m.active
	snapshot.Route = append([]RoutePoint(nil), m.active.Route...)
	snapshot.Speeds = append([]float64(nil), m.active.Speeds...)
	return snapshot, true
}

func (m *Manager) HasActiveRun() bool {
	return m.active != nil
}

// Completed returns the runs finalized so far, oldest first.
func (m *Manager) Completed() []Run {
	return append([]Run(nil), m.completed...)
}

func (m *Manager) SessionID() string {
	return m.sessionID
}

func finalize(sessionID string, active ActiveRun, end time.Time) Run {
	run := Run{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		StartTime:      active.StartTime,
		EndTime:        end,
		Route:          active.Route,
		TopSpeed:       active.TopSpeed,
		TopSpeedPoint:  active.TopSpeedPoint,
		Distance:       active.Distance,
		StartElevation: active.StartElevation,
		EndElevation:   active.StartElevation,
		PointCount:     len(active.Route),
	}
	if n := len(active.Route); n > 0 {
		run.EndElevation = active.Route[n-1].Altitude
	}
	run.VerticalDescent = run.StartElevation - run.EndElevation
	if run.VerticalDescent < 0 {
		run.VerticalDescent = 0
	}

	if len(active.Speeds) > 0 {
		run.AverageSpeed = stat.Mean(active.Speeds, nil)
	} else if secs := run.Duration().Seconds(); secs > 0 {
		run.AverageSpeed = run.Distance / secs
	}

	run.AverageSlope = geo.SlopeDegrees(run.VerticalDescent, run.Distance)
	run.MaxSlope = maxSlope(active.Route)
	return run
}

func maxSlope(route []RoutePoint) float64 {
	steepest := 0.0
	for i := 1; i < len(route); i++ {
		prev, cur := route[i-1], route[i]
		drop := prev.Altitude - cur.Altitude
		if drop <= 0 {
			continue
		}
		horizontal := geo.DistanceMeters(prev.Latitude, prev.Longitude, cur.Latitude, cur.Longitude)
		if horizontal < minSlopeSegment {
			continue
		}
		if s := geo.SlopeDegrees(drop, horizontal); s > steepest {
			steepest = s
		}
	}
	return steepest
}
