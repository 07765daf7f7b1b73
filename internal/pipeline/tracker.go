// Package pipeline wires the reading processor, speed fuser, run detector
// and run manager into one serialized stream processor per session.
package pipeline

import (
	"errors"
	"sync"
	"time"

	"backend-slopetrack/internal/detection"
	"backend-slopetrack/internal/location"
	"backend-slopetrack/internal/logging"
	"backend-slopetrack/internal/runs"
	"backend-slopetrack/internal/shared/geo"
	"backend-slopetrack/internal/signal"
	"backend-slopetrack/internal/speed"

	"github.com/sirupsen/logrus"
)

// Update describes what one raw reading did to the pipeline.
type Update struct {
	Accepted  bool                     `json:"accepted"`
	Rejection *location.RejectionError `json:"-"`

	Reading       location.CleanedReading `json:"reading"`
	Sample        location.SpeedSample    `json:"sample"`
	SmoothedSpeed float64                 `json:"smoothed_speed_mps"`
	Distance      float64                 `json:"distance_m"`

	Transition detection.TransitionKind `json:"transition"`
	State      string                   `json:"state"`
	Finalized  *runs.Run                `json:"finalized,omitempty"`
	Discarded  *runs.ValidationError    `json:"-"`

	Quality         signal.QualityTier  `json:"quality"`
	Accuracy        signal.AccuracyTier `json:"accuracy"`
	AccuracyChanged bool                `json:"accuracy_changed"`
}

type pendingPoint struct {
	reading  location.CleanedReading
	speed    float64
	distance float64
}

// Tracker runs the whole pipeline for one session. Every exported method
// holds the same lock, so one reading is in flight at a time.
type Tracker struct {
	mu  sync.Mutex
	cfg Config
	log logrus.FieldLogger

	processor *location.Processor
	fuser     *speed.Fuser
	detector  *detection.Detector
	manager   *runs.Manager
	quality   *signal.QualityMonitor
	selector  *signal.Selector

	previous *location.CleanedReading
	last     *location.CleanedReading
	preRoll  []pendingPoint
	// skew is now minus the timestamp of the last accepted reading. Run
	// bounds are kept on the reading clock.
	skew time.Duration

	battery  float64
	charging bool

	accepted int
	rejected map[location.Reason]int
}

func NewTracker(sessionID string, cfg Config, sink runs.Sink, log logrus.FieldLogger) *Tracker {
	log = logging.OrNop(log).WithField("session_id", sessionID)
	return &Tracker{
		cfg:       cfg,
		log:       log,
		processor: location.NewProcessor(cfg.Filtering, cfg.Smoothing, log),
		fuser:     speed.NewFuser(cfg.Hybrid, log),
		detector:  detection.NewDetector(cfg.Detection, log),
		manager:   runs.NewManager(sessionID, sink, log),
		quality:   signal.NewQualityMonitor(cfg.Quality),
		selector:  signal.NewSelector(cfg.Accuracy),
		battery:   -1,
		rejected:  make(map[location.Reason]int),
	}
}

// Process pushes one raw reading through every stage. now is the wall
// clock used for staleness and dwell checks.
func (t *Tracker) Process(raw location.RawReading, now time.Time) Update {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.processor.Validate(raw, now); err != nil {
		return t.reject(err)
	}
	if t.last != nil && t.cfg.ResumeGap > 0 {
		if gap := raw.Timestamp.Sub(t.last.Timestamp); gap > t.cfg.ResumeGap {
			t.log.WithField("gap", gap.String()).Info("tracking resumed after gap, filters reset")
			t.processor.Reset()
			t.previous = nil
			t.last = nil
		}
	}

	cleaned, err := t.processor.Process(raw, now)
	if err != nil {
		return t.reject(err)
	}
	t.accepted++
	t.last = &cleaned
	t.skew = now.Sub(cleaned.Timestamp)

	up := Update{Accepted: true, Reading: cleaned}
	up.Quality = t.quality.Update(raw.HorizontalAccuracy)
	if t.quality.IsPoor() {
		t.log.WithField("mean_accuracy", t.quality.MeanAccuracy()).Debug("poor signal quality")
	}

	up.Sample, up.SmoothedSpeed, up.Distance = t.measure(cleaned)

	tr := t.detector.ProcessReading(cleaned, up.SmoothedSpeed, now)
	up.Transition = tr.Kind
	up.State = t.detector.State().Name()
	t.apply(tr, pendingPoint{reading: cleaned, speed: up.SmoothedSpeed, distance: up.Distance}, &up)

	up.Accuracy = t.selector.DetermineAccuracy(up.SmoothedSpeed, t.battery, t.charging)
	up.AccuracyChanged = t.selector.ShouldUpdate(up.Accuracy, now, false)
	if up.AccuracyChanged {
		t.log.WithField("accuracy", up.Accuracy.String()).Debug("accuracy tier changed")
	}
	return up
}

func (t *Tracker) reject(err error) Update {
	t.log.WithError(err).Debug("reading dropped")
	var rejection *location.RejectionError
	if errors.As(err, &rejection) {
		t.rejected[rejection.Reason]++
	}
	return Update{
		Rejection: rejection,
		State:     t.detector.State().Name(),
		Quality:   t.quality.Tier(),
		Accuracy:  t.currentAccuracy(),
	}
}

// measure derives the fused speed sample, the canonical smoothed speed and
// the distance to count for the step from the previous accepted reading.
func (t *Tracker) measure(cleaned location.CleanedReading) (location.SpeedSample, float64, float64) {
	prev := t.previous
	if prev == nil {
		t.previous = &cleaned
		return location.SpeedSample{}, t.processor.SmoothedSpeed(), 0
	}

	if cleaned.Timestamp.Sub(prev.Timestamp) < t.cfg.Filtering.MinTimeInterval {
		return location.SpeedSample{}, t.processor.SmoothedSpeed(), 0
	}
	t.previous = &cleaned

	horizontal := geo.DistanceMeters(prev.Latitude, prev.Longitude, cleaned.Latitude, cleaned.Longitude)
	if horizontal >= t.cfg.Filtering.MaxDistanceJump {
		t.log.WithField("distance", horizontal).Debug("position jump ignored")
		return location.SpeedSample{}, t.processor.SmoothedSpeed(), 0
	}

	// With hybrid speed off the fuser only reports the computed sample and
	// counts it; the processor derives and records the same value.
	sample := t.fuser.CalculateSpeed(cleaned, *prev)
	var smoothed float64
	if t.cfg.Hybrid.Enabled {
		smoothed = t.processor.RecordSpeed(sample)
	} else {
		smoothed = t.processor.CalculateSpeed(*prev, cleaned)
	}

	distance := 0.0
	if t.processor.IsDistanceRealistic(horizontal) {
		distance = horizontal
	}
	return sample, smoothed, distance
}

func (t *Tracker) apply(tr detection.Transition, point pendingPoint, up *Update) {
	switch tr.Kind {
	case detection.TransitionNone:
		if t.manager.HasActiveRun() {
			t.manager.UpdateCurrentRun(point.reading, point.speed, point.distance)
			return
		}
		t.anchor(point)

	case detection.TransitionStartedDetecting:
		t.pushPreRoll(point)

	case detection.TransitionDetectionReset:
		t.anchor(point)

	case detection.TransitionRunStarted:
		t.pushPreRoll(point)
		t.startRun()

	case detection.TransitionRunUpdated:
		t.manager.UpdateCurrentRun(point.reading, point.speed, point.distance)

	case detection.TransitionRunEnded:
		t.manager.UpdateCurrentRun(point.reading, point.speed, point.distance)
		up.Finalized, up.Discarded = t.endRun(point.reading.Timestamp)
		t.anchor(point)
	}
}

// anchor keeps only the latest idle reading as the start of any future run.
func (t *Tracker) anchor(point pendingPoint) {
	point.distance = 0
	t.preRoll = append(t.preRoll[:0], point)
}

func (t *Tracker) pushPreRoll(point pendingPoint) {
	t.preRoll = append(t.preRoll, point)
	if limit := t.cfg.PreRollSize; limit > 0 && len(t.preRoll) > limit {
		t.preRoll = append(t.preRoll[:0], t.preRoll[len(t.preRoll)-limit:]...)
	}
}

func (t *Tracker) startRun() {
	first := t.preRoll[0].reading
	if !t.manager.StartNewRun(first.Timestamp, first.Altitude, t.cfg.Validation) {
		return
	}
	for i, p := range t.preRoll {
		if i == 0 {
			p.distance = 0
		}
		t.manager.UpdateCurrentRun(p.reading, p.speed, p.distance)
	}
	t.preRoll = t.preRoll[:0]
}

func (t *Tracker) endRun(end time.Time) (*runs.Run, *runs.ValidationError) {
	run, err := t.manager.EndCurrentRun(end)
	if err == nil {
		return &run, nil
	}
	var verr *runs.ValidationError
	if errors.As(err, &verr) {
		return nil, verr
	}
	return nil, nil
}

// Stop ends any active run at now, validating it as usual, and resets the
// pipeline for a fresh session. now is shifted onto the reading clock by the
// offset seen on the last accepted reading, and never lands before the last
// route point.
func (t *Tracker) Stop(now time.Time) (*runs.Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		finalized *runs.Run
		err       error
	)
	if t.manager.HasActiveRun() {
		var verr *runs.ValidationError
		finalized, verr = t.endRun(t.readingTime(now))
		if verr != nil {
			err = verr
		}
	}
	t.resetLocked()
	t.log.Info("tracking stopped")
	return finalized, err
}

// Reset abandons any in-progress run and returns every stage to its
// initial state. Completed runs are kept.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manager.Discard()
	t.resetLocked()
}

func (t *Tracker) readingTime(now time.Time) time.Time {
	end := now.Add(-t.skew)
	if active, ok := t.manager.Active(); ok && len(active.Route) > 0 {
		if last := active.Route[len(active.Route)-1].Timestamp; end.Before(last) {
			end = last
		}
	}
	return end
}

func (t *Tracker) resetLocked() {
	t.processor.Reset()
	t.detector.Reset()
	t.quality.Reset()
	t.selector.Reset()
	t.previous = nil
	t.last = nil
	t.skew = 0
	t.preRoll = t.preRoll[:0]
}

// UpdateConfig applies cfg from the next reading on. An active run keeps
// the validation rules it started with.
func (t *Tracker) UpdateConfig(cfg Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
	t.processor.Configure(cfg.Filtering, cfg.Smoothing)
	t.fuser.Configure(cfg.Hybrid)
	t.detector.Configure(cfg.Detection)
	t.quality.Configure(cfg.Quality)
	t.selector.Configure(cfg.Accuracy)
}

// SetBattery records the device battery as a 0..1 fraction. A negative
// level means unknown.
func (t *Tracker) SetBattery(level float64, charging bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.battery = level
	t.charging = charging
}

// Completed returns every run finalized by this tracker.
func (t *Tracker) Completed() []runs.Run {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager.Completed()
}

func (t *Tracker) Config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

func (t *Tracker) currentAccuracy() signal.AccuracyTier {
	tier, _ := t.selector.Current()
	return tier
}
