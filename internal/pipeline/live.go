package pipeline

import (
	"backend-slopetrack/internal/location"
	"backend-slopetrack/internal/runs"
	"backend-slopetrack/internal/signal"
	"backend-slopetrack/internal/speed"
)

// Live is the in-progress view shown while tracking.
type Live struct {
	State         string                  `json:"state"`
	Speed         float64                 `json:"speed_mps"`
	HasPosition   bool                    `json:"has_position"`
	Latitude      float64                 `json:"lat"`
	Longitude     float64                 `json:"lng"`
	Elevation     float64                 `json:"elevation_m"`
	Run           *runs.ActiveRun         `json:"run,omitempty"`
	Quality       signal.QualityTier      `json:"quality"`
	MeanAccuracy  float64                 `json:"mean_accuracy_m"`
	PoorSignal    bool                    `json:"poor_signal"`
	Accuracy      signal.AccuracyTier     `json:"accuracy"`
	Accepted      int                     `json:"accepted"`
	Rejected      map[location.Reason]int `json:"rejected"`
	CompletedRuns int                     `json:"completed_runs"`
	SpeedSources  speed.Stats             `json:"speed_sources"`
}

// Live returns a snapshot safe to hand to another goroutine.
func (t *Tracker) Live() Live {
	t.mu.Lock()
	defer t.mu.Unlock()

	live := Live{
		State:         t.detector.State().Name(),
		Speed:         t.processor.SmoothedSpeed(),
		Quality:       t.quality.Tier(),
		MeanAccuracy:  t.quality.MeanAccuracy(),
		PoorSignal:    t.quality.IsPoor(),
		Accuracy:      t.currentAccuracy(),
		Accepted:      t.accepted,
		Rejected:      make(map[location.Reason]int, len(t.rejected)),
		CompletedRuns: len(t.manager.Completed()),
		SpeedSources:  t.fuser.Stats(),
	}
	for reason, n := range t.rejected {
		live.Rejected[reason] = n
	}
	if t.last != nil {
		live.HasPosition = true
		live.Latitude = t.last.Latitude
		live.Longitude = t.last.Longitude
		live.Elevation = t.last.Altitude
	}
	if active, ok := t.manager.Active(); ok {
		live.Run = &active
	}
	return live
}
