package location

import (
	"time"

	"backend-slopetrack/internal/kalman"
	"backend-slopetrack/internal/logging"
	"backend-slopetrack/internal/shared/geo"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Processor validates raw readings, smooths each axis with its own filter
// and keeps the smoothed speed history. It is not safe for concurrent use.
type Processor struct {
	cfg       FilteringConfig
	smoothing SpeedSmoothingConfig
	log       logrus.FieldLogger

	lat *kalman.Scalar
	lng *kalman.Scalar
	alt *kalman.Scalar

	speeds   []SpeedSample
	smoothed float64
}

func NewProcessor(cfg FilteringConfig, smoothing SpeedSmoothingConfig, log logrus.FieldLogger) *Processor {
	if smoothing.WindowSize < 1 {
		smoothing.WindowSize = 1
	}
	return &Processor{
		cfg:       cfg,
		smoothing: smoothing,
		log:       logging.OrNop(log),
		lat:       kalman.NewScalar(cfg.Coordinate),
		lng:       kalman.NewScalar(cfg.Coordinate),
		alt:       kalman.NewScalar(cfg.Altitude),
		speeds:    make([]SpeedSample, 0, smoothing.WindowSize),
	}
}

// Process validates raw and, when valid, returns the smoothed reading.
// Rejected readings leave every filter and the speed history untouched.
func (p *Processor) Process(raw RawReading, now time.Time) (CleanedReading, error) {
	if err := p.Validate(raw, now); err != nil {
		p.log.WithError(err).Debug("reading dropped")
		return CleanedReading{}, err
	}

	cleaned := CleanedReading{
		HorizontalAccuracy: raw.HorizontalAccuracy,
		VerticalAccuracy:   raw.VerticalAccuracy,
		Speed:              raw.Speed,
		Timestamp:          raw.Timestamp,
	}
	if p.cfg.Adaptive {
		cleaned.Latitude = p.lat.FilterAdaptive(raw.Latitude, p.smoothed, raw.HorizontalAccuracy)
		cleaned.Longitude = p.lng.FilterAdaptive(raw.Longitude, p.smoothed, raw.HorizontalAccuracy)
		cleaned.Altitude = p.alt.FilterAdaptive(raw.Altitude, p.smoothed, raw.VerticalAccuracy)
	} else {
		cleaned.Latitude = p.lat.Filter(raw.Latitude)
		cleaned.Longitude = p.lng.Filter(raw.Longitude)
		cleaned.Altitude = p.alt.Filter(raw.Altitude)
	}
	return cleaned, nil
}

// CalculateSpeed derives the 3D speed between two readings, pushes it into
// the smoothing window and returns the window mean. Gaps shorter than
// MinTimeInterval return the last smoothed speed without touching the window.
func (p *Processor) CalculateSpeed(from, to CleanedReading) float64 {
	elapsed := to.Timestamp.Sub(from.Timestamp)
	if elapsed < p.cfg.MinTimeInterval || elapsed <= 0 {
		return p.smoothed
	}
	distance := geo.Distance3D(from.Latitude, from.Longitude, from.Altitude, to.Latitude, to.Longitude, to.Altitude)
	return p.RecordSpeed(SpeedSample{Value: distance / elapsed.Seconds(), Source: SpeedComputed})
}

// RecordSpeed appends a sample to the FIFO window, evicting the oldest on
// overflow, and returns the new mean.
func (p *Processor) RecordSpeed(sample SpeedSample) float64 {
	if sample.Value < 0 {
		sample.Value = 0
	}
	if len(p.speeds) >= p.smoothing.WindowSize {
		copy(p.speeds, p.speeds[len(p.speeds)-p.smoothing.WindowSize+1:])
		p.speeds = p.speeds[:p.smoothing.WindowSize-1]
	}
	p.speeds = append(p.speeds, sample)

	values := make([]float64, len(p.speeds))
	for i, s := range p.speeds {
		values[i] = s.Value
	}
	p.smoothed = stat.Mean(values, nil)
	return p.smoothed
}

// IsDistanceRealistic reports whether a displacement lies in
// [MinDistanceChange, MaxDistanceJump). Anything outside is jitter or a jump
// and must not be accumulated.
func (p *Processor) IsDistanceRealistic(distance float64) bool {
	return distance >= p.cfg.MinDistanceChange && distance < p.cfg.MaxDistanceJump
}

// SmoothedSpeed is the current window mean.
func (p *Processor) SmoothedSpeed() float64 {
	return p.smoothed
}

// SpeedHistory returns a copy of the window, oldest first.
func (p *Processor) SpeedHistory() []SpeedSample {
	out := make([]SpeedSample, len(p.speeds))
	copy(out, p.speeds)
	return out
}

// Reset re-arms all three filters and empties the speed window.
func (p *Processor) Reset() {
	p.lat.Reset()
	p.lng.Reset()
	p.alt.Reset()
	p.speeds = p.speeds[:0]
	p.smoothed = 0
}

// Configure swaps the configuration for subsequent readings. Filter estimates
// are kept, a smaller window drops the oldest samples.
func (p *Processor) Configure(cfg FilteringConfig, smoothing SpeedSmoothingConfig) {
	if smoothing.WindowSize < 1 {
		smoothing.WindowSize = 1
	}
	p.cfg = cfg
	p.smoothing = smoothing
	p.lat.Configure(cfg.Coordinate)
	p.lng.Configure(cfg.Coordinate)
	p.alt.Configure(cfg.Altitude)
	if over := len(p.speeds) - smoothing.WindowSize; over > 0 {
		p.speeds = append(p.speeds[:0], p.speeds[over:]...)
	}
}

// Config returns the active filtering configuration.
func (p *Processor) Config() FilteringConfig {
	return p.cfg
}
