// Package kalman implements the one-dimensional recursive estimator used to
// smooth latitude, longitude and altitude independently.
package kalman

import "math"

// Config holds the base noise parameters and the adaptation gains.
type Config struct {
	ProcessNoise     float64 // Q, how much the true value is expected to move per step
	MeasurementNoise float64 // R, how noisy a single measurement is

	// SpeedGain scales process noise with speed: Q' = Q * (1 + speed*SpeedGain).
	SpeedGain float64
	// ReferenceAccuracy is the accuracy (m) at which R is used unscaled.
	// Worse accuracies scale R quadratically.
	ReferenceAccuracy float64
}

// DefaultCoordinateConfig suits latitude/longitude in degrees.
func DefaultCoordinateConfig() Config {
	return Config{
		ProcessNoise:      1e-9,
		MeasurementNoise:  1e-9,
		SpeedGain:         0.1,
		ReferenceAccuracy: 10,
	}
}

// DefaultAltitudeConfig suits altitude in meters.
func DefaultAltitudeConfig() Config {
	return Config{
		ProcessNoise:      3,
		MeasurementNoise:  3,
		SpeedGain:         0.1,
		ReferenceAccuracy: 10,
	}
}

// Scalar is a single-axis filter. The zero value is not usable; use NewScalar.
type Scalar struct {
	estimate    float64
	covariance  float64
	q           float64
	r           float64
	initialized bool

	cfg Config
}

func NewScalar(cfg Config) *Scalar {
	return &Scalar{
		q:   cfg.ProcessNoise,
		r:   cfg.MeasurementNoise,
		cfg: cfg,
	}
}

// Filter blends a measurement into the estimate and returns the new estimate.
// The first call after construction or Reset anchors to the measurement.
func (s *Scalar) Filter(measurement float64) float64 {
	if !s.initialized {
		s.estimate = measurement
		s.covariance = s.r
		s.initialized = true
		return measurement
	}

	s.covariance += s.q
	gain := s.covariance / (s.covariance + s.r)
	s.estimate += gain * (measurement - s.estimate)
	s.covariance *= 1 - gain
	return s.estimate
}

// FilterAdaptive runs Filter with noise scaled by the current speed (m/s) and
// reported accuracy (m). The base noise values are restored before returning.
func (s *Scalar) FilterAdaptive(measurement, speed, accuracy float64) float64 {
	baseQ, baseR := s.q, s.r
	defer func() {
		s.q, s.r = baseQ, baseR
	}()

	s.q = adaptiveProcessNoise(baseQ, speed, s.cfg.SpeedGain)
	s.r = adaptiveMeasurementNoise(baseR, accuracy, s.cfg.ReferenceAccuracy)
	return s.Filter(measurement)
}

// Reset makes the next Filter call re-anchor instead of blending against
// stale state.
func (s *Scalar) Reset() {
	s.initialized = false
}

// Configure replaces the base noise parameters. The current estimate is kept.
func (s *Scalar) Configure(cfg Config) {
	s.cfg = cfg
	s.q = cfg.ProcessNoise
	s.r = cfg.MeasurementNoise
}

func (s *Scalar) Initialized() bool { return s.initialized }
func (s *Scalar) Estimate() float64 { return s.estimate }
func (s *Scalar) Covariance() float64 { return s.covariance }
func (s *Scalar) ProcessNoise() float64 { return s.q }
func (s *Scalar) MeasurementNoise() float64 { return s.r }

func adaptiveProcessNoise(base, speed, gain float64) float64 {
	if speed <= 0 || math.IsNaN(speed) {
		return base
	}
	return base * (1 + speed*gain)
}

func adaptiveMeasurementNoise(base, accuracy, reference float64) float64 {
	if accuracy <= 0 || reference <= 0 || math.IsNaN(accuracy) {
		return base
	}
	ratio := math.Max(1, accuracy/reference)
	return base * ratio * ratio
}
