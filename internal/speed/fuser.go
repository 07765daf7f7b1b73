// Package speed decides between device-reported and displacement-derived
// speed for each pair of readings.
package speed

import (
	"math"

	"backend-slopetrack/internal/location"
	"backend-slopetrack/internal/logging"
	"backend-slopetrack/internal/shared/geo"

	"github.com/sirupsen/logrus"
)

// agreementTolerance is the largest relative difference at which device
// and computed speeds count as agreeing.
const agreementTolerance = 0.30

// HybridConfig controls speed fusion.
type HybridConfig struct {
	Enabled               bool
	TrustDeviceSpeedAbove float64 // m/s - computed speed above which device speed wins
	MinComputedSpeed      float64 // m/s - below, agreement is not checked
	MaxAccuracyForTrust   float64 // m - device speed is ignored at or above this accuracy
}

func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		Enabled:               true,
		TrustDeviceSpeedAbove: 10,
		MinComputedSpeed:      1,
		MaxAccuracyForTrust:   20,
	}
}

// Stats counts how often each source was chosen.
type Stats struct {
	Device   int `json:"device"`
	Computed int `json:"computed"`
	Blended  int `json:"blended"`
}

// Fuser is stateless apart from its diagnostic counters.
type Fuser struct {
	cfg   HybridConfig
	stats Stats
	log   logrus.FieldLogger
}

func NewFuser(cfg HybridConfig, log logrus.FieldLogger) *Fuser {
	return &Fuser{cfg: cfg, log: logging.OrNop(log)}
}

// CalculateSpeed returns the speed to use for the step from previous to
// current together with its source.
func (f *Fuser) CalculateSpeed(current, previous location.CleanedReading) location.SpeedSample {
	computed := ComputedSpeed(previous, current)
	if !f.cfg.Enabled {
		f.stats.Computed++
		return location.SpeedSample{Value: computed, Source: location.SpeedComputed}
	}

	device := current.Speed
	if !f.ShouldUseDeviceSpeed(device, computed, current.HorizontalAccuracy) {
		if device >= 0 {
			f.log.WithFields(logrus.Fields{
				"device_speed":   device,
				"computed_speed": computed,
				"accuracy":       current.HorizontalAccuracy,
			}).Debug("device speed not trusted")
		}
		f.stats.Computed++
		return location.SpeedSample{Value: computed, Source: location.SpeedComputed}
	}

	if computed > f.cfg.TrustDeviceSpeedAbove {
		f.stats.Device++
		return location.SpeedSample{Value: device, Source: location.SpeedDevice}
	}

	f.stats.Blended++
	return location.SpeedSample{Value: (device + computed) / 2, Source: location.SpeedBlended}
}

// ShouldUseDeviceSpeed applies the trust rules: the device value must exist,
// the fix must be accurate enough, and either the computed speed is high
// (where sampling jitter degrades it) or both values agree within 30%.
func (f *Fuser) ShouldUseDeviceSpeed(device, computed, accuracy float64) bool {
	if device < 0 || accuracy < 0 || accuracy >= f.cfg.MaxAccuracyForTrust {
		return false
	}
	if computed > f.cfg.TrustDeviceSpeedAbove {
		return true
	}
	if computed <= f.cfg.MinComputedSpeed {
		return false
	}
	return relativeDifference(device, computed) <= agreementTolerance
}

// Stats returns the usage counters.
func (f *Fuser) Stats() Stats {
	return f.stats
}

func (f *Fuser) Configure(cfg HybridConfig) {
	f.cfg = cfg
}

// ComputedSpeed is the 3D displacement between two readings divided by the
// elapsed time. Non-positive elapsed time yields zero.
func ComputedSpeed(from, to location.CleanedReading) float64 {
	elapsed := to.Timestamp.Sub(from.Timestamp).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return geo.Distance3D(from.Latitude, from.Longitude, from.Altitude, to.Latitude, to.Longitude, to.Altitude) / elapsed
}

func relativeDifference(a, b float64) float64 {
	denominator := math.Max(a, b)
	if denominator <= 0 {
		return 0
	}
	return math.Abs(a-b) / denominator
}
