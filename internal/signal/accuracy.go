// Package signal picks the positioning precision to request from the device
// and grades how trustworthy recent fixes have been.
package signal

import (
	"fmt"
	"time"
)

// AccuracyTier is a precision/power setting, ordered best to coarsest.
type AccuracyTier int

const (
	AccuracyBestForNavigation AccuracyTier = iota
	AccuracyBest
	AccuracyNearestTenMeters
	AccuracyHundredMeters
	AccuracyKilometer
)

var accuracyNames = [...]string{
	AccuracyBestForNavigation: "best_for_navigation",
	AccuracyBest:              "best",
	AccuracyNearestTenMeters:  "nearest_ten_meters",
	AccuracyHundredMeters:     "hundred_meters",
	AccuracyKilometer:         "kilometer",
}

func (a AccuracyTier) String() string {
	if a < AccuracyBestForNavigation || a > AccuracyKilometer {
		return "unknown"
	}
	return accuracyNames[a]
}

func (a AccuracyTier) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccuracyTier) UnmarshalText(text []byte) error {
	for tier, name := range accuracyNames {
		if name == string(text) {
			*a = AccuracyTier(tier)
			return nil
		}
	}
	return fmt.Errorf("unknown accuracy tier %q", text)
}

// Coarser returns the next coarser tier; the coarsest tier maps to itself.
func (a AccuracyTier) Coarser() AccuracyTier {
	if a >= AccuracyKilometer {
		return AccuracyKilometer
	}
	return a + 1
}

// AccuracyConfig maps speed bands to tiers.
type AccuracyConfig struct {
	WalkingSpeed float64 // m/s - below is stationary
	MovingSpeed  float64 // m/s - below is walking
	FastSpeed    float64 // m/s - at or above is fast

	StationaryTier AccuracyTier
	WalkingTier    AccuracyTier
	MovingTier     AccuracyTier
	FastTier       AccuracyTier

	BatteryAware        bool
	LowBatteryThreshold float64 // fraction 0..1

	MinUpdateInterval time.Duration
}

func DefaultAccuracyConfig() AccuracyConfig {
	return AccuracyConfig{
		WalkingSpeed:        0.5,
		MovingSpeed:         2.0,
		FastSpeed:           8.0,
		StationaryTier:      AccuracyHundredMeters,
		WalkingTier:         AccuracyNearestTenMeters,
		MovingTier:          AccuracyBest,
		FastTier:            AccuracyBestForNavigation,
		BatteryAware:        true,
		LowBatteryThreshold: 0.2,
		MinUpdateInterval:   30 * time.Second,
	}
}

// Selector chooses the tier to request and rate-limits changes.
type Selector struct {
	cfg        AccuracyConfig
	current    AccuracyTier
	hasCurrent bool
	lastChange time.Time
}

func NewSelector(cfg AccuracyConfig) *Selector {
	return &Selector{cfg: cfg}
}

// DetermineAccuracy maps speed to a tier and, with battery-aware degradation
// enabled, steps it down one level on a low, discharging battery. A negative
// battery level means unknown and never degrades.
func (s *Selector) DetermineAccuracy(speed, batteryLevel float64, charging bool) AccuracyTier {
	var tier AccuracyTier
	switch {
	case speed < s.cfg.WalkingSpeed:
		tier = s.cfg.StationaryTier
	case speed < s.cfg.MovingSpeed:
		tier = s.cfg.WalkingTier
	case speed < s.cfg.FastSpeed:
		tier = s.cfg.MovingTier
	default:
		tier = s.cfg.FastTier
	}

	if !s.cfg.BatteryAware || charging || batteryLevel < 0 || batteryLevel >= s.cfg.LowBatteryThreshold {
		return tier
	}
	return tier.Coarser()
}

// ShouldUpdate reports whether the device should be switched to tier now.
// Unchanged tiers and changes within MinUpdateInterval of the previous one
// are refused unless force is set. An accepted change is recorded.
func (s *Selector) ShouldUpdate(tier AccuracyTier, now time.Time, force bool) bool {
	if !force && s.hasCurrent {
		if tier == s.current {
			return false
		}
		if now.Sub(s.lastChange) < s.cfg.MinUpdateInterval {
			return false
		}
	}
	s.current = tier
	s.hasCurrent = true
	s.lastChange = now
	return true
}

// Current returns the last accepted tier and whether one was ever accepted.
func (s *Selector) Current() (AccuracyTier, bool) {
	return s.current, s.hasCurrent
}

func (s *Selector) Configure(cfg AccuracyConfig) {
	s.cfg = cfg
}

// Reset forgets the last accepted tier.
func (s *Selector) Reset() {
	s.hasCurrent = false
	s.lastChange = time.Time{}
}
