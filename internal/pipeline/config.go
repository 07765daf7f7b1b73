package pipeline

import (
	"time"

	"backend-slopetrack/internal/detection"
	"backend-slopetrack/internal/location"
	"backend-slopetrack/internal/runs"
	"backend-slopetrack/internal/signal"
	"backend-slopetrack/internal/speed"
)

// Config bundles the tuning of every stage.
type Config struct {
	Filtering  location.FilteringConfig
	Smoothing  location.SpeedSmoothingConfig
	Hybrid     speed.HybridConfig
	Detection  detection.Config
	Validation runs.ValidationConfig
	Accuracy   signal.AccuracyConfig
	Quality    signal.QualityConfig

	// ResumeGap is the silence after which filters and the speed window are
	// reset before the next reading. Zero disables it.
	ResumeGap time.Duration
	// PreRollSize caps the readings kept from before a run starts.
	PreRollSize int
}

func DefaultConfig() Config {
	return Config{
		Filtering:   location.DefaultFilteringConfig(),
		Smoothing:   location.DefaultSpeedSmoothingConfig(),
		Hybrid:      speed.DefaultHybridConfig(),
		Detection:   detection.DefaultConfig(),
		Validation:  runs.DefaultValidationConfig(),
		Accuracy:    signal.DefaultAccuracyConfig(),
		Quality:     signal.DefaultQualityConfig(),
		ResumeGap:   2 * time.Minute,
		PreRollSize: 16,
	}
}

// VehicleTestingConfig swaps in the detection thresholds for driving tests.
func VehicleTestingConfig() Config {
	cfg := DefaultConfig()
	cfg.Detection = detection.VehicleTestingConfig()
	cfg.Filtering.MaxDistanceJump = 300
	return cfg
}
