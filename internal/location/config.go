package location

import (
	"time"

	"backend-slopetrack/internal/kalman"
)

// FilteringConfig controls reading validation, smoothing and distance
// plausibility checks.
type FilteringConfig struct {
	MaxHorizontalAccuracy float64       // m - readings at or above are rejected
	MaxVerticalAccuracy   float64       // m - readings at or above are rejected
	MaxReadingAge         time.Duration // older readings are stale, 0 disables the check

	MinDistanceChange float64       // m - below is GPS jitter
	MaxDistanceJump   float64       // m - at or above is a teleport artifact
	MinTimeInterval   time.Duration // shorter gaps reuse the last smoothed speed

	Adaptive   bool // scale filter noise by speed and accuracy
	Coordinate kalman.Config
	Altitude   kalman.Config
}

// SpeedSmoothingConfig sizes the moving-average speed window.
type SpeedSmoothingConfig struct {
	WindowSize int
}

// DefaultFilteringConfig returns values tuned for handheld devices on the slope.
func DefaultFilteringConfig() FilteringConfig {
	return FilteringConfig{
		MaxHorizontalAccuracy: 50,
		MaxVerticalAccuracy:   50,
		MaxReadingAge:         10 * time.Second,
		MinDistanceChange:     0.5,
		MaxDistanceJump:       100,
		MinTimeInterval:       500 * time.Millisecond,
		Adaptive:              true,
		Coordinate:            kalman.DefaultCoordinateConfig(),
		Altitude:              kalman.DefaultAltitudeConfig(),
	}
}

func DefaultSpeedSmoothingConfig() SpeedSmoothingConfig {
	return SpeedSmoothingConfig{WindowSize: 5}
}
