// Package replay turns recorded activities into raw readings and pushes
// them through a tracker offline.
package replay

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"backend-slopetrack/internal/location"

	"github.com/tormoder/fit"
)

var ErrNoFixes = errors.New("activity has no GPS fixes")

// DecodeOptions fills in what FIT records do not carry.
type DecodeOptions struct {
	// HorizontalAccuracy is used when a record has no GPS accuracy field.
	HorizontalAccuracy float64
	// VerticalAccuracy is applied to every reading.
	VerticalAccuracy float64
}

func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{HorizontalAccuracy: 5, VerticalAccuracy: 5}
}

// DecodeFile opens path and decodes it with Decode.
func DecodeFile(path string, opts DecodeOptions) ([]location.RawReading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open FIT file: %w", err)
	}
	defer f.Close()
	return Decode(f, opts)
}

// Decode reads a FIT activity and returns its GPS fixes in time order.
// Records without a position, timestamp or altitude are skipped; a missing
// speed is reported as -1.
func Decode(r io.Reader, opts DecodeOptions) ([]location.RawReading, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode FIT file: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("activity FIT expected: %w", err)
	}

	readings := make([]location.RawReading, 0, len(activity.Records))
	for _, rec := range activity.Records {
		reading, ok := readingFromRecord(rec, opts)
		if ok {
			readings = append(readings, reading)
		}
	}
	if len(readings) == 0 {
		return nil, ErrNoFixes
	}

	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})
	return readings, nil
}

func readingFromRecord(rec *fit.RecordMsg, opts DecodeOptions) (location.RawReading, bool) {
	if rec == nil || rec.Timestamp.IsZero() || fit.IsBaseTime(rec.Timestamp) {
		return location.RawReading{}, false
	}
	if rec.PositionLat.Invalid() || rec.PositionLong.Invalid() {
		return location.RawReading{}, false
	}
	altitude, ok := extractAltitude(rec)
	if !ok {
		return location.RawReading{}, false
	}

	horizontal := opts.HorizontalAccuracy
	if rec.GpsAccuracy != math.MaxUint8 && rec.GpsAccuracy > 0 {
		horizontal = float64(rec.GpsAccuracy)
	}

	return location.RawReading{
		Latitude:           rec.PositionLat.Degrees(),
		Longitude:          rec.PositionLong.Degrees(),
		Altitude:           altitude,
		HorizontalAccuracy: horizontal,
		VerticalAccuracy:   opts.VerticalAccuracy,
		Speed:              extractSpeed(rec),
		Timestamp:          rec.Timestamp.UTC(),
	}, true
}

func extractAltitude(rec *fit.RecordMsg) (float64, bool) {
	alt := rec.GetEnhancedAltitudeScaled()
	if isFinite(alt) {
		return alt, true
	}
	alt = rec.GetAltitudeScaled()
	if isFinite(alt) {
		return alt, true
	}
	return 0, false
}

func extractSpeed(rec *fit.RecordMsg) float64 {
	speed := rec.GetEnhancedSpeedScaled()
	if isFinite(speed) && speed >= 0 {
		return speed
	}
	speed = rec.GetSpeedScaled()
	if isFinite(speed) && speed >= 0 {
		return speed
	}
	return -1
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
