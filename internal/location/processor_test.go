package location

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestProcessor() *Processor {
	cfg := DefaultFilteringConfig()
	cfg.MinDistanceChange = 0.1
	cfg.MaxDistanceJump = 50
	return NewProcessor(cfg, SpeedSmoothingConfig{WindowSize: 3}, nil)
}

func goodReading(ts time.Time) RawReading {
	return RawReading{
		Latitude:           46.5,
		Longitude:          7.5,
		Altitude:           2000,
		HorizontalAccuracy: 5,
		VerticalAccuracy:   4,
		Speed:              -1,
		Timestamp:          ts,
	}
}

func TestValidateRejections(t *testing.T) {
	p := newTestProcessor()

	tests := []struct {
		name   string
		mutate func(r *RawReading)
		now    time.Time
		reason Reason
	}{
		{"negative horizontal", func(r *RawReading) { r.HorizontalAccuracy = -1 }, t0, ReasonNegativeHorizontalAccuracy},
		{"horizontal at ceiling", func(r *RawReading) { r.HorizontalAccuracy = 50 }, t0, ReasonHorizontalAccuracyTooLarge},
		{"horizontal above ceiling", func(r *RawReading) { r.HorizontalAccuracy = 120 }, t0, ReasonHorizontalAccuracyTooLarge},
		{"negative vertical", func(r *RawReading) { r.VerticalAccuracy = -1 }, t0, ReasonNegativeVerticalAccuracy},
		{"vertical above ceiling", func(r *RawReading) { r.VerticalAccuracy = 75 }, t0, ReasonVerticalAccuracyTooLarge},
		{"stale", func(r *RawReading) {}, t0.Add(11 * time.Second), ReasonStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := goodReading(t0)
			tt.mutate(&raw)

			err := p.Validate(raw, tt.now)
			var rej *RejectionError
			require.True(t, errors.As(err, &rej), "expected rejection, got %v", err)
			assert.Equal(t, tt.reason, rej.Reason)

			_, err = p.Process(raw, tt.now)
			require.Error(t, err)
		})
	}
}

func TestValidateAcceptsFreshReading(t *testing.T) {
	p := newTestProcessor()
	assert.NoError(t, p.Validate(goodReading(t0), t0.Add(2*time.Second)))
}

func TestRejectedReadingDoesNotTouchFilters(t *testing.T) {
	p := newTestProcessor()

	bad := goodReading(t0)
	bad.HorizontalAccuracy = -1
	bad.Latitude = 10
	_, err := p.Process(bad, t0)
	require.Error(t, err)

	cleaned, err := p.Process(goodReading(t0), t0)
	require.NoError(t, err)
	// first valid reading must anchor, proving the bad one never reached the filters
	assert.Equal(t, 46.5, cleaned.Latitude)
	assert.Equal(t, 7.5, cleaned.Longitude)
	assert.Equal(t, 2000.0, cleaned.Altitude)
	assert.Empty(t, p.SpeedHistory())
}

func TestProcessCarriesFields(t *testing.T) {
	p := newTestProcessor()
	raw := goodReading(t0)
	raw.Speed = 7.5

	cleaned, err := p.Process(raw, t0)
	require.NoError(t, err)
	assert.Equal(t, raw.Timestamp, cleaned.Timestamp)
	assert.Equal(t, raw.HorizontalAccuracy, cleaned.HorizontalAccuracy)
	assert.Equal(t, raw.VerticalAccuracy, cleaned.VerticalAccuracy)
	assert.Equal(t, 7.5, cleaned.Speed)
}

func TestProcessSmoothsNoise(t *testing.T) {
	p := newTestProcessor()
	_, err := p.Process(goodReading(t0), t0)
	require.NoError(t, err)

	spike := goodReading(t0.Add(time.Second))
	spike.Altitude = 2100
	cleaned, err := p.Process(spike, spike.Timestamp)
	require.NoError(t, err)
	assert.Greater(t, cleaned.Altitude, 2000.0)
	assert.Less(t, cleaned.Altitude, 2100.0)
}

func TestCalculateSpeedMovingAverage(t *testing.T) {
	p := newTestProcessor()

	a := CleanedReading{Latitude: 46.0, Longitude: 7.0, Altitude: 1000, Timestamp: t0}
	// straight drop of 10m in one second
	b := CleanedReading{Latitude: 46.0, Longitude: 7.0, Altitude: 990, Timestamp: t0.Add(time.Second)}
	c := CleanedReading{Latitude: 46.0, Longitude: 7.0, Altitude: 970, Timestamp: t0.Add(2 * time.Second)}

	assert.InDelta(t, 10, p.CalculateSpeed(a, b), 1e-9)
	assert.InDelta(t, 15, p.CalculateSpeed(b, c), 1e-9)
	assert.Len(t, p.SpeedHistory(), 2)
}

func TestCalculateSpeedShortIntervalReusesLast(t *testing.T) {
	p := newTestProcessor()
	a := CleanedReading{Latitude: 46.0, Longitude: 7.0, Altitude: 1000, Timestamp: t0}
	b := CleanedReading{Latitude: 46.0, Longitude: 7.0, Altitude: 990, Timestamp: t0.Add(time.Second)}
	first := p.CalculateSpeed(a, b)

	c := CleanedReading{Latitude: 46.0, Longitude: 7.0, Altitude: 900, Timestamp: b.Timestamp.Add(100 * time.Millisecond)}
	assert.Equal(t, first, p.CalculateSpeed(b, c))
	assert.Len(t, p.SpeedHistory(), 1)

	same := CleanedReading{Latitude: 46.0, Longitude: 7.0, Altitude: 900, Timestamp: b.Timestamp}
	assert.Equal(t, first, p.CalculateSpeed(b, same))
}

func TestRecordSpeedEvictsOldest(t *testing.T) {
	p := newTestProcessor()
	for _, v := range []float64{1, 2, 3, 10} {
		p.RecordSpeed(SpeedSample{Value: v})
	}
	history := p.SpeedHistory()
	require.Len(t, history, 3)
	assert.Equal(t, 2.0, history[0].Value)
	assert.Equal(t, 10.0, history[2].Value)
	assert.InDelta(t, 5.0, p.SmoothedSpeed(), 1e-12)
}

func TestIsDistanceRealistic(t *testing.T) {
	p := newTestProcessor()
	assert.True(t, p.IsDistanceRealistic(5))
	assert.True(t, p.IsDistanceRealistic(0.1))
	assert.False(t, p.IsDistanceRealistic(0.05))
	assert.False(t, p.IsDistanceRealistic(50))
	assert.False(t, p.IsDistanceRealistic(200))
}

func TestResetClearsState(t *testing.T) {
	p := newTestProcessor()
	_, _ = p.Process(goodReading(t0), t0)
	p.RecordSpeed(SpeedSample{Value: 4})

	p.Reset()
	assert.Empty(t, p.SpeedHistory())
	assert.Zero(t, p.SmoothedSpeed())

	moved := goodReading(t0.Add(time.Minute))
	moved.Latitude = 47
	cleaned, err := p.Process(moved, moved.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, 47.0, cleaned.Latitude)
}

func TestConfigureShrinksWindow(t *testing.T) {
	p := newTestProcessor()
	for _, v := range []float64{1, 2, 3} {
		p.RecordSpeed(SpeedSample{Value: v})
	}
	p.Configure(p.Config(), SpeedSmoothingConfig{WindowSize: 2})
	history := p.SpeedHistory()
	require.Len(t, history, 2)
	assert.Equal(t, 2.0, history[0].Value)
	assert.False(t, math.IsNaN(p.SmoothedSpeed()))
}
