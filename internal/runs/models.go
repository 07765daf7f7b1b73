package runs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNoActiveRun = errors.New("no active run")
	ErrNotFound    = errors.New("run not found")
)

type RoutePoint struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Altitude  float64   `json:"alt"`
	Speed     float64   `json:"speed_mps"`
	Timestamp time.Time `json:"timestamp"`
}

// Run is a finalized descent that passed validation.
type Run struct {
	ID              string       `json:"id"`
	SessionID       string       `json:"session_id"`
	StartTime       time.Time    `json:"start_time"`
	EndTime         time.Time    `json:"end_time"`
	Route           []RoutePoint `json:"route"`
	TopSpeed        float64      `json:"top_speed_mps"`
	TopSpeedPoint   RoutePoint   `json:"top_speed_point"`
	AverageSpeed    float64      `json:"average_speed_mps"`
	Distance        float64      `json:"distance_m"`
	StartElevation  float64      `json:"start_elevation_m"`
	EndElevation    float64      `json:"end_elevation_m"`
	VerticalDescent float64      `json:"vertical_descent_m"`
	AverageSlope    float64      `json:"average_slope_deg"`
	MaxSlope        float64      `json:"max_slope_deg"`
	PointCount      int          `json:"point_count"`
}

func (r Run) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// ActiveRun is a snapshot of the run being accumulated.
type ActiveRun struct {
	StartTime      time.Time        `json:"start_time"`
	StartElevation float64          `json:"start_elevation_m"`
	Validation     ValidationConfig `json:"-"`
	Route          []RoutePoint     `json:"route"`
	Speeds         []float64        `json:"-"`
	TopSpeed       float64          `json:"top_speed_mps"`
	TopSpeedPoint  RoutePoint       `json:"top_speed_point"`
	Distance       float64          `json:"distance_m"`
}

// ValidationConfig is captured when a run starts and applied when it ends.
type ValidationConfig struct {
	MinDuration    time.Duration
	MinDistance    float64 // meters
	MinDescent     float64 // meters
	RequireDescent bool
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MinDuration:    10 * time.Second,
		MinDistance:    50,
		MinDescent:     10,
		RequireDescent: true,
	}
}

type Criterion string

const (
	CriterionDuration Criterion = "duration"
	CriterionDistance Criterion = "distance"
	CriterionDescent  Criterion = "descent"
)

// Failure is one unmet validation criterion.
type Failure struct {
	Criterion Criterion `json:"criterion"`
	Actual    float64   `json:"actual"`
	Required  float64   `json:"required"`
}

func (f Failure) String() string {
	return fmt.Sprintf("%s %.1f below minimum %.1f", f.Criterion, f.Actual, f.Required)
}

// ValidationError lists every criterion a candidate run failed.
type ValidationError struct {
	Failures []Failure
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.String())
	}
	return "run rejected: " + strings.Join(parts, "; ")
}

// Has reports whether the given criterion failed.
func (e *ValidationError) Has(c Criterion) bool {
	for _, f := range e.Failures {
		if f.Criterion == c {
			return true
		}
	}
	return false
}

// Validate checks a candidate against cfg. Every check runs regardless of
// the others.
func Validate(cfg ValidationConfig, candidate Run) error {
	var failures []Failure
	if d := candidate.Duration(); d < cfg.MinDuration {
		failures = append(failures, Failure{Criterion: CriterionDuration, Actual: d.Seconds(), Required: cfg.MinDuration.Seconds()})
	}
	if candidate.Distance < cfg.MinDistance {
		failures = append(failures, Failure{Criterion: CriterionDistance, Actual: candidate.Distance, Required: cfg.MinDistance})
	}
	if cfg.RequireDescent && candidate.VerticalDescent < cfg.MinDescent {
		failures = append(failures, Failure{Criterion: CriterionDescent, Actual: candidate.VerticalDescent, Required: cfg.MinDescent})
	}
	if len(failures) == 0 {
		return nil
	}
	return &ValidationError{Failures: failures}
}
