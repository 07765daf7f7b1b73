package location

import (
	"fmt"
	"time"
)

// Reason names why a raw reading was rejected.
type Reason string

const (
	ReasonNegativeHorizontalAccuracy Reason = "negative_horizontal_accuracy"
	ReasonHorizontalAccuracyTooLarge Reason = "horizontal_accuracy_too_large"
	ReasonNegativeVerticalAccuracy   Reason = "negative_vertical_accuracy"
	ReasonVerticalAccuracyTooLarge   Reason = "vertical_accuracy_too_large"
	ReasonStale                      Reason = "stale"
)

// RejectionError is returned for readings that fail validation.
type RejectionError struct {
	Reason Reason
	Value  float64
	Limit  float64
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("reading rejected: %s (value %.2f, limit %.2f)", e.Reason, e.Value, e.Limit)
}

// Validate checks accuracy ceilings and staleness against now. It never
// touches filter state.
func (p *Processor) Validate(raw RawReading, now time.Time) error {
	return validate(p.cfg, raw, now)
}

func validate(cfg FilteringConfig, raw RawReading, now time.Time) error {
	switch {
	case raw.HorizontalAccuracy < 0:
		return &RejectionError{Reason: ReasonNegativeHorizontalAccuracy, Value: raw.HorizontalAccuracy}
	case raw.HorizontalAccuracy >= cfg.MaxHorizontalAccuracy:
		return &RejectionError{Reason: ReasonHorizontalAccuracyTooLarge, Value: raw.HorizontalAccuracy, Limit: cfg.MaxHorizontalAccuracy}
	case raw.VerticalAccuracy < 0:
		return &RejectionError{Reason: ReasonNegativeVerticalAccuracy, Value: raw.VerticalAccuracy}
	case raw.VerticalAccuracy >= cfg.MaxVerticalAccuracy:
		return &RejectionError{Reason: ReasonVerticalAccuracyTooLarge, Value: raw.VerticalAccuracy, Limit: cfg.MaxVerticalAccuracy}
	}

	if cfg.MaxReadingAge > 0 {
		age := now.Sub(raw.Timestamp)
		if age > cfg.MaxReadingAge {
			return &RejectionError{Reason: ReasonStale, Value: age.Seconds(), Limit: cfg.MaxReadingAge.Seconds()}
		}
	}
	return nil
}
