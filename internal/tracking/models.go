package tracking

import (
	"errors"
	"time"

	"backend-slopetrack/internal/location"
	"backend-slopetrack/internal/pipeline"
	"backend-slopetrack/internal/runs"
	"backend-slopetrack/internal/signal"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidMode     = errors.New("mode must be ski or vehicle")
	ErrNotOwner        = errors.New("session belongs to another device")
)

const (
	ModeSki     = "ski"
	ModeVehicle = "vehicle"

	StatusActive = "active"
	StatusEnded  = "ended"
)

// Session is one tracking day on a device. Totals cover persisted runs only.
type Session struct {
	ID             string     `json:"id"`
	DeviceID       string     `json:"device_id"`
	Name           string     `json:"name"`
	Mode           string     `json:"mode"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Status         string     `json:"status"`
	RunCount       int        `json:"run_count"`
	TotalDistanceM float64    `json:"total_distance_m"`
	TotalDescentM  float64    `json:"total_descent_m"`
}

type StartRequest struct {
	Name string `json:"name"`
	Mode string `json:"mode"`
}

type BatteryStatus struct {
	Level    float64 `json:"level"`
	Charging bool    `json:"charging"`
}

// ReadingBatch is what a device uploads. Readings are processed in order.
type ReadingBatch struct {
	Readings []location.RawReading `json:"readings"`
	Battery  *BatteryStatus        `json:"battery,omitempty"`
}

type BatchResult struct {
	Accepted        int                     `json:"accepted"`
	Rejected        int                     `json:"rejected"`
	Rejections      map[location.Reason]int `json:"rejections"`
	Finalized       []runs.Run              `json:"finalized"`
	Discarded       int                     `json:"discarded"`
	Accuracy        signal.AccuracyTier     `json:"accuracy"`
	AccuracyChanged bool                    `json:"accuracy_changed"`
	Live            pipeline.Live           `json:"live"`
}

type StopResult struct {
	Session       Session   `json:"session"`
	Run           *runs.Run `json:"run,omitempty"`
	DiscardReason string    `json:"discard_reason,omitempty"`
}

const (
	EventLive         = "live"
	EventRunFinalized = "run_finalized"
	EventSessionEnded = "session_ended"
)

// Event is the payload pushed to live subscribers.
type Event struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Live      *pipeline.Live `json:"live,omitempty"`
	Run       *runs.Run      `json:"run,omitempty"`
}
