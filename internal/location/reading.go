package location

import "time"

// RawReading is one sample as delivered by the device. Negative accuracies
// mark the value as invalid, a negative speed means the device did not
// report one.
type RawReading struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           float64   `json:"altitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
	VerticalAccuracy   float64   `json:"vertical_accuracy"`
	Speed              float64   `json:"speed"`
	Timestamp          time.Time `json:"timestamp"`
}

// CleanedReading is a validated reading with smoothed coordinates and
// altitude. Timestamp, accuracies and device speed are carried unchanged.
type CleanedReading struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           float64   `json:"altitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
	VerticalAccuracy   float64   `json:"vertical_accuracy"`
	Speed              float64   `json:"speed"`
	Timestamp          time.Time `json:"timestamp"`
}

// SpeedSource tags where a speed value came from.
type SpeedSource int

const (
	SpeedComputed SpeedSource = iota
	SpeedDevice
	SpeedBlended
)

func (s SpeedSource) String() string {
	switch s {
	case SpeedDevice:
		return "device"
	case SpeedBlended:
		return "blended"
	default:
		return "computed"
	}
}

// MarshalText lets SpeedSource appear as a name in JSON payloads.
func (s SpeedSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SpeedSample is a derived speed in m/s.
type SpeedSample struct {
	Value  float64     `json:"value"`
	Source SpeedSource `json:"source"`
}
