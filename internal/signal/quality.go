package signal

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// QualityTier grades recent accuracy, ordered best to worst.
type QualityTier int

const (
	QualityExcellent QualityTier = iota
	QualityGood
	QualityFair
	QualityPoor
	QualityUnusable
)

var qualityNames = [...]string{
	QualityExcellent: "excellent",
	QualityGood:      "good",
	QualityFair:      "fair",
	QualityPoor:      "poor",
	QualityUnusable:  "unusable",
}

func (q QualityTier) String() string {
	if q < QualityExcellent || q > QualityUnusable {
		return "unknown"
	}
	return qualityNames[q]
}

func (q QualityTier) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

func (q *QualityTier) UnmarshalText(text []byte) error {
	for tier, name := range qualityNames {
		if name == string(text) {
			*q = QualityTier(tier)
			return nil
		}
	}
	return fmt.Errorf("unknown quality tier %q", text)
}

// QualityConfig holds the window size and the mean-accuracy upper bounds
// (exclusive, meters) of each tier. Anything at or above PoorBelow is unusable.
type QualityConfig struct {
	WindowSize     int
	ExcellentBelow float64
	GoodBelow      float64
	FairBelow      float64
	PoorBelow      float64
	WarnAt         QualityTier
}

func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		WindowSize:     10,
		ExcellentBelow: 5,
		GoodBelow:      10,
		FairBelow:      20,
		PoorBelow:      50,
		WarnAt:         QualityPoor,
	}
}

// QualityMonitor keeps a FIFO of horizontal accuracies and grades their mean.
type QualityMonitor struct {
	cfg    QualityConfig
	window []float64
	mean   float64
	tier   QualityTier
}

func NewQualityMonitor(cfg QualityConfig) *QualityMonitor {
	if cfg.WindowSize < 1 {
		cfg.WindowSize = 1
	}
	return &QualityMonitor{
		cfg:    cfg,
		window: make([]float64, 0, cfg.WindowSize),
		tier:   QualityUnusable,
	}
}

// Update records one horizontal accuracy and returns the resulting tier.
// Negative accuracies carry no information and are ignored.
func (m *QualityMonitor) Update(accuracy float64) QualityTier {
	if accuracy < 0 {
		return m.tier
	}
	if len(m.window) >= m.cfg.WindowSize {
		m.window = append(m.window[:0], m.window[len(m.window)-m.cfg.WindowSize+1:]...)
	}
	m.window = append(m.window, accuracy)
	m.mean = stat.Mean(m.window, nil)
	m.tier = m.classify(m.mean)
	return m.tier
}

func (m *QualityMonitor) classify(mean float64) QualityTier {
	switch {
	case mean < m.cfg.ExcellentBelow:
		return QualityExcellent
	case mean < m.cfg.GoodBelow:
		return QualityGood
	case mean < m.cfg.FairBelow:
		return QualityFair
	case mean < m.cfg.PoorBelow:
		return QualityPoor
	default:
		return QualityUnusable
	}
}

func (m *QualityMonitor) Tier() QualityTier { return m.tier }
func (m *QualityMonitor) MeanAccuracy() float64 { return m.mean }
func (m *QualityMonitor) Samples() int { return len(m.window) }

// IsPoor reports whether the user should be warned about the signal.
func (m *QualityMonitor) IsPoor() bool {
	return len(m.window) > 0 && m.tier >= m.cfg.WarnAt
}

func (m *QualityMonitor) Configure(cfg QualityConfig) {
	if cfg.WindowSize < 1 {
		cfg.WindowSize = 1
	}
	m.cfg = cfg
	if over := len(m.window) - cfg.WindowSize; over > 0 {
		m.window = append(m.window[:0], m.window[over:]...)
	}
	if len(m.window) > 0 {
		m.mean = stat.Mean(m.window, nil)
		m.tier = m.classify(m.mean)
	}
}

func (m *QualityMonitor) Reset() {
	m.window = m.window[:0]
	m.mean = 0
	m.tier = QualityUnusable
}
