package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewParsesLevel(t *testing.T) {
	logger := New("debug")
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %v", logger.GetLevel())
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	logger := New("chatty")
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %v", logger.GetLevel())
	}
}

func TestNopIsSafe(t *testing.T) {
	logger := Nop()
	logger.WithField("reason", "stale").Warn("dropped")
	OrNop(nil).Info("still safe")
}
