package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a JSON logger writing to stderr at the given level.
// Unknown levels fall back to info.
func New(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// Nop returns a logger that discards everything.
func Nop() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return Nop()
	}
	return l
}
