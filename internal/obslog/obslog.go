// Package obslog sets up the per-process structured logger used by every
// supervisor binary: one charmbracelet/log logger per component, stamped
// with a random operation id so a single run's log lines can be
// correlated without a tracing backend.
package obslog

import (
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// New returns a logger for component, filtered by LOG_LEVEL (default
// info), with a permanent "op" field set to a fresh 8-character operation
// id, so one run's log lines can be correlated without a tracing
// backend.
func New(component string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          component,
	})
	logger.SetLevel(levelFromEnv())
	opID := uuid.NewString()[:8]
	return logger.With("op", opID)
}

func levelFromEnv() log.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}
