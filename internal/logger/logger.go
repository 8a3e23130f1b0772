// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and small helpers
// for tagging log lines with the symbol and cycle being processed.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps a config string to a slog level. Unknown values fall
// back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ForSymbol returns a child logger tagged with the symbol being processed.
func ForSymbol(l *slog.Logger, symbol string) *slog.Logger {
	return l.With(slog.String("symbol", symbol))
}

// CycleID builds an identifier for one poll cycle, used to correlate the
// fan-out of per-symbol work back to the cycle that spawned it.
// Format: "{kind}-{unixNano}".
func CycleID(kind string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", kind, ts.UnixNano())
}
