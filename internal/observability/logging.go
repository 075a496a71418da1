// ABOUTME: log/slog setup driven by config.LoggingConfig (level + text/json format)
// ABOUTME: every package derives its logger via slog.Default().With("component", ...)

package observability

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogging configures the default slog logger's level and format and
// installs it as slog.Default, so every package's
// slog.Default().With("component", "...") call picks it up.
func SetupLogging(level, format string) *slog.Logger {
	var leveler slog.Level
	switch strings.ToLower(level) {
	case "debug":
		leveler = slog.LevelDebug
	case "warn", "warning":
		leveler = slog.LevelWarn
	case "error":
		leveler = slog.LevelError
	default:
		leveler = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: leveler}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
