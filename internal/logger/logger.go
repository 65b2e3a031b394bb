package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON logger for production and a human-readable text logger
// everywhere else. LOG_LEVEL overrides the default info level.
func New(env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level(os.Getenv("LOG_LEVEL"))}

	var h slog.Handler
	if strings.EqualFold(env, "production") || strings.EqualFold(env, "prod") {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h).With("service", "clinic-booking")
}

func level(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
