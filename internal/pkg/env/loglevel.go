package env

import (
	"log/slog"
	"strings"
)

// ParseLogLevel reads the LOG_LEVEL environment variable and returns the
// corresponding slog.Level. Accepts the slog level names in any case, with an
// optional offset ("debug", "INFO", "warn+2"). Falls back to the provided
// default if the variable is empty or unrecognised.
func ParseLogLevel(fallback slog.Level) slog.Level {
	raw := strings.TrimSpace(Get("LOG_LEVEL", ""))
	if raw == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}
	return level
}
