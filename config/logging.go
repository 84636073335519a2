package config

import (
	"log/slog"
	"os"
	"strings"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging installs a text slog handler on stderr as the default
// logger. level is one of DEBUG, INFO, WARN, ERROR; anything else means INFO.
func ConfigureLogging(level string) {
	logLevel.Set(parseLevel(level))
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel changes the level of the logger installed by ConfigureLogging.
func SetLogLevel(level string) {
	logLevel.Set(parseLevel(level))
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}
