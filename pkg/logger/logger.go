// Package logger provides the structured slog logger shared by every module.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides *slog.Logger to the fx graph.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)

// NewLogger builds a logger from LOG_LEVEL and GO_ENV.
// Production uses a JSON handler, everything else a text handler.
func NewLogger() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if os.Getenv("GO_ENV") == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
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

// NewZap returns a zap logger at the same level as NewLogger.
// Used by the goose migrator, which predates the slog migration.
func NewZap() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if os.Getenv("GO_ENV") == "production" {
		cfg = zap.NewProductionConfig()
	}

	switch parseLevel(os.Getenv("LOG_LEVEL")) {
	case slog.LevelDebug:
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case slog.LevelWarn:
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case slog.LevelError:
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

// Scope tags log lines with the emitting component.
func Scope(name string) slog.Attr {
	return slog.String("scope", name)
}

// Error attaches an error under the "error" key.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}
