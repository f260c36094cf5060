// Package observability carries the process-wide logging, metrics and
// tracing setup shared by every entrypoint.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the zap logger for environment. The returned AtomicLevel
// can be adjusted at runtime when the configuration file changes.
func NewLogger(environment, level string) (*zap.Logger, zap.AtomicLevel, error) {
	var zapConfig zap.Config
	if environment == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	atomic := zap.NewAtomicLevelAt(ParseLevel(level))
	zapConfig.Level = atomic

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, atomic, fmt.Errorf("build logger: %w", err)
	}
	return logger, atomic, nil
}

// ParseLevel maps a configured level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
