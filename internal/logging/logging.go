// Package logging builds the client's zap logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSink describes where session logs go
type LogSink struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string `json:"level" toml:"level"`
	// File is an optional log file written next to stderr.
	File string `json:"file" toml:"file"`
	// Development switches to the console encoder.
	Development bool `json:"development" toml:"development"`
}

// ParseLevel maps a level name to a zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// New builds a logger for sink.
func New(sink LogSink) (*zap.Logger, error) {
	level, err := ParseLevel(sink.Level)
	if err != nil {
		return nil, err
	}

	config := zap.NewProductionConfig()
	if sink.Development {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{"stderr"}
	if sink.File != "" {
		config.OutputPaths = append(config.OutputPaths, sink.File)
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
