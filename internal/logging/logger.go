// Package logging builds the process logger and annotates errors with the
// pipeline operation they came from.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a JSON structured logger. debug lowers the level to Debug.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// OrNop returns logger, or a no-op logger when nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// WithOperation enriches the logger with operation and trace identifiers.
func WithOperation(logger *zap.Logger, operation, traceID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	return logger.With(fields...)
}
