// internal/logging/logger.go
package logging

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log formats
const (
	FormatJSON = "json"
	FormatText = "text"
)

type contextKey string

var (
	ContextKeyRequestID = contextKey("request_id")
	ContextKeyUserID    = contextKey("user_id")
)

// New builds a zap logger for the given level and format.
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("logging: invalid level: %s", level)
	}

	var cfg zap.Config
	switch format {
	case "", FormatJSON:
		cfg = zap.NewProductionConfig()
	case FormatText:
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("logging: invalid format: %s", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// WithUserID stores the authenticated user id on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// WithRequestID stores the request id on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// UserID returns the user id set by WithUserID, or "".
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyUserID).(string)
	return v
}

// FromContext returns logger decorated with the request and user ids found
// on ctx.
func FromContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if v, ok := ctx.Value(ContextKeyRequestID).(string); ok && v != "" {
		logger = logger.With(zap.String("request_id", v))
	}
	if v, ok := ctx.Value(ContextKeyUserID).(string); ok && v != "" {
		logger = logger.With(zap.String("user_id", v))
	}
	return logger
}
