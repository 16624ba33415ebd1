// Package log wraps a single process-wide zap logger so every component
// logs through the same structured sink with the correlation id attached
// automatically.
package log

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/clareai/llmgateway/internal/ctxkeys"
)

var (
	globalBase  *zap.Logger
	globalSugar *zap.SugaredLogger
)

// Init builds the global logger for env. "development"/"local" get zap's
// development console encoder; anything else gets production JSON.
func Init(env string) (*zap.Logger, error) {
	if globalBase != nil {
		return globalBase, nil
	}

	var cfg zap.Config
	if strings.EqualFold(env, "development") || strings.EqualFold(env, "local") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(base)
	globalBase = base
	globalSugar = base.Sugar()
	return globalBase, nil
}

// L returns the global sugared logger. If Init was never called, the first
// use runs Init with the LOG_ENV environment variable (production JSON
// unless it is "development"/"local") and falls back to zap's development
// logger only if that build fails.
func L() *zap.SugaredLogger {
	if globalSugar == nil {
		if _, err := Init(os.Getenv("LOG_ENV")); err != nil {
			base, _ := zap.NewDevelopment()
			globalBase = base
			globalSugar = base.Sugar()
		}
	}
	return globalSugar
}

// Base returns the non-sugared global logger.
func Base() *zap.Logger {
	L()
	return globalBase
}

func withCorrelation(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}
	if id, ok := ctx.Value(ctxkeys.CorrelationID).(string); ok && id != "" {
		return append(fields, zap.String("correlation_id", id))
	}
	return fields
}

// Debug logs at debug level, attaching the correlation id from ctx if present.
func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	Base().Debug(msg, withCorrelation(ctx, fields)...)
}

// Info logs at info level, attaching the correlation id from ctx if present.
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	Base().Info(msg, withCorrelation(ctx, fields)...)
}

// Warn logs at warn level, attaching the correlation id from ctx if present.
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	Base().Warn(msg, withCorrelation(ctx, fields)...)
}

// Error logs at error level, attaching the correlation id from ctx if present.
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	Base().Error(msg, withCorrelation(ctx, fields)...)
}

// Sync flushes any buffered log entries. Call once at shutdown.
func Sync() {
	if globalSugar != nil {
		_ = globalSugar.Sync()
	}
}
