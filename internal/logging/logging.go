package logging

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.SugaredLogger
}

type contextKey string

const loggerKey = contextKey("logger")

func NewRequestID() string {
	return uuid.New().String()
}

func (logger Logger) WithRequestID(id string) Logger {
	return Logger{logger.With("request-id", id)}
}

// WithSearch tags entries with the fingerprint of the search being served.
func (logger Logger) WithSearch(fingerprint string) Logger {
	return Logger{logger.With("search-fingerprint", fingerprint)}
}

// NewLogger builds a named logger. format is "console" or "json"; level is
// any zap level name.
func NewLogger(service, level, format string) (Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(format) {
	case "", "console":
		cfg = zap.NewDevelopmentConfig()
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return Logger{}, fmt.Errorf("unknown log format %q", format)
	}
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return Logger{}, fmt.Errorf("invalid log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	base, err := cfg.Build(zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		return Logger{}, err
	}
	return Logger{base.Sugar().Named(service)}, nil
}

func NewNopLogger() Logger {
	return Logger{zap.NewNop().Sugar()}
}

// Wrap adapts an existing zap logger, e.g. one built by zaptest.
func Wrap(logger *zap.Logger) Logger {
	return Logger{logger.Sugar()}
}

func (logger Logger) AttachToContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger attached to ctx, or a no-op logger.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return NewNopLogger()
}

// FromContextOr returns the logger attached to ctx, or fallback.
func FromContextOr(ctx context.Context, fallback Logger) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return fallback
}
