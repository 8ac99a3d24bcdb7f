// Package observability wires the ambient stack for a transfer run:
// structured logging (zap), distributed tracing (OpenTelemetry), process
// memory sampling (gopsutil), and Prometheus metrics.
package observability

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	loggerOnce   sync.Once
)

// LogConfig configures the process logger.
type LogConfig struct {
	Level       string // debug | info | warn | error
	Development bool
	Encoding    string // json | console
}

// InitLogger builds and installs the global logger. Safe to call more
// than once; only the first call takes effect.
func InitLogger(cfg LogConfig) error {
	var err error
	loggerOnce.Do(func() {
		globalLogger, err = newLogger(cfg)
	})
	return err
}

func newLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	if cfg.Development {
		logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return logger, nil
}

// Logger returns the global logger, building a default info/json one on
// first use if InitLogger was never called.
func Logger() *zap.Logger {
	if globalLogger == nil {
		if err := InitLogger(LogConfig{Level: "info", Encoding: "json"}); err != nil {
			fallback, _ := zap.NewProduction()
			globalLogger = fallback
		}
	}
	return globalLogger
}

// Sync flushes any buffered log entries, tolerating the usual
// sync-on-a-tty noise zap produces on stdout/stderr.
func Sync() error {
	if globalLogger == nil {
		return nil
	}
	err := globalLogger.Sync()
	if err == nil {
		return nil
	}
	switch err.Error() {
	case "sync /dev/stdout: invalid argument", "sync /dev/stderr: invalid argument":
		return nil
	default:
		return err
	}
}

type contextKey string

const jobIDKey contextKey = "job_id"

// WithJobID attaches a job identifier to ctx for correlated logging
// across a transfer run's lifetime.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// FromContext returns a logger annotated with any job ID found on ctx.
func FromContext(ctx context.Context) *zap.Logger {
	logger := Logger()
	if jobID, ok := ctx.Value(jobIDKey).(string); ok && jobID != "" {
		logger = logger.With(zap.String("job_id", jobID))
	}
	return logger
}
