package observability

import (
	"context"
)

// Config is the full observability setup for one process invocation.
type Config struct {
	Log     LogConfig
	Tracing TracingConfig
}

// shutdownFunc is set by Initialize so Shutdown can stop the tracer
// provider it started; nil when tracing was never initialized.
var shutdownFunc func(context.Context) error

// Initialize builds the global logger and, when cfg.Tracing.SamplingRate
// is positive, installs a tracer provider. Call Shutdown before process
// exit to flush both.
func Initialize(cfg Config) error {
	if err := InitLogger(cfg.Log); err != nil {
		return err
	}
	if cfg.Tracing.SamplingRate > 0 {
		shutdown, err := InitTracing(cfg.Tracing)
		if err != nil {
			return err
		}
		shutdownFunc = shutdown
	}
	return nil
}

// Shutdown flushes the logger and, if tracing was initialized, stops the
// tracer provider.
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		if err := shutdownFunc(ctx); err != nil {
			return err
		}
	}
	return Sync()
}
