// Package telemetry wraps the dag engine's build paths — engine build
// and flush, and idmap head assignment — in OpenTelemetry spans; the
// ancestry query methods are not traced. Settings come from a config.TelemetryConfig (the "telemetry"
// section of a segdag config file, see pkg/config), always overridable
// at process start by the standard OTEL_* environment variables (see
// Config and FromAppConfig).
//
// Usage:
//
//	func main() {
//	    cfg, _ := config.Load(configPath)
//	    shutdown, err := telemetry.Init(context.Background(), cfg.Telemetry)
//	    if err != nil {
//	        logger.Warn("telemetry disabled", "error", err)
//	    }
//	    defer shutdown(context.Background())
//	}
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/segdag/segdag/pkg/config"
)

var (
	globalConfig *Config
	configOnce   sync.Once
)

// ShutdownFunc flushes and tears down the TracerProvider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(_ context.Context) error { return nil }

// Init initializes OpenTelemetry and installs the global
// TracerProvider, resolving settings from tc overridden by any
// OTEL_* environment variable that is set. If the resolved config is
// not Enabled, Init returns a no-op shutdown function and leaves the
// default no-op TracerProvider in place — every tracer.Start call
// already made by internal/engine and internal/idmap
// becomes a true no-op rather than needing a build tag or flag to
// disable.
//
// Init is safe to call multiple times; only the first call resolves
// and caches the configuration.
func Init(ctx context.Context, tc config.TelemetryConfig) (ShutdownFunc, error) {
	cfg := loadConfig(tc)

	if !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := buildResource(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	sampler := createSampler(cfg)

	tp := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(exporter),
		trace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return tp.Shutdown(ctx)
	}, nil
}

// Enabled reports whether tracing was resolved as enabled. Before the
// first Init call it resolves from environment variables alone, using
// config's defaults (see internal/catalog, which checks this before
// registering the otel gorm plugin).
func Enabled() bool {
	return loadConfig(config.TelemetryConfig{}).Enabled
}

// GetConfig returns the resolved telemetry configuration.
func GetConfig() *Config {
	return loadConfig(config.TelemetryConfig{})
}

func loadConfig(tc config.TelemetryConfig) *Config {
	configOnce.Do(func() {
		globalConfig = FromAppConfig(tc)
	})
	return globalConfig
}
