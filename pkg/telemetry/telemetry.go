// Package telemetry wires OpenTelemetry tracing for analysis runs.
//
// Tracing is off unless OTEL_ENABLED=true. When off, Tracer returns the
// global no-op tracer and spans cost nothing. The exporter honours the
// standard OTEL_EXPORTER_OTLP_* variables:
//
//	OTEL_ENABLED                 enable tracing (default false)
//	OTEL_SERVICE_NAME            service name (default dumpsleuth)
//	OTEL_SERVICE_VERSION         overrides the build version
//	OTEL_EXPORTER_OTLP_ENDPOINT  collector endpoint
//	OTEL_EXPORTER_OTLP_PROTOCOL  grpc or http/protobuf (default grpc)
//	OTEL_EXPORTER_OTLP_HEADERS   key=value,... sent with every export
//	OTEL_EXPORTER_OTLP_INSECURE  plaintext transport
//	OTEL_TRACES_SAMPLER          always_on, always_off, traceidratio, parentbased_*
//	OTEL_TRACES_SAMPLER_ARG      sampler ratio
//	OTEL_RESOURCE_ATTRIBUTES     extra resource attributes
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer used by all packages of the tool.
const InstrumentationName = "github.com/dump-sleuth"

var (
	current  *Config
	loadOnce sync.Once
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs the global tracer provider when tracing is enabled.
// version is used as service.version unless OTEL_SERVICE_VERSION is set.
func Init(ctx context.Context, version string) (ShutdownFunc, error) {
	cfg := loadConfig()
	if !cfg.Enabled {
		return noopShutdown, nil
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = version
	}

	res, err := buildResource(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}
	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(createSampler(cfg)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// Tracer returns the tool's tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Enabled reports whether tracing was requested.
func Enabled() bool {
	return loadConfig().Enabled
}

// GetConfig returns the cached environment configuration.
func GetConfig() *Config {
	return loadConfig()
}

func loadConfig() *Config {
	loadOnce.Do(func() {
		current = LoadFromEnv()
	})
	return current
}
