package telemetry

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/dgellow/appbridge/internal/log"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Endpoint returns the configured OTLP traces endpoint, if any.
func Endpoint() string {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

// Setup installs a global OTLP/HTTP tracer provider when an exporter endpoint
// is configured through the standard OTEL_* variables. It reports whether
// tracing is active; callers skip HTTP instrumentation otherwise.
func Setup(ctx context.Context, serviceName, version string) (ShutdownFunc, bool, error) {
	endpoint := Endpoint()
	if endpoint == "" {
		log.LogDebugWithFields("telemetry", "No OTLP endpoint configured, tracing disabled", nil)
		return noopShutdown, false, nil
	}

	var opts []otlptracehttp.Option
	if strings.HasPrefix(strings.ToLower(endpoint), "http://") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return noopShutdown, false, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return noopShutdown, false, fmt.Errorf("building trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	log.LogInfoWithFields("telemetry", "Tracing enabled", map[string]any{
		"endpoint": endpoint,
		"service":  serviceName,
	})
	return tp.Shutdown, true, nil
}
