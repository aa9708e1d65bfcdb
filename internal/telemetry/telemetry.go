// Package telemetry wires the global OpenTelemetry tracer and meter
// providers used by the cache and gateway packages. Both of those
// packages call otel.Tracer/otel.Meter at package init time against
// the global provider, which is a safe no-op until Init is called —
// grounded on the same "construct the client once, instrument
// unconditionally" shape as internal/storage/dolt/store.go's
// doltTracer/doltMetrics, and on go-ethereum's
// internal/telemetry/telemetry_test.go use of an SDK TracerProvider
// wrapping a swappable exporter.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Shutdown flushes and releases any providers Init installed. Calling
// Shutdown when Init was never called (or was called with enabled=false)
// is a no-op.
type Shutdown func(context.Context) error

// Init installs stdout-backed tracer and meter providers as the global
// OpenTelemetry providers when enabled is true; otherwise it leaves the
// default no-op providers in place. Call the returned Shutdown before
// process exit to flush buffered spans/metrics.
func Init(enabled bool) (Shutdown, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutdown meter provider: %w", err)
		}
		return nil
	}, nil
}
