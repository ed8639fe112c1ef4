// Package telemetry bootstraps OpenTelemetry tracing, adapted from
// go-core/telemetry's OTLP/gRPC bootstrap pattern (metrics there, traces
// here — same exporter family, PeriodicReader replaced by
// BatchSpanProcessor). Tracing stays a no-op (trace.NewNoopTracerProvider)
// unless OTEL_EXPORTER_OTLP_ENDPOINT is configured, per SPEC_FULL.md A.6.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider is satisfied by both the real SDK provider and the no-op
// default, so callers can always defer Shutdown.
type TracerProvider interface {
	trace.TracerProvider
	Shutdown(ctx context.Context) error
}

type noopShutdownProvider struct{ trace.TracerProvider }

func (noopShutdownProvider) Shutdown(context.Context) error { return nil }

// Init bootstraps tracing for serviceName. If endpoint is empty, tracing is
// a no-op and every span is discarded with zero overhead.
func Init(ctx context.Context, serviceName, endpoint string) (TracerProvider, error) {
	if endpoint == "" {
		return noopShutdownProvider{trace.NewNoopTracerProvider()}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}
