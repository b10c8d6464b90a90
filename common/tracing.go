package common

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// TracingOpts configures the OTLP trace exporter.
type TracingOpts struct {
	// Endpoint is the OTLP/gRPC collector address (host:port). Tracing is
	// disabled when empty.
	Endpoint string

	// ServiceName overrides PackageName as the trace resource service name.
	ServiceName string

	// SamplingRate in [0,1]; parent-based ratio sampling.
	SamplingRate float64
}

// InitTracer sets up the global tracer provider with an OTLP/gRPC exporter.
// Returns nil when opts.Endpoint is empty, meaning tracing stays disabled and
// no goroutines are started. Callers must Shutdown the returned provider on
// exit to flush batched spans.
func InitTracer(ctx context.Context, opts *TracingOpts) (*sdktrace.TracerProvider, error) {
	if opts == nil || opts.Endpoint == "" {
		return nil, nil
	}

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = PackageName
	}
	samplingRate := opts.SamplingRate
	if samplingRate <= 0 {
		samplingRate = 1
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(Version),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(samplingRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}
