// Package observability wires OpenTelemetry tracing for thor runs.
//
// Each run is one trace: pipeline.run is the root span, with guard.check,
// fetch.search, fetch.details and aggregate.listings beneath it. Until Init
// installs a provider, the global no-op tracer is used, so library code can
// start spans unconditionally.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/thor/pkg/config"
)

const instrumentationName = "github.com/ajitpratap0/thor"

// Span names.
const (
	SpanRun       = "pipeline.run"
	SpanGuard     = "guard.check"
	SpanSearch    = "fetch.search"
	SpanDetails   = "fetch.details"
	SpanAggregate = "aggregate.listings"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Init installs a global tracer provider for the configured exporter.
// Exporter "none" (or empty) leaves the no-op provider in place.
func Init(ctx context.Context, cfg config.TracingConfig, version string) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "", "none":
		return noop, nil
	case "stdout":
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "thor"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := NewProvider(res, sampler(cfg.SamplingRate), sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// NewProvider builds a tracer provider; tests pass a span recorder as the
// processor option.
func NewProvider(res *resource.Resource, s sdktrace.Sampler, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	all := []sdktrace.TracerProviderOption{sdktrace.WithSampler(s)}
	if res != nil {
		all = append(all, sdktrace.WithResource(res))
	}
	return sdktrace.NewTracerProvider(append(all, opts...)...)
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer returns the thor tracer from the current global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a span tagged with the site it works on.
func StartSpan(ctx context.Context, name, site string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("thor.site", site))
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// End finishes span, recording err when it is non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
