// Package telemetry wires OpenTelemetry tracing around the broker's
// hot path. Nothing here is on the fast path when tracing is disabled:
// an empty OTLP endpoint yields a no-op TracerProvider, the same shape
// otel itself provides when nothing is configured.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls whether and where traces are exported.
type Config struct {
	Endpoint    string
	ServiceName string
	Insecure    bool
	Headers     map[string]string
}

// Provider wraps the configured TracerProvider plus its dedicated
// tracer, and knows how to shut itself down cleanly on exit.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// Setup builds a Provider from cfg. An empty Endpoint disables export
// but still returns spans — they are simply dropped by a TracerProvider
// configured with no span processor, which matches otel's own
// recommended no-op pattern.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceNameOr(cfg.ServiceName)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.Endpoint != "" {
		exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			exporterOpts = append(exporterOpts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("build otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp, tracer: tp.Tracer("github.com/nextlevelbuilder/relaybus")}, nil
}

func serviceNameOr(name string) string {
	if name == "" {
		return "relaybus"
	}
	return name
}

// Shutdown flushes any buffered spans and releases exporter resources,
// bounded by ctx's deadline.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// StartSpan opens a span named name (expected to be one of the
// relaybus.validate / relaybus.broker.{listen,broadcast,respond,request}
// operation names) carrying channel and role as attributes, and
// returns the function that ends it — callers defer the result.
func (p *Provider) StartSpan(ctx context.Context, name, channel, role string) (context.Context, func(err error)) {
	if p == nil {
		return ctx, func(error) {}
	}
	spanCtx, span := p.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("relaybus.channel", channel),
		attribute.String("relaybus.role", role),
	))
	start := time.Now()
	return spanCtx, func(err error) {
		span.SetAttributes(attribute.Int64("relaybus.duration_ms", time.Since(start).Milliseconds()))
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
