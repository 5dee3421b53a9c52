// Package telemetry builds the process logger and tracer provider.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const ServiceName = "libradesk"

// NewLogger returns a JSON logger at level. Development builds add source
// locations.
func NewLogger(w io.Writer, level slog.Level, env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, AddSource: env == "development"}
	return slog.New(slog.NewJSONHandler(w, opts)).With("service", ServiceName)
}

// TracingConfig selects where spans go. With neither Endpoint nor Exporter set
// spans are sampled and dropped.
type TracingConfig struct {
	Endpoint string // OTLP/HTTP collector URL
	Exporter sdktrace.SpanExporter
	Env      string
	Version  string
}

// SetupTracing installs the global tracer provider and propagator. The
// returned function flushes and stops the provider.
func SetupTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", cfg.Version),
		attribute.String("deployment.environment", cfg.Env),
	)
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	exporter := cfg.Exporter
	if exporter == nil && cfg.Endpoint != "" {
		var err error
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}
