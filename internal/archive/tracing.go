package archive

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig selects and configures the span exporter every archive
// Open/Close/Write*/Read*/Verify call reports to, spec's ambient
// instrumentation requirement generalized from the teacher's per-HTTP-
// request audit events to per-archive-operation spans.
type TracingConfig struct {
	// Exporter is one of "jaeger", "otlp", "stdout", or "" (disabled:
	// a no-op tracer is installed).
	Exporter string

	// JaegerEndpoint is the collector HTTP endpoint, used when Exporter
	// is "jaeger".
	JaegerEndpoint string

	// OTLPEndpoint is the collector gRPC endpoint, used when Exporter
	// is "otlp".
	OTLPEndpoint string

	ServiceName string
}

// NewTracerProvider builds an sdktrace.TracerProvider from cfg. Callers
// should defer Shutdown on the returned provider.
func NewTracerProvider(ctx context.Context, cfg TracingConfig) (*sdktrace.TracerProvider, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "barchive"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("archive: build tracing resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "":
		return sdktrace.NewTracerProvider(sdktrace.WithResource(res)), nil
	case "jaeger":
		exporter, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)))
	case "otlp":
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("archive: unknown tracing exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: build %s exporter: %w", cfg.Exporter, err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

const tracerName = "github.com/rtanaka/barchive/internal/archive"

func tracer() trace.Tracer { return otel.Tracer(tracerName) }

// SetTracerProvider installs provider as the process-wide OpenTelemetry
// tracer provider; every subsequent archive span is recorded through it.
// otel.Tracer defaults to a no-op provider until this (or another
// caller) sets one, so tracing is opt-in.
func SetTracerProvider(provider trace.TracerProvider) {
	otel.SetTracerProvider(provider)
}
