// Package tracer wires OpenTelemetry for the CLI. Spans follow one routed
// generation: airouter.generate, its airouter.attempt children, and the
// llm.chat span each adapter opens.
package tracer

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"talentscan/internal/infra/config"
)

const (
	tracerName  = "talentscan"
	serviceName = "talentscan"
)

// Setup installs the global TracerProvider and returns its shutdown func.
// Disabled tracing, or the noop exporter, installs a noop provider. The
// stdout exporter writes to stderr so command output stays parseable.
func Setup(ctx context.Context, cfg config.TracerConfig) (func(context.Context) error, error) {
	return setupWithWriter(ctx, cfg, os.Stderr)
}

func setupWithWriter(_ context.Context, cfg config.TracerConfig, w io.Writer) (func(context.Context) error, error) {
	if !cfg.Enabled || cfg.Exporter == "" || cfg.Exporter == "noop" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}
	if cfg.Exporter != "stdout" {
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// sampler keeps ratio of root traces. Child spans follow their parent so a
// generation is never exported with holes.
func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// StartSpan starts a span on the global talentscan tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// RecordError attaches err as an exception event and marks the span failed.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks the span successful.
func SetOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// StringAttr builds a string span attribute.
func StringAttr(key, value string) attribute.KeyValue { return attribute.String(key, value) }

// IntAttr builds an int span attribute.
func IntAttr(key string, value int) attribute.KeyValue { return attribute.Int(key, value) }

// Int64Attr builds an int64 span attribute, used for millisecond latencies.
func Int64Attr(key string, value int64) attribute.KeyValue { return attribute.Int64(key, value) }
