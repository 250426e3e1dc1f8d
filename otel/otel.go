// Package otel provides higher level APIs around Open Telemetry instrumentation.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "devtools-scenarios"

// Supported exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// ErrUnsupportedExporter indicates that the requested exporter is not supported.
var ErrUnsupportedExporter = errors.New("unsupported exporter")

// TraceProvider provides methods for tracers initialization and shutdown of the
// processing pipeline.
type TraceProvider interface {
	trace.TracerProvider
	Shutdown(ctx context.Context) error
}

type (
	traceProvShutdownFunc func(ctx context.Context) error
)

type traceProvider struct {
	trace.TracerProvider

	noop bool

	shutdown traceProvShutdownFunc
}

// NewTraceProvider creates a new trace provider exporting to w. exporter
// is one of ExporterNone or ExporterStdout.
func NewTraceProvider(exporter string, w io.Writer) (TraceProvider, error) {
	switch strings.ToLower(exporter) {
	case "", ExporterNone:
		return NewNoopTraceProvider(), nil
	case ExporterStdout:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExporter, exporter)
	}

	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}

	return newSDKTraceProvider(sdktrace.NewBatchSpanProcessor(exp)), nil
}

// NewTraceProviderWithProcessor creates a trace provider sending spans to
// sp, as is done by tests recording spans.
func NewTraceProviderWithProcessor(sp sdktrace.SpanProcessor) TraceProvider {
	return newSDKTraceProvider(sp)
}

func newSDKTraceProvider(sp sdktrace.SpanProcessor) TraceProvider {
	prov := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sp),
		sdktrace.WithResource(newResource()),
	)

	otel.SetTracerProvider(prov)

	return &traceProvider{
		TracerProvider: prov,
		shutdown:       prov.Shutdown,
	}
}

func newResource() *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)
}

// NewNoopTraceProvider creates a new noop trace provider.
func NewNoopTraceProvider() TraceProvider {
	prov := noop.NewTracerProvider()

	otel.SetTracerProvider(prov)

	return &traceProvider{
		TracerProvider: prov,
		noop:           true,
	}
}

// Shutdown shuts down TracerProvider releasing any held computational resources.
// After Shutdown is called, all methods are no-ops.
func (tp *traceProvider) Shutdown(ctx context.Context) error {
	if tp.noop {
		return nil
	}

	return tp.shutdown(ctx)
}
