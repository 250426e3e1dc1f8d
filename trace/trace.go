// Package trace provides tracing instrumentation for scenario runs.
package trace

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/grafana/devtools-scenarios/log"
)

const tracerName = "devtools.scenarios"

// liveSpan represents the active span of a scenario run.
//
// Steps and browser events of a run are reported from different places
// (the scenario body, event listeners) that don't share a context, so the
// tracer keeps the run's span and makes it reachable by run ID.
type liveSpan struct {
	ctx  context.Context
	span trace.Span
}

// Tracer generates spans for scenario runs, their steps and the browser
// events observed while they run.
type Tracer struct {
	logger *log.Logger

	trace.Tracer

	metadata []attribute.KeyValue

	liveSpansMu sync.RWMutex
	liveSpans   map[string]*liveSpan
}

// NewTracer creates a new Tracer from the given TracerProvider.
func NewTracer(logger *log.Logger, tp trace.TracerProvider, metadata map[string]string, options ...trace.TracerOption) *Tracer {
	return &Tracer{
		logger:    logger,
		Tracer:    tp.Tracer(tracerName, options...),
		metadata:  buildMetadataAttributes(metadata),
		liveSpans: make(map[string]*liveSpan),
	}
}

// Start overrides the underlying OTEL tracer method to include the tracer metadata.
func (t *Tracer) Start(
	ctx context.Context, spanName string, opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	opts = append(opts, trace.WithAttributes(t.metadata...))
	return t.Tracer.Start(ctx, spanName, opts...)
}

// GetTraceID returns the trace ID of spanCtx, if any.
func GetTraceID(spanCtx trace.SpanContext) string {
	if spanCtx.HasTraceID() {
		traceID := spanCtx.TraceID()
		return traceID.String()
	}
	return ""
}

// TraceScenario records a new live span for the run identified by runID.
// If the run already had one, it is ended first. The span is ended by
// EndScenario.
func (t *Tracer) TraceScenario(
	ctx context.Context, runID, scenario string, opts ...trace.SpanStartOption,
) context.Context {
	t.liveSpansMu.Lock()
	defer t.liveSpansMu.Unlock()

	ls := t.liveSpans[runID]
	if ls != nil {
		ls.span.End()
	} else {
		ls = &liveSpan{}
	}

	opts = append(opts, trace.WithAttributes(
		attribute.String("scenario.name", scenario),
		attribute.String("scenario.run_id", runID),
	))
	ls.ctx, ls.span = t.Start(ctx, scenario, opts...)
	t.liveSpans[runID] = ls

	traceID := GetTraceID(trace.SpanContextFromContext(ls.ctx))
	t.logger.Debugf("Tracer:TraceScenario", "spanName:%q traceID:%q runID:%q", scenario, traceID, runID)

	return ls.ctx
}

// EndScenario ends the live span of runID, recording err as its status.
func (t *Tracer) EndScenario(runID string, err error) {
	t.liveSpansMu.Lock()
	defer t.liveSpansMu.Unlock()

	ls := t.liveSpans[runID]
	if ls == nil {
		t.logger.Debugf("Tracer:EndScenario", "no live span for runID:%q", runID)
		return
	}
	delete(t.liveSpans, runID)

	if err != nil {
		ls.span.RecordError(err)
		ls.span.SetStatus(codes.Error, err.Error())
	} else {
		ls.span.SetStatus(codes.Ok, "")
	}
	ls.span.End()
}

// TraceStep adds a new span to the live span of runID and returns it. It is
// the caller's responsibility to end the generated span.
// Without a live span, the new span is created based on the given context.
func (t *Tracer) TraceStep(
	ctx context.Context, runID, spanName string, opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	t.liveSpansMu.RLock()
	ls := t.liveSpans[runID]
	t.liveSpansMu.RUnlock()

	if ls == nil {
		t.logger.Debugf("Tracer:TraceStep", "no live span spanName:%q runID:%q", spanName, runID)
		sCtx, span := t.Start(ctx, spanName, opts...)

		return sCtx, &SpanLogger{Span: span, logger: t.logger, spanName: spanName}
	}

	sCtx, span := t.Start(ls.ctx, spanName, opts...)

	return sCtx, &SpanLogger{Span: span, logger: t.logger, spanName: spanName}
}

// AddEvent records a browser event on the live span of runID. Events of
// runs without a live span are dropped.
func (t *Tracer) AddEvent(runID, eventName string, attrs ...attribute.KeyValue) {
	t.liveSpansMu.RLock()
	defer t.liveSpansMu.RUnlock()

	ls := t.liveSpans[runID]
	if ls == nil {
		t.logger.Debugf("Tracer:AddEvent", "no live span, skipping %q for runID:%q", eventName, runID)
		return
	}
	ls.span.AddEvent(eventName, trace.WithAttributes(attrs...))
}

func buildMetadataAttributes(metadata map[string]string) []attribute.KeyValue {
	meta := make([]attribute.KeyValue, 0, len(metadata))
	for mk, mv := range metadata {
		meta = append(meta, attribute.String(mk, mv))
	}

	return meta
}

// SpanLogger is a Span that will log the method calls.
type SpanLogger struct {
	trace.Span
	logger   *log.Logger
	spanName string
}

// SetStatus will log some info before calling the underlying SetStatus.
func (i *SpanLogger) SetStatus(code codes.Code, description string) {
	traceID := GetTraceID(i.SpanContext())
	i.logger.Debugf("Span:SetStatus", "spanName:%q traceID:%q code:%q description:%q", i.spanName, traceID, code, description)

	i.Span.SetStatus(code, description)
}

// End will log some info before calling the underlying End.
func (i *SpanLogger) End(options ...trace.SpanEndOption) {
	traceID := GetTraceID(i.SpanContext())
	i.logger.Tracef("Span:End", "spanName:%q traceID:%q", i.spanName, traceID)

	i.Span.End(options...)
}

// RecordError will log some info before calling the underlying RecordError.
func (i *SpanLogger) RecordError(err error, options ...trace.EventOption) {
	traceID := GetTraceID(i.SpanContext())
	i.logger.Debugf("Span:RecordError", "spanName:%q traceID:%q err:%q", i.spanName, traceID, err)

	i.Span.RecordError(err, options...)
}
