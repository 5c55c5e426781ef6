package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation name for studynotes spans.
const TracerName = "studynotes"

// Span attribute keys
const (
	AttrRequestID     = "request_id"
	AttrTitle         = "video_title"
	AttrStage         = "stage"
	AttrModel         = "model"
	AttrSectionNumber = "section_number"
	AttrSectionTitle  = "section_title"
	AttrChunks        = "chunks"
	AttrFailedChunks  = "failed_chunks"
	AttrEntries       = "entries"
	AttrPromptChars   = "prompt_chars"
	AttrErrorCode     = "error_code"
	AttrRetryable     = "retryable"
)

// Span names
const (
	SpanPipelineRun = "studynotes.pipeline.run"
	SpanSection     = "studynotes.section.summarize"
	SpanGenerate    = "studynotes.generate"
)

// Tracer wraps the global OpenTelemetry tracer. Without a configured
// provider the spans are no-ops.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// NewTracerFrom creates a Tracer from an explicit provider.
func NewTracerFrom(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

func (t *Tracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	// A nil Tracer must not hand back the caller's span; callers End it.
	if t == nil {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartRunSpan starts the root span for one pipeline run.
func (t *Tracer) StartRunSpan(ctx context.Context, requestID, title string, entries int) (context.Context, trace.Span) {
	return t.start(ctx, SpanPipelineRun,
		attribute.String(AttrRequestID, requestID),
		attribute.String(AttrTitle, title),
		attribute.Int(AttrEntries, entries),
	)
}

// StartStageSpan starts a span for a pipeline stage (decode, detect, assemble).
func (t *Tracer) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return t.start(ctx, fmt.Sprintf("studynotes.stage.%s", stage),
		attribute.String(AttrStage, stage),
	)
}

// StartSectionSpan starts a span covering one section's summarization.
func (t *Tracer) StartSectionSpan(ctx context.Context, number int, title string) (context.Context, trace.Span) {
	return t.start(ctx, SpanSection,
		attribute.Int(AttrSectionNumber, number),
		attribute.String(AttrSectionTitle, title),
	)
}

// StartGenerateSpan starts a span for one generation call.
func (t *Tracer) StartGenerateSpan(ctx context.Context, model string, promptChars int) (context.Context, trace.Span) {
	return t.start(ctx, SpanGenerate,
		attribute.String(AttrModel, model),
		attribute.Int(AttrPromptChars, promptChars),
	)
}

// SpanHelper sets studynotes attributes on a span.
type SpanHelper struct {
	span trace.Span
}

// NewSpanHelper wraps span.
func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetSectionResult records chunk counts for a summarized section.
func (h *SpanHelper) SetSectionResult(chunks, failed int) {
	h.span.SetAttributes(
		attribute.Int(AttrChunks, chunks),
		attribute.Int(AttrFailedChunks, failed),
	)
}

// SetError records an error on the span.
func (h *SpanHelper) SetError(err error, code string, retryable bool) {
	h.span.SetStatus(codes.Error, err.Error())
	h.span.SetAttributes(
		attribute.String(AttrErrorCode, code),
		attribute.Bool(AttrRetryable, retryable),
	)
	h.span.RecordError(err)
}

// SetSuccess marks the span as successful.
func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span.
func (h *SpanHelper) AddEvent(name string, attrs ...attribute.KeyValue) {
	h.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace ID from the context, or "".
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
