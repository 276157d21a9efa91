package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/MrWong99/phantomlink"

// Span attribute keys for conversation spans.
const (
	AttrConversationID = attribute.Key("phantomlink.conversation_id")
	AttrInputMode      = attribute.Key("phantomlink.input_mode")
)

// StartSpan starts a span on the global tracer provider. End it with [Finish]
// or span.End.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartConversationSpan starts an internal span for one operation on a ghost
// conversation. API calls made with the returned context become its children.
// An empty mode is left off.
func StartConversationSpan(ctx context.Context, op, convID, mode string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{AttrConversationID.String(convID)}
	if mode != "" {
		attrs = append(attrs, AttrInputMode.String(mode))
	}
	return StartSpan(ctx, "conversation."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// Finish marks span failed when err is non-nil and ends it.
func Finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID is the hex trace ID carried by ctx, or "" without a span.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger is slog.Default with trace_id and span_id attached when ctx has a
// recording span context.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
