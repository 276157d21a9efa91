package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Transport is an [http.RoundTripper] that instruments calls to the ghost
// service. For every request it:
//
//  1. Starts a client span named after the operation ("POST /chat").
//  2. Injects W3C Trace Context into the outgoing headers.
//  3. Records request count and latency, plus an error count for transport
//     failures and 5xx responses.
//  4. Logs the completed call at debug level with trace info.
type Transport struct {
	// Base performs the actual request. Nil means http.DefaultTransport.
	Base http.RoundTripper

	// Metrics receives the measurements. Nil means DefaultMetrics.
	Metrics *Metrics
}

var _ http.RoundTripper = (*Transport)(nil)

// RoundTrip implements [http.RoundTripper].
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	m := t.Metrics
	if m == nil {
		m = DefaultMetrics()
	}

	op := req.Method + " " + req.URL.Path
	ctx, span := StartSpan(req.Context(), op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLPath(req.URL.Path),
			semconv.ServerAddress(req.URL.Hostname()),
		),
	)
	defer span.End()

	// RoundTrippers must not modify the caller's request.
	req = req.Clone(ctx)
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(req.Header))
	if cid := CorrelationID(ctx); cid != "" {
		req.Header.Set("X-Correlation-ID", cid)
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	elapsed := time.Since(start)

	status := "error"
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.RecordAPIError(ctx, op)
	} else {
		status = http.StatusText(resp.StatusCode)
		span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))
		if resp.StatusCode >= 500 {
			span.SetStatus(codes.Error, resp.Status)
			m.RecordAPIError(ctx, op)
		}
	}
	m.RecordAPIRequest(ctx, op, status, elapsed)

	Logger(ctx).LogAttrs(ctx, slog.LevelDebug, "api call",
		slog.String("op", op),
		slog.String("status", status),
		slog.Duration("duration", elapsed),
	)
	return resp, err
}
