// Package observe provides application-wide observability primitives for
// PhantomLink: OpenTelemetry metrics, tracing helpers, trace-aware logging,
// and an instrumented HTTP transport for calls to the ghost service.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so the health server can
// expose them on /metrics. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all PhantomLink metrics.
const meterName = "github.com/MrWong99/phantomlink"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// ── ghost service API ──

	// APIRequests counts calls to the ghost service. Attributes: op, status.
	APIRequests metric.Int64Counter

	// APIDuration tracks ghost service round-trip latency. Attribute: op.
	APIDuration metric.Float64Histogram

	// APIErrors counts failed calls (transport errors and 5xx). Attribute: op.
	APIErrors metric.Int64Counter

	// ── conversation ──

	// ConversationsStarted counts conversations by input mode.
	ConversationsStarted metric.Int64Counter

	// ConversationsEnded counts end attempts. Attribute: outcome (saved, failed).
	ConversationsEnded metric.Int64Counter

	// ActiveConversations is the number of conversations in progress.
	ActiveConversations metric.Int64UpDownCounter

	// RevealsCompleted counts replies that were fully revealed. Attribute: mode.
	RevealsCompleted metric.Int64Counter

	// AmbientEffects counts triggered ambient effects. Attribute: effect.
	AmbientEffects metric.Int64Counter

	// ── speech ──

	// SpeechDuration tracks recognition and synthesis latency. Attribute: stage.
	SpeechDuration metric.Float64Histogram

	// CaptureFailures counts failed spoken inputs. Attribute: reason.
	CaptureFailures metric.Int64Counter
}

// latencyBuckets are histogram boundaries in seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.APIRequests, err = m.Int64Counter("phantomlink.api.requests",
		metric.WithDescription("Ghost service requests by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.APIDuration, err = m.Float64Histogram("phantomlink.api.duration",
		metric.WithDescription("Ghost service round-trip latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.APIErrors, err = m.Int64Counter("phantomlink.api.errors",
		metric.WithDescription("Failed ghost service requests by operation."),
	); err != nil {
		return nil, err
	}

	if met.ConversationsStarted, err = m.Int64Counter("phantomlink.conversations.started",
		metric.WithDescription("Conversations started by input mode."),
	); err != nil {
		return nil, err
	}
	if met.ConversationsEnded, err = m.Int64Counter("phantomlink.conversations.ended",
		metric.WithDescription("Conversation end attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveConversations, err = m.Int64UpDownCounter("phantomlink.conversations.active",
		metric.WithDescription("Conversations currently in progress."),
	); err != nil {
		return nil, err
	}
	if met.RevealsCompleted, err = m.Int64Counter("phantomlink.reveals.completed",
		metric.WithDescription("Ghost replies fully revealed, by input mode."),
	); err != nil {
		return nil, err
	}
	if met.AmbientEffects, err = m.Int64Counter("phantomlink.ambient.effects",
		metric.WithDescription("Ambient effects triggered, by effect."),
	); err != nil {
		return nil, err
	}

	if met.SpeechDuration, err = m.Float64Histogram("phantomlink.speech.duration",
		metric.WithDescription("Speech recognition and synthesis latency by stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CaptureFailures, err = m.Int64Counter("phantomlink.speech.capture_failures",
		metric.WithDescription("Failed spoken inputs by reason."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAPIRequest records one ghost service call.
func (m *Metrics) RecordAPIRequest(ctx context.Context, op, status string, d time.Duration) {
	m.APIRequests.Add(ctx, 1, metric.WithAttributes(Attr("op", op), Attr("status", status)))
	m.APIDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("op", op)))
}

// RecordAPIError records a failed ghost service call.
func (m *Metrics) RecordAPIError(ctx context.Context, op string) {
	m.APIErrors.Add(ctx, 1, metric.WithAttributes(Attr("op", op)))
}

// RecordConversationStarted counts a new conversation and bumps the active gauge.
func (m *Metrics) RecordConversationStarted(ctx context.Context, mode string) {
	m.ConversationsStarted.Add(ctx, 1, metric.WithAttributes(Attr("mode", mode)))
	m.ActiveConversations.Add(ctx, 1)
}

// RecordConversationEnded counts an end attempt. A saved conversation also
// leaves the active gauge.
func (m *Metrics) RecordConversationEnded(ctx context.Context, saved bool) {
	outcome := "failed"
	if saved {
		outcome = "saved"
		m.ActiveConversations.Add(ctx, -1)
	}
	m.ConversationsEnded.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordConversationAbandoned leaves the active gauge without an end attempt.
func (m *Metrics) RecordConversationAbandoned(ctx context.Context) {
	m.ActiveConversations.Add(ctx, -1)
}

// RecordReveal counts a completed reveal.
func (m *Metrics) RecordReveal(ctx context.Context, mode string) {
	m.RevealsCompleted.Add(ctx, 1, metric.WithAttributes(Attr("mode", mode)))
}

// RecordEffect counts a triggered ambient effect.
func (m *Metrics) RecordEffect(ctx context.Context, effect string) {
	m.AmbientEffects.Add(ctx, 1, metric.WithAttributes(Attr("effect", effect)))
}

// RecordSpeech records the latency of a speech stage ("stt" or "tts").
func (m *Metrics) RecordSpeech(ctx context.Context, stage string, d time.Duration) {
	m.SpeechDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("stage", stage)))
}

// RecordCaptureFailure counts a failed spoken input.
func (m *Metrics) RecordCaptureFailure(ctx context.Context, reason string) {
	m.CaptureFailures.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}
