package observe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig selects where PhantomLink telemetry goes.
type ProviderConfig struct {
	// ServiceName defaults to "phantomlink".
	ServiceName    string
	ServiceVersion string

	// Registerer receives the metrics collector. Nil means
	// prometheus.DefaultRegisterer, the registry the health server scrapes.
	Registerer prometheus.Registerer

	// TraceExporter receives finished spans. Nil keeps spans in-process only,
	// which still gives log lines their trace_id.
	TraceExporter sdktrace.SpanExporter
}

// InitProvider installs the global meter and tracer providers and returns a
// function that flushes and closes both.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "phantomlink"
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	var exporterOpts []promexporter.Option
	if cfg.Registerer != nil {
		exporterOpts = append(exporterOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	reader, err := promexporter.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	meters := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))

	tracerOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tracerOpts = append(tracerOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tracers := sdktrace.NewTracerProvider(tracerOpts...)

	otel.SetMeterProvider(meters)
	otel.SetTracerProvider(tracers)

	return func(ctx context.Context) error {
		return errors.Join(meters.Shutdown(ctx), tracers.Shutdown(ctx))
	}, nil
}

// ── span log ─────────────────────────────────────────────────────────────────

// LogExporter writes every finished span as one debug line. It lets a
// --log-file session carry API and conversation timings without a collector.
type LogExporter struct {
	log *slog.Logger
}

var _ sdktrace.SpanExporter = (*LogExporter)(nil)

// NewLogExporter returns an exporter logging to l, or slog.Default when l is nil.
func NewLogExporter(l *slog.Logger) *LogExporter {
	if l == nil {
		l = slog.Default()
	}
	return &LogExporter{log: l}
}

// ExportSpans implements [sdktrace.SpanExporter].
func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		attrs := []slog.Attr{
			slog.String("span", s.Name()),
			slog.String("trace_id", s.SpanContext().TraceID().String()),
			slog.Duration("duration", s.EndTime().Sub(s.StartTime())),
		}
		if p := s.Parent(); p.IsValid() {
			attrs = append(attrs, slog.String("parent_id", p.SpanID().String()))
		}
		for _, kv := range s.Attributes() {
			attrs = append(attrs, slog.String(string(kv.Key), kv.Value.Emit()))
		}
		if st := s.Status(); st.Description != "" {
			attrs = append(attrs, slog.String("error", st.Description))
		}
		e.log.LogAttrs(ctx, slog.LevelDebug, "span", attrs...)
	}
	return nil
}

// Shutdown implements [sdktrace.SpanExporter].
func (e *LogExporter) Shutdown(context.Context) error { return nil }
