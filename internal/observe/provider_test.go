package observe

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestLogExporter_WritesSpans(t *testing.T) {
	buf := captureLogs(t)
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(NewLogExporter(nil)))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	useGlobalTracer(t, tp)

	ctx, parent := StartConversationSpan(context.Background(), "send", "conv-7", "voice")
	_, child := StartSpan(ctx, "POST /chat")
	Finish(child, errors.New("ghost unreachable"))
	Finish(parent, nil)

	out := buf.String()
	for _, want := range []string{
		"span=\"POST /chat\"",
		"error=\"ghost unreachable\"",
		"parent_id=",
		"span=conversation.send",
		"phantomlink.conversation_id=conv-7",
		"phantomlink.input_mode=voice",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestInitProvider_InstallsGlobals(t *testing.T) {
	origTP, origMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})

	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		Registerer:     prometheus.NewRegistry(),
		TraceExporter:  NewLogExporter(nil),
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Errorf("global tracer provider = %T, want SDK provider", otel.GetTracerProvider())
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
