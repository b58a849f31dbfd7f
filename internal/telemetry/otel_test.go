package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{ServiceName: "abusech-cli", RunID: "run-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "noop")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Error("expected a no-op span without an endpoint")
	}
}

func TestRunResource(t *testing.T) {
	res := runResource(Options{ServiceName: "abusech-cli", ServiceVersion: "1.0.0", RunID: "run-1"})

	want := map[attribute.Key]string{
		"service.name":    "abusech-cli",
		"service.version": "1.0.0",
		RunIDKey:          "run-1",
	}
	got := map[attribute.Key]string{}
	for _, kv := range res.Attributes() {
		got[kv.Key] = kv.Value.AsString()
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: expected %q, got %q", k, v, got[k])
		}
	}
}

func TestFail(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	Fail(span, "decode", errors.New("boom"))
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	if ended[0].Status().Code != codes.Error || ended[0].Status().Description != "decode" {
		t.Errorf("unexpected status %+v", ended[0].Status())
	}
	if len(ended[0].Events()) != 1 {
		t.Errorf("expected the error recorded as an event, got %d events", len(ended[0].Events()))
	}
}
