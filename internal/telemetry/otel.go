// Package telemetry owns the run's tracer provider.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/gustycube/abusech-cli"

// RunIDKey tags every span and the resource with the run id.
const RunIDKey = attribute.Key("abusech.run_id")

// Options selects where spans go. An empty Endpoint keeps tracing off.
type Options struct {
	Endpoint       string
	Insecure       bool
	ServiceName    string
	ServiceVersion string
	RunID          string
}

// ShutdownFunc flushes pending spans.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs a global tracer provider exporting over OTLP/HTTP. With no
// endpoint the global no-op provider is left in place.
func Init(ctx context.Context, opts Options) (ShutdownFunc, error) {
	if opts.Endpoint == "" {
		return noopShutdown, nil
	}
	clientOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, clientOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), runResource(opts))
	if err != nil {
		// schema URL clash with the SDK default; keep our attributes
		res = runResource(opts)
	}
	// runs are short; Shutdown flushes whatever the batcher still holds
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func runResource(opts Options) *resource.Resource {
	attrs := []attribute.KeyValue{semconv.ServiceName(opts.ServiceName)}
	if opts.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(opts.ServiceVersion))
	}
	if opts.RunID != "" {
		attrs = append(attrs, RunIDKey.String(opts.RunID))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// Tracer returns the tool's tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentation)
}

// Fail marks span as failed at stage and records err on it.
func Fail(span trace.Span, stage string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
}
