package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	tpMu sync.Mutex
	tp   *sdktrace.TracerProvider
)

// InitOpenTelemetry installs the process-wide tracer provider. Calling
// it again after a successful install is a no-op.
func InitOpenTelemetry(serviceName string) error {
	tpMu.Lock()
	defer tpMu.Unlock()
	if tp != nil {
		return nil
	}

	tp = sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	return nil
}

// ShutdownOpenTelemetry flushes and stops the tracer provider.
func ShutdownOpenTelemetry(ctx context.Context) error {
	tpMu.Lock()
	defer tpMu.Unlock()
	if tp == nil {
		return nil
	}
	err := tp.Shutdown(ctx)
	tp = nil
	return err
}

// StartSpan starts a span, seeding the request ID from the span's trace
// when the context does not carry one yet.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))

	if GetRequestID(ctx) == "" {
		sc := span.SpanContext()
		if sc.IsValid() {
			ctx = WithRequestID(ctx, sc.TraceID().String())
		}
	}

	return ctx, span
}
