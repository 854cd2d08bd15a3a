package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer installs the tracer behind StartSpan. Setup calls it; tests may pass nil.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan opens a span named "package.Type.Method". Without a tracer it returns the
// span already on ctx, which may be a no-op span.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// TraceID is the hex trace id on ctx, or "" outside a sampled trace.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
