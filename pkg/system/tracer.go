package system

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/syncbench/tdk"

// GetTracer returns the tracer of the globally registered provider. Spans
// are dropped unless the embedding program installs a provider.
func GetTracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}

// NewSpan starts a span named after a client operation, tagged with the
// index of the test server it targets.
func NewSpan(ctx context.Context, name string, serverIndex int,
	opts ...oteltrace.SpanStartOption) (context.Context, oteltrace.Span) {
	opts = append(opts, oteltrace.WithAttributes(attribute.Int("server.index", serverIndex)))
	return GetTracer().Start(ctx, name, opts...)
}

// NewRootSpan starts a span that ignores any parent in ctx, for top-level
// commands.
func NewRootSpan(ctx context.Context, name string) (context.Context, oteltrace.Span) {
	return GetTracer().Start(ctx, name, oteltrace.WithNewRoot())
}
