package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Trace-specific variables take precedence over the generic ones.
const (
	envEndpoint       = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envTracesEndpoint = "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"
	envProtocol       = "OTEL_EXPORTER_OTLP_PROTOCOL"
	envTracesProtocol = "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"
)

type exportProtocol string

const (
	protocolHTTP exportProtocol = "http/protobuf"
	protocolGRPC exportProtocol = "grpc"
)

// exportSettings returns the protocol spans are sent with, and false when no
// collector endpoint is configured.
func exportSettings() (exportProtocol, bool) {
	_, generic := os.LookupEnv(envEndpoint)
	_, traces := os.LookupEnv(envTracesEndpoint)
	if !generic && !traces {
		return "", false
	}
	p := protocolHTTP
	for _, key := range []string{envProtocol, envTracesProtocol} {
		if v := os.Getenv(key); v != "" {
			p = exportProtocol(v)
		}
	}
	return p, true
}

// newExporter builds an exporter for p. The otlp clients read the endpoint
// and headers from the environment themselves.
func newExporter(ctx context.Context, p exportProtocol) (*otlptrace.Exporter, error) {
	switch p {
	case protocolHTTP:
		return otlptracehttp.New(ctx)
	case protocolGRPC:
		return otlptracegrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", p)
	}
}

// installTracerProvider makes the global tracer provider batch spans to the
// configured collector. It reports false when tracing is not configured.
func installTracerProvider(ctx context.Context) (bool, error) {
	p, ok := exportSettings()
	if !ok {
		return false, nil
	}
	exp, err := newExporter(ctx, p)
	if err != nil {
		return false, err
	}
	otel.SetTracerProvider(sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(newResource()),
	))
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return true, nil
}

// shutdownTracerProvider flushes and stops the global provider when it is
// one installTracerProvider could have set.
func shutdownTracerProvider(ctx context.Context) error {
	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	if !ok {
		return nil
	}
	return tp.Shutdown(ctx)
}
