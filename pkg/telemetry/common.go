// Package telemetry exports the client's spans over OTLP when the standard
// OpenTelemetry endpoint variables are set.
package telemetry

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/syncbench/tdk/pkg/version"
)

const serviceName = "tdk"

// SetupFromEnvs installs a global tracer provider if an OTLP endpoint is
// configured. Without one, spans stay no-ops.
func SetupFromEnvs() {
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Debug().Err(err).Msg("span export failed")
	}))

	installed, err := installTracerProvider(context.Background())
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("spans will not be exported")
	case installed:
		log.Debug().Msg("exporting spans over OTLP")
	}
}

// Cleanup flushes the remaining spans to the exporter and releases the
// provider.
func Cleanup() error {
	if err := shutdownTracerProvider(context.Background()); err != nil {
		return errors.Wrap(err, "flushing spans")
	}
	return nil
}

// newResource returns a resource describing this application.
func newResource() *resource.Resource {
	res, err := resource.Merge(
		resource.Environment(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version.GITVERSION),
		),
	)
	if err != nil {
		log.Debug().Err(err).Msg("using the default otel resource")
		res = resource.Default()
	}
	return res
}
