package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracer(t *testing.T) {
	for _, exporter := range []string{"none", "stdout", "otlp"} {
		t.Run(exporter, func(t *testing.T) {
			shutdown, err := InitTracer(context.Background(), "checkout-payments", "test", Config{Exporter: exporter})
			require.NoError(t, err)
			require.NotNil(t, shutdown)

			_, span := otel.Tracer("test").Start(context.Background(), "op")
			assert.True(t, span.SpanContext().IsValid())
			span.End()
			if exporter != "otlp" {
				assert.NoError(t, shutdown(context.Background()))
			}
		})
	}
}

func TestInitTracer_UnknownExporter(t *testing.T) {
	_, err := InitTracer(context.Background(), "checkout-payments", "test", Config{Exporter: "zipkin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown trace exporter")
}

func TestOTLPOptions(t *testing.T) {
	assert.Len(t, otlpOptions(""), 3)
	assert.Len(t, otlpOptions("https://collector:4318/custom"), 2)
	assert.Len(t, otlpOptions("collector:4318"), 3)
}
