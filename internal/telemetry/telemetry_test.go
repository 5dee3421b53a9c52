package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn, "production")

	logger.Info("dropped")
	logger.Warn("kept", "loan_id", "abc")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"service":"libradesk"`)
	assert.Contains(t, out, `"loan_id":"abc"`)
	assert.NotContains(t, out, `"source"`)
}

func TestSetupTracingExportsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	shutdown, err := SetupTracing(context.Background(), TracingConfig{Exporter: exporter, Env: "test"})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "circulation.create_loan")
	span.End()

	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)
	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "circulation.create_loan", spans[0].Name)

	require.NoError(t, shutdown(context.Background()))
}

func TestSetupTracingWithoutExporter(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TracingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
