package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogExporterWritesSpans(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	exporter := NewLogExporter(zap.New(core))
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "capture")
	span.SetAttributes(attribute.String("webshot.target", "example.com"))
	span.SetStatus(codes.Error, "timeout")
	span.End()

	entries := logs.FilterMessage("span finished").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "capture", fields["span"])
	assert.Equal(t, "example.com", fields["webshot.target"])
	assert.Equal(t, "Error", fields["status"])
	assert.NotEmpty(t, fields["trace_id"])
}

func TestLogExporterNilLogger(t *testing.T) {
	t.Parallel()

	exporter := NewLogExporter(nil)
	require.NoError(t, exporter.ExportSpans(context.Background(), nil))
	require.NoError(t, exporter.Shutdown(context.Background()))
}
