package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"git.home.luguber.info/inful/projectbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	shutdown, err := Init(t.Context(), config.TelemetryConfig{}, "dev")
	require.NoError(t, err)
	require.NoError(t, shutdown(t.Context()))
}

func TestInit_RequiresServiceName(t *testing.T) {
	_, err := Init(t.Context(), config.TelemetryConfig{Enabled: true}, "dev")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestNewTracerProvider_EmitsSpansWithResource(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp, err := newTracerProvider(exp, "projectbuilder", "v1.2.3")
	require.NoError(t, err)

	_, span := tp.Tracer(TracerName).Start(t.Context(), "build")
	span.End()
	require.NoError(t, tp.ForceFlush(t.Context()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "build", spans[0].Name)

	found := false
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == attribute.Key("service.version") {
			found = kv.Value.AsString() == "v1.2.3"
		}
	}
	assert.True(t, found, "service.version resource attribute")
	require.NoError(t, tp.Shutdown(t.Context()))
}
