package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), Config{ServiceName: "shop"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.Equal(t, before, otel.GetTracerProvider())
}

func TestSetup_RegistersProvider(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	shutdown, err := Setup(context.Background(), Config{
		Endpoint:       "http://localhost:4318/",
		ServiceName:    "shop",
		ServiceVersion: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)
}

func TestNormalizeEndpoint(t *testing.T) {
	require.Equal(t, "otel-collector:4318", normalizeEndpoint(" http://otel-collector:4318/ "))
	require.Equal(t, "collector:4318", normalizeEndpoint("https://collector:4318"))
	require.Equal(t, "collector:4318", normalizeEndpoint("collector:4318"))
}

func TestSampler(t *testing.T) {
	require.Equal(t, sdktrace.AlwaysSample().Description(), sampler(0).Description())
	require.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	require.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
