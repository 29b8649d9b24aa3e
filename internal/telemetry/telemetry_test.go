package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := Init(ctx, Config{
		ServiceName:    "ridefinder-api",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	})

	require.NoError(t, err)
	assert.NotNil(t, provider)
	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)

	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)

	assert.NoError(t, provider.Shutdown(ctx))
}

func TestProvider_Shutdown_NilProviders(t *testing.T) {
	provider := &Provider{}
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{1, "AlwaysOnSampler"},
		{1.5, "AlwaysOnSampler"},
		{0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		got := sampler(tt.ratio).Description()
		assert.Contains(t, got, tt.want, "ratio %v", tt.ratio)
	}
}

func TestSampler_RatioDropsSomeRoots(t *testing.T) {
	s := sampler(0.0001)
	params := sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       [16]byte{8: 0xff, 9: 0xff, 10: 0xff, 11: 0xff, 12: 0xff, 13: 0xff, 14: 0xff, 15: 0xff},
		Name:          "POST /v1/routes",
	}

	assert.Equal(t, sdktrace.Drop, s.ShouldSample(params).Decision)
}

func TestSampler_ZeroRecordsNothing(t *testing.T) {
	params := sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       [16]byte{15: 1},
		Name:          "POST /v1/routes",
	}

	assert.Equal(t, sdktrace.Drop, sampler(0).ShouldSample(params).Decision)
	assert.Equal(t, sdktrace.RecordAndSample, sampler(1).ShouldSample(params).Decision)
}

func TestTracer_ReturnsGlobalTracer(t *testing.T) {
	assert.NotNil(t, Tracer("ridefinder"))
}

func TestMeter_ReturnsGlobalMeter(t *testing.T) {
	assert.NotNil(t, Meter("ridefinder"))
}
