package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	tp := otel.GetTracerProvider()
	prop := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestInitTracer_Disabled(t *testing.T) {
	restoreGlobals(t)

	shutdown, err := InitTracer(context.Background(), DefaultConfig("carelink-auth"))
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
}

func TestInitTracer_Enabled(t *testing.T) {
	restoreGlobals(t)

	cfg := DefaultConfig("carelink-auth")
	cfg.Enabled = true
	cfg.OTLPEndpoint = "http://127.0.0.1:0"

	shutdown, err := InitTracer(context.Background(), cfg)
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "expected an SDK tracer provider")

	// The collector is unreachable; only the provider teardown matters here.
	_ = shutdown(context.Background())
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.5, "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		desc := newSampler(tt.rate).Description()
		assert.Contains(t, desc, "ParentBased{root:"+tt.want, "rate %v", tt.rate)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in       string
		endpoint string
		insecure bool
	}{
		{"localhost:4318", "localhost:4318", true},
		{"http://otel-collector:4318", "otel-collector:4318", true},
		{"https://collector.example.com/", "collector.example.com", false},
	}
	for _, tt := range tests {
		endpoint, insecure := normalizeEndpoint(tt.in)
		assert.Equal(t, tt.endpoint, endpoint, tt.in)
		assert.Equal(t, tt.insecure, insecure, tt.in)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("carelink-auth")
	assert.Equal(t, "carelink-auth", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, "localhost:4318", cfg.OTLPEndpoint)
}

func TestTracer_StartsSpan(t *testing.T) {
	restoreGlobals(t)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	_, span := Tracer("auth").Start(context.Background(), "login")
	defer span.End()
	assert.NotNil(t, span)
}
