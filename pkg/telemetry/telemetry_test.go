package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetConfig() {
	current = nil
	loadOnce = sync.Once{}
}

func TestInit_Disabled(t *testing.T) {
	resetConfig()
	t.Setenv("OTEL_ENABLED", "")

	shutdown, err := Init(context.Background(), "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.False(t, Enabled())

	// the no-op tracer still hands out usable spans
	_, span := Tracer().Start(context.Background(), "probe")
	span.End()
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"OTEL_ENABLED", "OTEL_SERVICE_NAME", "OTEL_SERVICE_VERSION", "OTEL_EXPORTER_OTLP_PROTOCOL"} {
		t.Setenv(k, "")
	}

	cfg := LoadFromEnv()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, DefaultServiceName, cfg.ServiceName)
	assert.Empty(t, cfg.ServiceVersion)
	assert.Equal(t, "grpc", cfg.Protocol)
}

func TestLoadFromEnv_Custom(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "TRUE")
	t.Setenv("OTEL_SERVICE_NAME", "sleuth-ci")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "Authorization=Bearer abc=,X-Team=forensics")

	cfg := LoadFromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "sleuth-ci", cfg.ServiceName)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.Equal(t, map[string]string{"Authorization": "Bearer abc=", "X-Team": "forensics"}, cfg.Headers)
}

func TestGetConfig_Cached(t *testing.T) {
	resetConfig()
	t.Setenv("OTEL_SERVICE_NAME", "first")
	first := GetConfig()

	t.Setenv("OTEL_SERVICE_NAME", "second")
	assert.Same(t, first, GetConfig())
	assert.Equal(t, "first", GetConfig().ServiceName)
	resetConfig()
}

func TestParseKeyValuePairs(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]string
	}{
		{"", map[string]string{}},
		{"k=v", map[string]string{"k": "v"}},
		{" a = 1 , b = 2 ", map[string]string{"a": "1", "b": "2"}},
		{"k=", map[string]string{"k": ""}},
		{"bad,=x,ok=y", map[string]string{"ok": "y"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseKeyValuePairs(tt.in), tt.in)
	}
}

func TestSplitEndpoint(t *testing.T) {
	host, plain := splitEndpoint("http://collector:4317")
	assert.Equal(t, "collector:4317", host)
	assert.True(t, plain)

	host, plain = splitEndpoint("https://collector:4317")
	assert.Equal(t, "collector:4317", host)
	assert.False(t, plain)
}

func TestParseRatio(t *testing.T) {
	tests := map[string]float64{"": 1, "0.25": 0.25, "0": 0, "-1": 0, "3": 1, "x": 1}
	for in, want := range tests {
		assert.Equal(t, want, parseRatio(in), in)
	}
}

func TestCreateSampler(t *testing.T) {
	for _, name := range []string{"", "always_on", "always_off", "traceidratio", "parentbased_always_on", "parentbased_always_off", "parentbased_traceidratio"} {
		assert.NotNil(t, createSampler(&Config{Sampler: name, SamplerArg: "0.5"}), name)
	}
	assert.Contains(t, createSampler(&Config{Sampler: "always_off"}).Description(), "AlwaysOff")
}

func TestExtraAttributes(t *testing.T) {
	attrs := extraAttributes(map[string]string{
		"team":         "ir",
		"case.id":      "42",
		"service.name": "ignored",
	})
	require.Len(t, attrs, 2)
	assert.Equal(t, "case.id", string(attrs[0].Key))
	assert.Equal(t, "42", attrs[0].Value.AsString())
	assert.Equal(t, "team", string(attrs[1].Key))
}

func TestBuildResource(t *testing.T) {
	res, err := buildResource(context.Background(), &Config{
		ServiceName:    "dumpsleuth",
		ServiceVersion: "1.2.3",
		ResourceAttrs:  map[string]string{"case.id": "42"},
	})
	require.NoError(t, err)

	got := map[string]string{}
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "dumpsleuth", got["service.name"])
	assert.Equal(t, "1.2.3", got["service.version"])
	assert.Equal(t, "42", got["case.id"])
	assert.NotEmpty(t, got["process.runtime.name"])
}
