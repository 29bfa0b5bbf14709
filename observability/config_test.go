package observability

import (
	"testing"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Enabled: true}
	cfg.ApplyDefaults()

	assert.Equal(t, "kintone-client", cfg.Service.Name)
	assert.Equal(t, "unknown", cfg.Service.Version)
	assert.Equal(t, EnvironmentDevelopment, cfg.Environment)
	assert.Equal(t, EndpointStdout, cfg.Trace.Endpoint)
	assert.Equal(t, ProtocolHTTP, cfg.Trace.Protocol)
	require.NotNil(t, cfg.Trace.SampleRate)
	assert.InDelta(t, 1.0, *cfg.Trace.SampleRate, 0)
	assert.Equal(t, 500*time.Millisecond, cfg.Trace.BatchTimeout)
	assert.Equal(t, EndpointStdout, cfg.Metrics.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.Metrics.Interval)
}

func TestApplyDefaultsMetricsInheritTrace(t *testing.T) {
	cfg := &Config{
		Enabled: true,
		Trace: TraceConfig{ExporterConfig: ExporterConfig{
			Endpoint: "collector:4317",
			Protocol: ProtocolGRPC,
			Insecure: true,
			Headers:  map[string]string{"api-key": "k"},
		}},
	}
	cfg.ApplyDefaults()

	assert.Equal(t, "collector:4317", cfg.Metrics.Endpoint)
	assert.Equal(t, ProtocolGRPC, cfg.Metrics.Protocol)
	assert.True(t, cfg.Metrics.Insecure)
	assert.Equal(t, "k", cfg.Metrics.Headers["api-key"])
	assert.Equal(t, 5*time.Second, cfg.Trace.BatchTimeout)

	cfg.Metrics.Headers["api-key"] = "changed"
	assert.Equal(t, "k", cfg.Trace.Headers["api-key"], "headers are cloned")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr error
	}{
		{name: "nil", cfg: nil, wantErr: ErrNilConfig},
		{name: "disabled_is_valid", cfg: &Config{Trace: TraceConfig{ExporterConfig: ExporterConfig{Protocol: "bogus"}}}},
		{name: "missing_service", cfg: &Config{Enabled: true}, wantErr: ErrMissingServiceName},
		{
			name:    "sample_rate_out_of_range",
			cfg:     &Config{Enabled: true, Service: ServiceConfig{Name: "s"}, Trace: TraceConfig{SampleRate: Float64Ptr(1.5)}},
			wantErr: ErrInvalidSampleRate,
		},
		{
			name: "grpc_with_scheme",
			cfg: &Config{Enabled: true, Service: ServiceConfig{Name: "s"}, Trace: TraceConfig{ExporterConfig: ExporterConfig{
				Endpoint: "http://collector:4317", Protocol: ProtocolGRPC,
			}}},
			wantErr: ErrInvalidEndpointFormat,
		},
		{
			name: "http_without_scheme",
			cfg: &Config{Enabled: true, Service: ServiceConfig{Name: "s"}, Trace: TraceConfig{ExporterConfig: ExporterConfig{
				Endpoint: "collector:4318", Protocol: ProtocolHTTP,
			}}},
			wantErr: ErrInvalidEndpointFormat,
		},
		{
			name: "unknown_protocol",
			cfg: &Config{Enabled: true, Service: ServiceConfig{Name: "s"}, Metrics: MetricsConfig{ExporterConfig: ExporterConfig{
				Endpoint: "collector", Protocol: "udp",
			}}},
			wantErr: ErrInvalidProtocol,
		},
		{
			name: "metrics_inherit_trace_exporter",
			cfg: &Config{Enabled: true, Service: ServiceConfig{Name: "s"}, Trace: TraceConfig{ExporterConfig: ExporterConfig{
				Endpoint: "collector:4317", Protocol: ProtocolGRPC,
			}}},
		},
		{
			name: "metrics_default_http_without_scheme",
			cfg: &Config{Enabled: true, Service: ServiceConfig{Name: "s"}, Metrics: MetricsConfig{ExporterConfig: ExporterConfig{
				Endpoint: "collector:4318",
			}}},
			wantErr: ErrInvalidEndpointFormat,
		},
		{name: "stdout", cfg: &Config{Enabled: true, Service: ServiceConfig{Name: "s"}, Trace: TraceConfig{ExporterConfig: ExporterConfig{Endpoint: EndpointStdout}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfigUnmarshalFromYAML(t *testing.T) {
	yamlContent := `
observability:
  enabled: true
  service:
    name: kintone-sync
  trace:
    endpoint: collector:4317
    protocol: grpc
    insecure: true
    sample_rate: 0.25
  metrics:
    interval: 30s
`
	k := koanf.New(".")
	require.NoError(t, k.Load(rawbytes.Provider([]byte(yamlContent)), yaml.Parser()))

	var cfg Config
	require.NoError(t, k.Unmarshal("observability", &cfg))

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "kintone-sync", cfg.Service.Name)
	assert.Equal(t, "collector:4317", cfg.Trace.Endpoint)
	assert.Equal(t, ProtocolGRPC, cfg.Trace.Protocol)
	assert.True(t, cfg.Trace.Insecure)
	require.NotNil(t, cfg.Trace.SampleRate)
	assert.InDelta(t, 0.25, *cfg.Trace.SampleRate, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Metrics.Interval)
}
