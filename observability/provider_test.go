package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gaborage/go-kintone/logger"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(&Config{}, nil)
	require.NoError(t, err)

	assert.IsType(t, noop.NewTracerProvider(), p.TracerProvider())
	assert.IsType(t, metricnoop.NewMeterProvider(), p.MeterProvider())
	assert.NoError(t, p.ForceFlush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderNilConfig(t *testing.T) {
	_, err := NewProvider(nil, logger.Nop())
	assert.ErrorIs(t, err, ErrNilConfig)
}

func TestNewProviderStdout(t *testing.T) {
	cfg := &Config{Enabled: true, Service: ServiceConfig{Name: "kintone-cli"}}
	p, err := NewProvider(cfg, logger.Nop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, Shutdown(p, time.Second)) }()

	assert.IsType(t, &sdktrace.TracerProvider{}, p.TracerProvider())
	assert.IsType(t, &sdkmetric.MeterProvider{}, p.MeterProvider())
	assert.Empty(t, cfg.Trace.Endpoint, "caller config is not modified")
}

func TestNewProviderSignalsCanBeDisabled(t *testing.T) {
	cfg := &Config{
		Enabled: true,
		Trace:   TraceConfig{Disabled: true},
		Metrics: MetricsConfig{Disabled: true},
	}
	p, err := NewProvider(cfg, logger.Nop())
	require.NoError(t, err)
	defer MustShutdown(p, time.Second)

	assert.IsType(t, noop.NewTracerProvider(), p.TracerProvider())
	assert.IsType(t, metricnoop.NewMeterProvider(), p.MeterProvider())
}

func TestNewProviderOTLP(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		protocol string
	}{
		{name: "http", endpoint: "http://localhost:4318", protocol: ProtocolHTTP},
		{name: "grpc", endpoint: "localhost:4317", protocol: ProtocolGRPC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Enabled: true,
				Trace: TraceConfig{ExporterConfig: ExporterConfig{
					Endpoint: tt.endpoint,
					Protocol: tt.protocol,
					Insecure: true,
					Headers:  map[string]string{"api-key": "secret"},
					Timeout:  100 * time.Millisecond,
				}},
			}
			p, err := NewProvider(cfg, logger.Nop())
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			_ = p.Shutdown(ctx)
		})
	}
}

func TestMustNewProviderPanicsOnInvalidConfig(t *testing.T) {
	cfg := &Config{Enabled: true, Trace: TraceConfig{ExporterConfig: ExporterConfig{Endpoint: "collector:4317", Protocol: "udp"}}}
	assert.Panics(t, func() { MustNewProvider(cfg, nil) })
}

func TestShutdownNilProvider(t *testing.T) {
	assert.NoError(t, Shutdown(nil, 0))
}
