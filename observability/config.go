package observability

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

const (
	// EndpointStdout is a special endpoint value that outputs to stdout (for local development).
	EndpointStdout = "stdout"

	// ProtocolHTTP specifies OTLP over HTTP/protobuf.
	ProtocolHTTP = "http"

	// ProtocolGRPC specifies OTLP over gRPC.
	ProtocolGRPC = "grpc"

	// EnvironmentDevelopment is the default environment name.
	EnvironmentDevelopment = "development"
)

// Config defines the configuration for client telemetry.
type Config struct {
	// Enabled controls whether telemetry is exported.
	// When false, NewProvider returns no-op providers.
	Enabled bool `koanf:"enabled"`

	Service     ServiceConfig `koanf:"service"`
	Environment string        `koanf:"environment"`
	Trace       TraceConfig   `koanf:"trace"`
	Metrics     MetricsConfig `koanf:"metrics"`
}

// ServiceConfig identifies the process using the client.
type ServiceConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
}

// ExporterConfig selects where telemetry is sent.
type ExporterConfig struct {
	// Endpoint is "stdout", a host:port for gRPC, or a URL for HTTP.
	Endpoint string            `koanf:"endpoint"`
	Protocol string            `koanf:"protocol"`
	Insecure bool              `koanf:"insecure"`
	Headers  map[string]string `koanf:"headers"`
	Timeout  time.Duration     `koanf:"timeout"`
}

// TraceConfig contains tracing-specific configuration.
type TraceConfig struct {
	Disabled       bool `koanf:"disabled"`
	ExporterConfig `koanf:",squash"`
	// SampleRate is the ratio of traces recorded, in [0, 1].
	SampleRate   *float64      `koanf:"sample_rate"`
	BatchTimeout time.Duration `koanf:"batch_timeout"`
}

// MetricsConfig contains metrics-specific configuration.
type MetricsConfig struct {
	Disabled       bool `koanf:"disabled"`
	ExporterConfig `koanf:",squash"`
	Interval       time.Duration `koanf:"interval"`
}

// Float64Ptr returns a pointer to the provided float64 value.
func Float64Ptr(v float64) *float64 {
	return &v
}

// ApplyDefaults sets default values for any config fields that are not specified.
func (c *Config) ApplyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "kintone-client"
	}
	if c.Service.Version == "" {
		c.Service.Version = "unknown"
	}
	if c.Environment == "" {
		c.Environment = EnvironmentDevelopment
	}

	applyExporterDefaults(&c.Trace.ExporterConfig)
	if c.Trace.SampleRate == nil {
		c.Trace.SampleRate = Float64Ptr(1.0)
	}
	if c.Trace.BatchTimeout == 0 {
		if c.Trace.Endpoint == EndpointStdout {
			c.Trace.BatchTimeout = 500 * time.Millisecond
		} else {
			c.Trace.BatchTimeout = 5 * time.Second
		}
	}

	// Metrics inherit the trace exporter unless configured separately.
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = c.Trace.Endpoint
		c.Metrics.Insecure = c.Trace.Insecure
		if c.Metrics.Headers == nil {
			c.Metrics.Headers = cloneHeaderMap(c.Trace.Headers)
		}
	}
	if c.Metrics.Protocol == "" {
		c.Metrics.Protocol = c.Trace.Protocol
	}
	applyExporterDefaults(&c.Metrics.ExporterConfig)
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = 10 * time.Second
	}
}

func applyExporterDefaults(e *ExporterConfig) {
	if e.Endpoint == "" {
		e.Endpoint = EndpointStdout
	}
	if e.Protocol == "" {
		e.Protocol = ProtocolHTTP
	}
	if e.Timeout == 0 {
		e.Timeout = 10 * time.Second
	}
}

// Validate checks the configuration. Disabled configurations are always valid.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if !c.Enabled {
		return nil
	}
	if c.Service.Name == "" {
		return ErrMissingServiceName
	}
	if rate := c.Trace.SampleRate; rate != nil && (*rate < 0 || *rate > 1) {
		return ErrInvalidSampleRate
	}

	// Exporters are checked as NewProvider will see them, with metrics
	// inheriting the trace exporter.
	eff := *c
	eff.ApplyDefaults()
	if err := validateExporter("trace", eff.Trace.ExporterConfig); err != nil {
		return err
	}
	return validateExporter("metrics", eff.Metrics.ExporterConfig)
}

// validateExporter checks that gRPC endpoints are host:port and HTTP
// endpoints are URLs.
func validateExporter(signal string, e ExporterConfig) error {
	if e.Endpoint == EndpointStdout {
		return nil
	}
	switch e.Protocol {
	case ProtocolGRPC:
		if strings.Contains(e.Endpoint, "://") {
			return fmt.Errorf("%s endpoint %q: %w (gRPC expects host:port)", signal, e.Endpoint, ErrInvalidEndpointFormat)
		}
	case ProtocolHTTP:
		if !strings.HasPrefix(e.Endpoint, "http://") && !strings.HasPrefix(e.Endpoint, "https://") {
			return fmt.Errorf("%s endpoint %q: %w (HTTP expects a URL)", signal, e.Endpoint, ErrInvalidEndpointFormat)
		}
	default:
		return fmt.Errorf("%s protocol '%s': %w", signal, e.Protocol, ErrInvalidProtocol)
	}
	return nil
}

func cloneHeaderMap(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	clone := make(map[string]string, len(headers))
	maps.Copy(clone, headers)
	return clone
}
