package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/gaborage/go-kintone/observability"
)

// Config is the process configuration of a kintone client.
type Config struct {
	// BaseURL is the kintone domain, e.g. https://example.cybozu.com
	BaseURL      string        `koanf:"base_url"`
	GuestSpaceID int64         `koanf:"guest_space_id"`
	UserAgent    string        `koanf:"user_agent"`
	Timeout      time.Duration `koanf:"timeout"`

	Auth          AuthConfig           `koanf:"auth"`
	TLS           TLSConfig            `koanf:"tls"`
	Retry         RetryConfig          `koanf:"retry"`
	RateLimit     RateLimitConfig      `koanf:"ratelimit"`
	Log           LogConfig            `koanf:"log"`
	Observability observability.Config `koanf:"observability"`

	// k holds the underlying Koanf instance for flexible access to custom configurations
	k *koanf.Koanf `json:"-" yaml:"-" toml:"-" mapstructure:"-"`
}

// AuthConfig holds kintone credentials. API tokens and password
// authentication may be combined with proxy basic auth.
type AuthConfig struct {
	APITokens     []string `koanf:"api_tokens"`
	Username      string   `koanf:"username"`
	Password      string   `koanf:"password"`
	BasicUsername string   `koanf:"basic_username"`
	BasicPassword string   `koanf:"basic_password"`
}

// TLSConfig holds PEM file paths for mutual TLS and private CAs.
type TLSConfig struct {
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
	CAFile   string `koanf:"ca_file"`
}

// RetryConfig mirrors middleware.RetryConfig.
type RetryConfig struct {
	Enabled           bool          `koanf:"enabled"`
	MaxAttempts       int           `koanf:"max_attempts"`
	BaseDelay         time.Duration `koanf:"base_delay"`
	MaxDelay          time.Duration `koanf:"max_delay"`
	Multiplier        float64       `koanf:"multiplier"`
	Jitter            float64       `koanf:"jitter"`
	RespectRetryAfter bool          `koanf:"respect_retry_after"`
	// Budget caps retries per BudgetWindow across all calls. Zero disables it.
	Budget       int           `koanf:"budget"`
	BudgetWindow time.Duration `koanf:"budget_window"`
}

// RateLimitConfig bounds outgoing traffic.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"rps"`
	Burst             int     `koanf:"burst"`
	MaxConcurrency    int     `koanf:"max_concurrency"`
	Dedup             bool    `koanf:"dedup"`
}

// LogConfig controls the client logger.
type LogConfig struct {
	Level          string `koanf:"level"`
	Pretty         bool   `koanf:"pretty"`
	Headers        bool   `koanf:"headers"`
	ErrorBodyLimit int    `koanf:"error_body_limit"`
}

// Material reads the configured PEM files. It returns a not configured
// error when no TLS file is set.
func (c *TLSConfig) Material() (certPEM, keyPEM, caPEM []byte, err error) {
	if c.CertFile == "" && c.KeyFile == "" && c.CAFile == "" {
		return nil, nil, nil, NewNotConfiguredError("tls", EnvPrefix+"TLS__CERT_FILE", "tls.cert_file")
	}

	read := func(path string) ([]byte, error) {
		if path == "" {
			return nil, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return data, nil
	}

	if certPEM, err = read(c.CertFile); err != nil {
		return nil, nil, nil, err
	}
	if keyPEM, err = read(c.KeyFile); err != nil {
		return nil, nil, nil, err
	}
	if caPEM, err = read(c.CAFile); err != nil {
		return nil, nil, nil, err
	}
	return certPEM, keyPEM, caPEM, nil
}
