package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/gaborage/go-kintone/logger"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks cfg and returns the first *ConfigError found.
func Validate(cfg *Config) error {
	if err := validateConnection(cfg); err != nil {
		return err
	}

	if err := validateAuth(&cfg.Auth); err != nil {
		return err
	}

	if err := validateTLS(&cfg.TLS); err != nil {
		return err
	}

	if err := validateRetry(&cfg.Retry); err != nil {
		return err
	}

	if err := validateRateLimit(&cfg.RateLimit); err != nil {
		return err
	}

	if err := validateLog(&cfg.Log); err != nil {
		return err
	}

	if err := cfg.Observability.Validate(); err != nil {
		return NewValidationError("observability", err.Error())
	}

	return nil
}

func validateConnection(cfg *Config) error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return NewMissingFieldError("base_url", EnvPrefix+"BASE_URL", "base_url")
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return NewValidationError("base_url", fmt.Sprintf("cannot parse %q", cfg.BaseURL))
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return NewInvalidFieldError("base_url", fmt.Sprintf("unsupported scheme %q", u.Scheme), []string{"https", "http"})
	}

	if cfg.GuestSpaceID < 0 {
		return NewValidationError("guest_space_id", "must not be negative")
	}

	if cfg.Timeout < 0 {
		return NewValidationError("timeout", "must not be negative")
	}

	return nil
}

func validateAuth(cfg *AuthConfig) error {
	hasToken := slices.ContainsFunc(cfg.APITokens, func(t string) bool { return strings.TrimSpace(t) != "" })
	hasPassword := cfg.Username != "" || cfg.Password != ""

	if !hasToken && !hasPassword {
		hint := fmt.Sprintf("set %sAUTH__API_TOKENS or %sAUTH__USERNAME and %sAUTH__PASSWORD",
			EnvPrefix, EnvPrefix, EnvPrefix)
		return &ConfigError{
			Category: CategoryMissing,
			Field:    "auth",
			Message:  "no credentials",
			Hint:     hint,
		}
	}

	if hasPassword && (cfg.Username == "" || cfg.Password == "") {
		return NewValidationError("auth", "username and password must be set together")
	}

	if (cfg.BasicUsername == "") != (cfg.BasicPassword == "") {
		return NewValidationError("auth", "basic_username and basic_password must be set together")
	}

	return nil
}

func validateTLS(cfg *TLSConfig) error {
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return NewValidationError("tls", "cert_file and key_file must be set together")
	}
	return nil
}

func validateRetry(cfg *RetryConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.MaxAttempts < 1 {
		return NewValidationError("retry.max_attempts", fmt.Sprintf("must be at least 1, got %d", cfg.MaxAttempts))
	}

	if cfg.BaseDelay < 0 || cfg.MaxDelay < 0 {
		return NewValidationError("retry", "delays must not be negative")
	}

	if cfg.MaxDelay > 0 && cfg.BaseDelay > cfg.MaxDelay {
		return NewValidationError("retry.base_delay", "must not exceed retry.max_delay")
	}

	if cfg.Multiplier != 0 && cfg.Multiplier < 1 {
		return NewValidationError("retry.multiplier", "must be at least 1")
	}

	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		return NewValidationError("retry.jitter", "must be between 0 and 1")
	}

	if cfg.Budget < 0 {
		return NewValidationError("retry.budget", "must not be negative")
	}

	if cfg.Budget > 0 && cfg.BudgetWindow <= 0 {
		return NewValidationError("retry.budget_window", "must be positive when retry.budget is set")
	}

	return nil
}

func validateRateLimit(cfg *RateLimitConfig) error {
	if cfg.RequestsPerSecond < 0 {
		return NewValidationError("ratelimit.rps", "must not be negative")
	}

	if cfg.RequestsPerSecond > 0 && cfg.Burst < 1 {
		return NewValidationError("ratelimit.burst", "must be at least 1 when ratelimit.rps is set")
	}

	if cfg.MaxConcurrency < 0 {
		return NewValidationError("ratelimit.max_concurrency", "must not be negative")
	}

	return nil
}

func validateLog(cfg *LogConfig) error {
	if cfg.Level != "" && !slices.Contains(validLogLevels, strings.ToLower(cfg.Level)) {
		return NewInvalidFieldError("log.level", fmt.Sprintf("unknown level %q", cfg.Level), validLogLevels)
	}

	if cfg.ErrorBodyLimit < 0 {
		return NewValidationError("log.error_body_limit", "must not be negative")
	}

	return nil
}

// Logger builds the client logger described by cfg.
func (cfg *LogConfig) Logger() logger.Logger {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	return logger.New(strings.ToLower(level), cfg.Pretty)
}
