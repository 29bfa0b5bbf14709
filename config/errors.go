package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured marks an optional section, such as tls, that was left
// empty on purpose.
var ErrNotConfigured = errors.New("not configured")

// Error categories reported by ConfigError.
const (
	CategoryMissing       = "missing"
	CategoryInvalid       = "invalid"
	CategoryNotConfigured = "not_configured"
)

// ConfigError describes a configuration problem together with how to fix it.
//
//nolint:revive // config.ConfigError reads better than config.Error at call sites
type ConfigError struct {
	Category string
	// Field is the dotted koanf path, e.g. "auth.api_tokens".
	Field   string
	Message string
	// Hint tells the user how to fix the problem.
	Hint string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config_")
	b.WriteString(e.Category)
	b.WriteByte(':')
	for _, part := range []string{e.Field, e.Message, e.Hint} {
		if part != "" {
			b.WriteByte(' ')
			b.WriteString(part)
		}
	}
	return b.String()
}

// Is lets errors.Is(err, ErrNotConfigured) match not configured sections.
func (e *ConfigError) Is(target error) bool {
	return target == ErrNotConfigured && e.Category == CategoryNotConfigured
}

func sourceHint(envVar, yamlPath string) string {
	return fmt.Sprintf("set %s or add %s to the config file", envVar, yamlPath)
}

// NewMissingFieldError reports a required setting that has no value.
func NewMissingFieldError(field, envVar, yamlPath string) *ConfigError {
	return &ConfigError{
		Category: CategoryMissing,
		Field:    field,
		Message:  "required",
		Hint:     sourceHint(envVar, yamlPath),
	}
}

// NewInvalidFieldError reports a value outside validOptions.
func NewInvalidFieldError(field, message string, validOptions []string) *ConfigError {
	err := NewValidationError(field, message)
	if len(validOptions) > 0 {
		err.Hint = "must be one of: " + strings.Join(validOptions, ", ")
	}
	return err
}

// NewNotConfiguredError reports an optional feature that is switched off.
func NewNotConfiguredError(feature, envVar, yamlPath string) *ConfigError {
	return &ConfigError{
		Category: CategoryNotConfigured,
		Field:    feature,
		Message:  "(optional)",
		Hint:     "to enable: " + sourceHint(envVar, yamlPath),
	}
}

// IsNotConfigured reports whether err means an optional feature is off.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// NewValidationError reports an invalid value.
func NewValidationError(field, message string) *ConfigError {
	return &ConfigError{
		Category: CategoryInvalid,
		Field:    field,
		Message:  message,
	}
}
