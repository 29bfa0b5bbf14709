package logger

import (
	nethttp "net/http"
	"net/url"
	"strings"
)

// DefaultMaskValue replaces sensitive values in log output
const DefaultMaskValue = "***"

// FilterConfig defines which fields are masked in log output
type FilterConfig struct {
	// SensitiveFields are matched case-insensitively as substrings of field names
	SensitiveFields []string
	// MaskValue replaces sensitive data (default: "***")
	MaskValue string
}

// DefaultFilterConfig returns the field names masked by default, including
// the kintone credential headers.
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		SensitiveFields: []string{
			"password", "passwd", "pwd",
			"secret", "api_key", "apikey",
			"token", "x-cybozu-api-token",
			"x-cybozu-authorization", "authorization",
			"cookie", "credential",
		},
		MaskValue: DefaultMaskValue,
	}
}

// SensitiveDataFilter masks sensitive values before they reach the log sink.
type SensitiveDataFilter struct {
	config *FilterConfig
}

// NewSensitiveDataFilter creates a filter. A nil config uses DefaultFilterConfig.
func NewSensitiveDataFilter(config *FilterConfig) *SensitiveDataFilter {
	if config == nil {
		config = DefaultFilterConfig()
	}
	if config.MaskValue == "" {
		config.MaskValue = DefaultMaskValue
	}
	return &SensitiveDataFilter{config: config}
}

// MaskValue returns the replacement used for sensitive data.
func (f *SensitiveDataFilter) MaskValue() string {
	return f.config.MaskValue
}

// IsSensitive reports whether a field name is considered sensitive.
func (f *SensitiveDataFilter) IsSensitive(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, sensitive := range f.config.SensitiveFields {
		if strings.Contains(lower, strings.ToLower(sensitive)) {
			return true
		}
	}
	return false
}

// FilterString masks value when key is sensitive. URLs keep their structure
// with only the password replaced.
func (f *SensitiveDataFilter) FilterString(key, value string) string {
	if value == "" {
		return value
	}
	if isURL(value) {
		return f.maskURL(value)
	}
	if f.IsSensitive(key) {
		return f.config.MaskValue
	}
	return value
}

// FilterValue masks sensitive data inside strings, maps, headers and slices.
// Other types are returned unchanged.
func (f *SensitiveDataFilter) FilterValue(key string, value any) any {
	return f.filterValue(key, value, DefaultMaxDepth)
}

// DefaultMaxDepth bounds recursion into nested maps and slices
const DefaultMaxDepth = 8

func (f *SensitiveDataFilter) filterValue(key string, value any, depth int) any {
	if depth <= 0 || value == nil {
		return value
	}
	switch v := value.(type) {
	case string:
		return f.FilterString(key, v)
	case nethttp.Header:
		out := make(nethttp.Header, len(v))
		for name, values := range v {
			if f.IsSensitive(name) {
				out[name] = []string{f.config.MaskValue}
				continue
			}
			out[name] = values
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, s := range v {
			out[k] = f.FilterString(k, s)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = f.filterValue(k, item, depth-1)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = f.filterValue(key, item, depth-1)
		}
		return out
	default:
		if f.IsSensitive(key) {
			return f.config.MaskValue
		}
		return value
	}
}

// FilterFields filters a map of fields for sensitive data
func (f *SensitiveDataFilter) FilterFields(fields map[string]any) map[string]any {
	filtered := make(map[string]any, len(fields))
	for key, value := range fields {
		filtered[key] = f.FilterValue(key, value)
	}
	return filtered
}

func isURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}

// maskURL replaces the password in URL user info.
func (f *SensitiveDataFilter) maskURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return f.config.MaskValue
	}
	if parsed.User == nil {
		return raw
	}
	if _, hasPassword := parsed.User.Password(); !hasPassword {
		return raw
	}

	// url.UserPassword would percent-escape the mask.
	user := url.User(parsed.User.Username()).String()
	parsed.User = nil
	scheme := parsed.Scheme + "://"
	return scheme + user + ":" + f.config.MaskValue + "@" + strings.TrimPrefix(parsed.String(), scheme)
}
