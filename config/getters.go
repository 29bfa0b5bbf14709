package config

import (
	"errors"
)

var errNotLoaded = errors.New("config: not loaded")

// Get returns the raw value at a dotted key, including sections the typed
// Config does not describe.
func (c *Config) Get(key string) (any, bool) {
	if !c.Exists(key) {
		return nil, false
	}
	return c.k.Get(key), true
}

// GetString returns the value at key as a string, or def when it is unset.
func (c *Config) GetString(key string, def ...string) string {
	if !c.Exists(key) {
		if len(def) > 0 {
			return def[0]
		}
		return ""
	}
	return c.k.String(key)
}

// Unmarshal decodes the section at key into out using koanf tags.
func (c *Config) Unmarshal(key string, out any) error {
	if c == nil || c.k == nil {
		return errNotLoaded
	}
	return c.k.Unmarshal(key, out)
}

// Exists reports whether key was set by any source.
func (c *Config) Exists(key string) bool {
	return c != nil && c.k != nil && c.k.Exists(key)
}

// All returns the merged configuration keyed by dotted paths.
func (c *Config) All() map[string]any {
	if c == nil || c.k == nil {
		return nil
	}
	return c.k.All()
}
