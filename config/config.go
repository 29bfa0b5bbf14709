package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "KINTONE_"

	// EnvConfigFile overrides the YAML file path.
	EnvConfigFile = "KINTONE_CONFIG_FILE"

	// DefaultConfigFile is read from the working directory when present.
	DefaultConfigFile = "config.yaml"
)

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. YAML configuration file, when present
// 3. Default values (lowest priority)
func Load() (*Config, error) {
	path := os.Getenv(EnvConfigFile)
	if path == "" {
		path = DefaultConfigFile
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit YAML path. A missing file is skipped.
func LoadFile(path string) (*Config, error) {
	return LoadFileWithOverrides(path, nil)
}

// LoadFileWithOverrides is LoadFile with a final layer of dotted keys, such
// as "base_url", that take priority over the environment. Command line flags
// use it.
func LoadFileWithOverrides(path string, overrides map[string]any) (*Config, error) {
	return load(overrides, func(k *koanf.Koanf) error {
		if path == "" {
			return nil
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		return nil
	})
}

// LoadFromBytes loads configuration from in-memory YAML, then the
// environment. Useful for embedded configs and tests.
func LoadFromBytes(data []byte) (*Config, error) {
	return load(nil, func(k *koanf.Koanf) error {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		return nil
	})
}

func load(overrides map[string]any, source func(*koanf.Koanf) error) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := source(k); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnv,
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// transformEnv maps KINTONE_AUTH__API_TOKENS to auth.api_tokens. A double
// underscore separates sections. Comma separated token lists become slices.
func transformEnv(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config_file" {
		return "", nil
	}
	key = strings.ReplaceAll(key, "__", ".")

	if key == "auth.api_tokens" {
		var tokens []string
		for _, t := range strings.Split(value, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tokens = append(tokens, t)
			}
		}
		return key, tokens
	}
	return key, value
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"timeout":    "30s",
		"user_agent": "go-kintone",

		"retry.enabled":             true,
		"retry.max_attempts":        3,
		"retry.base_delay":          "200ms",
		"retry.max_delay":           "5s",
		"retry.multiplier":          2.0,
		"retry.jitter":              0.2,
		"retry.respect_retry_after": true,
		"retry.budget":              0,
		"retry.budget_window":       "1m",

		"ratelimit.rps":             0,
		"ratelimit.burst":           1,
		"ratelimit.max_concurrency": 100,
		"ratelimit.dedup":           false,

		"log.level":            "info",
		"log.pretty":           false,
		"log.headers":          false,
		"log.error_body_limit": 512,

		"observability.enabled": false,
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
