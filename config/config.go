// Package config loads and validates SDK configuration from defaults,
// an optional YAML file, and environment variables, in increasing priority.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "HARBORLOOP_"

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. YAML configuration file (path may be empty)
// 3. Default values (lowest priority)
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := loadEnv(k); err != nil {
		return nil, err
	}

	return finish(k)
}

// LoadBytes loads configuration from raw YAML over the defaults.
// Environment variables still take priority. Tests and embedders that
// carry config inline use this instead of Load.
func LoadBytes(raw []byte) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if len(raw) > 0 {
		if err := k.Load(rawbytes.Provider(raw), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config bytes: %w", err)
		}
	}

	if err := loadEnv(k); err != nil {
		return nil, err
	}

	return finish(k)
}

func loadEnv(k *koanf.Koanf) error {
	// HARBORLOOP_API_BASE_URL -> api.base_url etc. Only the first two
	// underscores split sections; the rest stay part of the key.
	err := k.Load(envprovider.Provider(".", envprovider.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			key = strings.Replace(key, "_", ".", 1)
			return key, value
		},
	}), nil)
	if err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	return nil
}

func finish(k *koanf.Koanf) (*Config, error) {
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

// loadDefaults seeds the Koanf instance with default values.
func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":    "harborloop-sync",
		"app.version": "dev",
		"app.env":     EnvDevelopment,
		"app.debug":   false,

		"api.base_url":    "",
		"api.timeout":     30 * time.Second,
		"api.max_retries": 2,
		"api.retry_delay": 500 * time.Millisecond,
		"api.user_agent":  "harborloop-sync-go",

		"cache.stale_after":      30 * time.Second,
		"cache.gc_after":         5 * time.Minute,
		"cache.gc_interval":      time.Minute,
		"cache.revalidate_rate":  10.0,
		"cache.revalidate_burst": 20,

		"log.level":  "info",
		"log.pretty": false,

		"prefs.path": "",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}

// Raw exposes the underlying Koanf instance for keys outside the typed struct.
func (c *Config) Raw() *koanf.Koanf {
	return c.k
}
