package config

import (
	"fmt"
	"net/url"
	"slices"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

var validLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}

func Validate(cfg *Config) error {
	if err := validateApp(&cfg.App); err != nil {
		return fmt.Errorf("app config: %w", err)
	}

	if err := validateAPI(&cfg.API); err != nil {
		return fmt.Errorf("api config: %w", err)
	}

	if err := validateCache(&cfg.Cache); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := validateLog(&cfg.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	return nil
}

func validateApp(cfg *AppConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("app name is required")
	}

	validEnvs := []string{EnvDevelopment, EnvStaging, EnvProduction}
	if !slices.Contains(validEnvs, cfg.Env) {
		return fmt.Errorf("app env must be one of %v, got %q", validEnvs, cfg.Env)
	}

	return nil
}

func validateAPI(cfg *APIConfig) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("api base_url is required")
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api base_url must be an absolute URL, got %q", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		return fmt.Errorf("api timeout must be positive")
	}

	if cfg.MaxRetries < 0 {
		return fmt.Errorf("api max_retries cannot be negative")
	}

	if cfg.RetryDelay < 0 {
		return fmt.Errorf("api retry_delay cannot be negative")
	}

	return nil
}

func validateCache(cfg *CacheConfig) error {
	if cfg.StaleAfter <= 0 {
		return fmt.Errorf("cache stale_after must be positive")
	}

	if cfg.GCAfter <= 0 {
		return fmt.Errorf("cache gc_after must be positive")
	}

	if cfg.GCInterval <= 0 {
		return fmt.Errorf("cache gc_interval must be positive")
	}

	if cfg.RevalidateRate <= 0 {
		return fmt.Errorf("cache revalidate_rate must be positive")
	}

	if cfg.RevalidateBurst <= 0 {
		return fmt.Errorf("cache revalidate_burst must be positive")
	}

	return nil
}

func validateLog(cfg *LogConfig) error {
	if !slices.Contains(validLogLevels, cfg.Level) {
		return fmt.Errorf("log level must be one of %v, got %q", validLogLevels, cfg.Level)
	}

	return nil
}
