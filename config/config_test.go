package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborloop/sync-go/config"
)

const minimalYAML = `
api:
  base_url: https://api.harborloop.dev
`

func TestLoadBytesDefaults(t *testing.T) {
	cfg, err := config.LoadBytes([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "harborloop-sync", cfg.App.Name)
	assert.Equal(t, config.EnvDevelopment, cfg.App.Env)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 2, cfg.API.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Cache.StaleAfter)
	assert.Equal(t, 5*time.Minute, cfg.Cache.GCAfter)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadBytesOverrides(t *testing.T) {
	yaml := `
api:
  base_url: https://api.harborloop.dev
  timeout: 5s
  max_retries: 0
cache:
  stale_after: 10s
  gc_after: 1m
log:
  level: debug
  pretty: true
`
	cfg, err := config.LoadBytes([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, 0, cfg.API.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Cache.StaleAfter)
	assert.Equal(t, time.Minute, cfg.Cache.GCAfter)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoadBytesEnvPriority(t *testing.T) {
	t.Setenv("HARBORLOOP_API_BASE_URL", "https://staging.harborloop.dev")
	t.Setenv("HARBORLOOP_LOG_LEVEL", "warn")

	cfg, err := config.LoadBytes([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "https://staging.harborloop.dev", cfg.API.BaseURL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load("does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantMsg string
	}{
		{
			name:    "MissingBaseURL",
			mutate:  func(c *config.Config) { c.API.BaseURL = "" },
			wantMsg: "base_url is required",
		},
		{
			name:    "RelativeBaseURL",
			mutate:  func(c *config.Config) { c.API.BaseURL = "/api" },
			wantMsg: "absolute URL",
		},
		{
			name:    "BadEnv",
			mutate:  func(c *config.Config) { c.App.Env = "qa" },
			wantMsg: "app env",
		},
		{
			name:    "ZeroTimeout",
			mutate:  func(c *config.Config) { c.API.Timeout = 0 },
			wantMsg: "timeout must be positive",
		},
		{
			name:    "NegativeRetries",
			mutate:  func(c *config.Config) { c.API.MaxRetries = -1 },
			wantMsg: "max_retries cannot be negative",
		},
		{
			name:    "ZeroStaleAfter",
			mutate:  func(c *config.Config) { c.Cache.StaleAfter = 0 },
			wantMsg: "stale_after must be positive",
		},
		{
			name:    "ZeroGCAfter",
			mutate:  func(c *config.Config) { c.Cache.GCAfter = 0 },
			wantMsg: "gc_after must be positive",
		},
		{
			name:    "BadLogLevel",
			mutate:  func(c *config.Config) { c.Log.Level = "verbose" },
			wantMsg: "log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.LoadBytes([]byte(minimalYAML))
			require.NoError(t, err)

			tt.mutate(cfg)

			err = config.Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
