package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

type Config struct {
	App   AppConfig   `koanf:"app"`
	API   APIConfig   `koanf:"api"`
	Cache CacheConfig `koanf:"cache"`
	Log   LogConfig   `koanf:"log"`
	Prefs PrefsConfig `koanf:"prefs"`

	// k holds the underlying Koanf instance for flexible access to custom configurations
	k *koanf.Koanf `json:"-" yaml:"-" toml:"-" mapstructure:"-"`
}

type AppConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
	Env     string `koanf:"env"`
	Debug   bool   `koanf:"debug"`
}

// APIConfig configures the REST transport.
type APIConfig struct {
	BaseURL    string        `koanf:"base_url"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
	RetryDelay time.Duration `koanf:"retry_delay"`
	UserAgent  string        `koanf:"user_agent"`
}

// CacheConfig configures the query cache store.
type CacheConfig struct {
	// StaleAfter is the age past which an entry is served stale and revalidated
	// in the background.
	StaleAfter time.Duration `koanf:"stale_after"`
	// GCAfter is how long an entry with zero subscribers survives before eviction.
	GCAfter time.Duration `koanf:"gc_after"`
	// GCInterval is how often the eviction sweep runs.
	GCInterval time.Duration `koanf:"gc_interval"`
	// RevalidateRate caps background revalidations per second across the store.
	RevalidateRate float64 `koanf:"revalidate_rate"`
	// RevalidateBurst is the burst size for the revalidation limiter.
	RevalidateBurst int `koanf:"revalidate_burst"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// PrefsConfig configures the on-disk preference store.
type PrefsConfig struct {
	Path string `koanf:"path"`
}
