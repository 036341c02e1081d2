package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/toml"
)

// Package config loads and holds the configuration for the cover service.

// Config holds all configuration data. The struct is populated once at load
// time; the few runtime-tunable fields are accessed through mutex-guarded
// getters so the hot-reload watcher can swap them safely.
type Config struct {
	Cache       CacheConfig       `toml:"cache"`
	ObjectStore ObjectStoreConfig `toml:"object-store"`
	Providers   ProvidersConfig   `toml:"providers"`
	Debug       DebugConfig       `toml:"debug"`

	mu sync.RWMutex
}

// CacheConfig controls the local disk cache.
type CacheConfig struct {
	Enabled          bool   `toml:"enabled"`
	Dir              string `toml:"dir"`
	MaxAgeDays       int    `toml:"max-age-days"`
	MaxFileSizeBytes int64  `toml:"max-file-size-bytes"`
}

// ObjectStoreConfig controls the S3-compatible durable store.
type ObjectStoreConfig struct {
	Enabled         bool   `toml:"enabled"`
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	CDNURL          string `toml:"cdn-url"`
	PublicCDNURL    string `toml:"public-cdn-url"`
	AccessKeyID     string `toml:"access-key-id"`
	SecretAccessKey string `toml:"secret-access-key"`
}

// ProvidersConfig holds per-provider settings.
type ProvidersConfig struct {
	Google GoogleConfig `toml:"google"`
}

// GoogleConfig holds the Google Books API settings.
type GoogleConfig struct {
	APIKey string `toml:"api-key"`
}

// DebugConfig holds debugging toggles.
type DebugConfig struct {
	CoverProvenance bool `toml:"cover-provenance"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Enabled:          true,
			Dir:              DefaultCacheDir,
			MaxAgeDays:       DefaultMaxAgeDays,
			MaxFileSizeBytes: DefaultMaxFileSizeBytes,
		},
		ObjectStore: ObjectStoreConfig{
			Region: "us-east-1",
		},
	}
}

// Load reads the TOML file at path on top of the defaults and applies
// environment overrides. A missing file is not an error; the defaults are
// returned so the service can start with a bare deployment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decoding config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployments keep secrets out of the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvObjectStoreAccessKeyID); v != "" {
		c.ObjectStore.AccessKeyID = v
	}
	if v := os.Getenv(EnvObjectStoreSecretAccessKey); v != "" {
		c.ObjectStore.SecretAccessKey = v
	}
	if v := os.Getenv(EnvGoogleAPIKey); v != "" {
		c.Providers.Google.APIKey = v
	}
}

func (c *Config) validate() error {
	if c.Cache.Dir == "" {
		c.Cache.Dir = DefaultCacheDir
	}
	if c.Cache.MaxAgeDays <= 0 {
		c.Cache.MaxAgeDays = DefaultMaxAgeDays
	}
	if c.Cache.MaxFileSizeBytes <= 0 {
		c.Cache.MaxFileSizeBytes = DefaultMaxFileSizeBytes
	}
	if c.ObjectStore.Enabled {
		if c.ObjectStore.Bucket == "" {
			return fmt.Errorf("object-store.bucket is required when the object store is enabled")
		}
		if c.ObjectStore.CDNURL == "" && c.ObjectStore.PublicCDNURL == "" {
			return fmt.Errorf("object-store.cdn-url or object-store.public-cdn-url is required when the object store is enabled")
		}
	}
	return nil
}

// GoogleAPIKey returns the current Google Books API key. Runtime tunable.
func (c *Config) GoogleAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Providers.Google.APIKey
}

// ProvenanceDebug reports whether provenance records should be uploaded
// alongside final images. Runtime tunable.
func (c *Config) ProvenanceDebug() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Debug.CoverProvenance
}

// SetProvenanceDebug flips the provenance upload toggle at runtime.
func (c *Config) SetProvenanceDebug(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Debug.CoverProvenance = on
}

// applyHot copies the runtime-tunable fields from a freshly loaded Config.
// Structural settings (paths, endpoints, buckets) require a restart and are
// deliberately left alone.
func (c *Config) applyHot(fresh *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Providers.Google.APIKey = fresh.Providers.Google.APIKey
	c.Debug.CoverProvenance = fresh.Debug.CoverProvenance
}
