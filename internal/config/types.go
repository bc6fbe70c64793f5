package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	Processing ProcessingConfig `yaml:"processing" mapstructure:"processing"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`

	// v is the viper instance the config was loaded with, used by Watch
	v *viper.Viper
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// ProcessingConfig controls how events are scrubbed
type ProcessingConfig struct {
	MaxDepth      int    `yaml:"max_depth" mapstructure:"max_depth"`
	LegacyMode    string `yaml:"legacy_mode" mapstructure:"legacy_mode"` // fine-grained or simple
	Workers       int    `yaml:"workers" mapstructure:"workers"`
	Normalize     bool   `yaml:"normalize" mapstructure:"normalize"`
	MaxEventBytes int    `yaml:"max_event_bytes" mapstructure:"max_event_bytes"`
	CacheSize     int    `yaml:"cache_size" mapstructure:"cache_size"`
}

// RedisConfig contains the project config store connection
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	URL       string        `yaml:"url" mapstructure:"url"`
	KeyPrefix string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	PoolSize  int           `yaml:"pool_size" mapstructure:"pool_size"`
}

// MetricsConfig contains prometheus settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Processing: ProcessingConfig{
			MaxDepth:      128,
			LegacyMode:    "fine-grained",
			Workers:       4,
			Normalize:     true,
			MaxEventBytes: 1 << 20,
			CacheSize:     1024,
		},
		Redis: RedisConfig{
			Enabled:   false,
			URL:       "redis://localhost:6379/0",
			KeyPrefix: "relayconfig",
			Timeout:   2 * time.Second,
			PoolSize:  10,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "scrubber",
		},
	}
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.File.Path = "logs/scrubber.log"
	return cfg
}

// setDefaults registers every key with viper so environment overrides
// apply to keys missing from the config file
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file.enabled", d.Logging.File.Enabled)
	v.SetDefault("logging.file.path", d.Logging.File.Path)

	v.SetDefault("processing.max_depth", d.Processing.MaxDepth)
	v.SetDefault("processing.legacy_mode", d.Processing.LegacyMode)
	v.SetDefault("processing.workers", d.Processing.Workers)
	v.SetDefault("processing.normalize", d.Processing.Normalize)
	v.SetDefault("processing.max_event_bytes", d.Processing.MaxEventBytes)
	v.SetDefault("processing.cache_size", d.Processing.CacheSize)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.url", d.Redis.URL)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)
	v.SetDefault("redis.timeout", d.Redis.Timeout)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
}
