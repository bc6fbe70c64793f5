package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/raaihank/relay-scrubber/internal/datascrubbing"
)

// ErrNoConfigFile is returned by Watch when the config came from defaults
// and the environment only
var ErrNoConfigFile = errors.New("no config file to watch")

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, GetDefaults())

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/relay-scrubber/")
	v.AddConfigPath("$HOME/.relay-scrubber/")

	// Environment variable overrides
	v.SetEnvPrefix("SCRUBBER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Use specific config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	// Read configuration
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config, err := decode(v)
	if err != nil {
		return nil, err
	}
	config.v = v
	return config, nil
}

func decode(v *viper.Viper) (*Config, error) {
	config := GetDefaults()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if _, err := datascrubbing.ParseMode(config.Processing.LegacyMode); err != nil {
		return err
	}

	if config.Processing.Workers <= 0 {
		return fmt.Errorf("invalid worker count: %d", config.Processing.Workers)
	}

	if config.Processing.MaxDepth <= 0 {
		return fmt.Errorf("invalid max depth: %d", config.Processing.MaxDepth)
	}

	if config.Processing.MaxEventBytes <= 0 {
		return fmt.Errorf("invalid max event size: %d", config.Processing.MaxEventBytes)
	}

	if config.Redis.Enabled && config.Redis.URL == "" {
		return fmt.Errorf("redis is enabled but no url is configured")
	}

	return nil
}

// Watch starts watching the configuration file for changes. The callback
// receives every new configuration that decodes and validates; onError
// receives the others and may be nil.
func Watch(config *Config, callback func(*Config), onError func(error)) error {
	if config == nil || config.v == nil || config.v.ConfigFileUsed() == "" {
		return ErrNoConfigFile
	}

	v := config.v
	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload of %s failed: %w", e.Name, err))
			}
			return
		}
		newConfig.v = v
		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}
