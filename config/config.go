package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/s0up4200/airdate/tracker"
)

// envBindings maps config keys to the environment variables that override them
var envBindings = map[string]string{
	"tmdb.url":         "API_URL",
	"tmdb.version":     "API_VERSION",
	"tmdb.api_key":     "API_KEY",
	"tmdb.concurrency": "CONCURRENCY",
}

// Load loads the configuration from file and environment. The config file is
// optional unless configPath is given explicitly.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// AIRDATE_TMDB_API_KEY style overrides for every key
	v.SetEnvPrefix("airdate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// Check current directory first
		v.AddConfigPath(".")

		// Check home directory
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".airdate"))
		}

		// Check /etc
		v.AddConfigPath("/etc/airdate/")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadShows reads the tracked shows from a JSON state file of the form
// {"shows": [{"name": "...", "id": 0, "season": 0}]}.
func LoadShows(path string) ([]tracker.Query, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}

	var shows []tracker.Query
	if err := v.UnmarshalKey("shows", &shows); err != nil {
		return nil, fmt.Errorf("failed to parse shows in %s: %w", path, err)
	}

	for i, show := range shows {
		if show.Season < 0 {
			return nil, fmt.Errorf("show %d (%s): season must not be negative", i, show)
		}
	}

	return shows, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// TMDB defaults
	v.SetDefault("tmdb.url", "https://api.themoviedb.org")
	v.SetDefault("tmdb.version", "3")
	v.SetDefault("tmdb.concurrency", 8)
	v.SetDefault("tmdb.timeout", "30s")
	v.SetDefault("tmdb.requests_per_second", 0)
	v.SetDefault("tmdb.burst", 1)

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.file", "")

	// State defaults
	v.SetDefault("state.file", "state.json")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.TMDB.URL == "" {
		return fmt.Errorf("tmdb.url is required")
	}

	if cfg.TMDB.Version == "" {
		return fmt.Errorf("tmdb.version is required")
	}

	if cfg.TMDB.APIKey == "" || cfg.TMDB.APIKey == "your-api-key-here" {
		return fmt.Errorf("tmdb.api_key must be set to a valid API key")
	}

	if cfg.TMDB.Concurrency < 1 {
		return fmt.Errorf("tmdb.concurrency must be at least 1, got %d", cfg.TMDB.Concurrency)
	}

	if cfg.TMDB.RequestsPerSecond < 0 {
		return fmt.Errorf("tmdb.requests_per_second must not be negative")
	}

	if cfg.Cache.Enabled && cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when the cache is enabled")
	}

	if cfg.State.File == "" {
		return fmt.Errorf("state.file is required")
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}

// FilterExpression picks the filter to apply. An explicit expression wins over
// a preset, which wins over the configured default. Preset names are case
// insensitive. An empty result means no filtering.
func (c *Config) FilterExpression(expression, preset string) (string, error) {
	if expression != "" {
		return expression, nil
	}

	if preset != "" {
		if presetFilter, ok := c.Filter.Presets[strings.ToLower(preset)]; ok {
			return presetFilter, nil
		}
		return "", fmt.Errorf("preset '%s' not found in config", preset)
	}

	return c.Filter.DefaultExpression, nil
}
