// Package config loads CLI configuration with a layered approach:
// built-in defaults, then an optional YAML file, then DOCSIFT_
// environment variable overrides. The library itself stays
// dependency-injected; only cmd/docsift reads configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for the docsift CLI.
type Config struct {
	// DatabaseURL selects the backend: sqlite:///path, postgres://...,
	// or "" for in-memory SQLite.
	DatabaseURL string `yaml:"database_url"`
	// Prefix namespaces the collection within the database.
	Prefix string `yaml:"prefix"`
	// DefaultLimit caps query results when no explicit limit is given.
	DefaultLimit int `yaml:"default_limit"`
	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DatabaseURL:  "sqlite://docsift.db",
		DefaultLimit: 10,
		LogLevel:     "info",
	}
}

// Load reads configuration from the given path (or DOCSIFT_CONFIG, or
// ./docsift.yaml when present), then applies environment overrides.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("DOCSIFT_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("docsift.yaml"); err == nil {
		return "docsift.yaml"
	}
	return ""
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCSIFT_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("DOCSIFT_PREFIX"); v != "" {
		cfg.Prefix = v
	}
	if v := os.Getenv("DOCSIFT_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultLimit = n
		}
	}
	if v := os.Getenv("DOCSIFT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.DefaultLimit < 0 {
		return fmt.Errorf("default_limit must be >= 0, got %d", c.DefaultLimit)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}
