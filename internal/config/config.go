// Package config loads the YAML configuration of a store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the store configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	TTL     TTLConfig     `yaml:"ttl"`
	Matcher MatcherConfig `yaml:"matcher"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig holds document store settings.
type StoreConfig struct {
	IDField          string `yaml:"id_field"`
	DefaultBatchSize int    `yaml:"default_batch_size"`
}

// TTLConfig holds TTL sweeper settings.
type TTLConfig struct {
	Enabled       *bool         `yaml:"enabled"` // default: true
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// MatcherConfig holds filter matcher settings.
type MatcherConfig struct {
	RegexCacheSize int `yaml:"regex_cache_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Env   string `yaml:"env"`   // nop, local, dev, test, prod (default: nop)
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// MetricsConfig holds prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// Load reads configuration from a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse reads configuration from YAML, expanding ${VAR} references.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Store.IDField == "" {
		c.Store.IDField = "_id"
	}
	if c.Store.DefaultBatchSize <= 0 {
		c.Store.DefaultBatchSize = 101
	}
	if c.TTL.Enabled == nil {
		enabled := true
		c.TTL.Enabled = &enabled
	}
	if c.TTL.SweepInterval <= 0 {
		c.TTL.SweepInterval = 60 * time.Second
	}
	if c.Matcher.RegexCacheSize <= 0 {
		c.Matcher.RegexCacheSize = 256
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "nop"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "morphium"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if strings.ContainsAny(c.Store.IDField, ".$") {
		return fmt.Errorf("store.id_field must not contain '.' or '$', got %q", c.Store.IDField)
	}
	if c.TTL.SweepInterval < time.Millisecond {
		return fmt.Errorf("ttl.sweep_interval must be at least 1ms, got %s", c.TTL.SweepInterval)
	}
	switch c.Logging.Env {
	case "nop", "local", "dev", "test", "prod":
		// ok
	default:
		return fmt.Errorf("logging.env must be one of nop, local, dev, test, prod, got %q", c.Logging.Env)
	}
	return nil
}

// TTLEnabled reports whether the sweeper runs.
func (c *Config) TTLEnabled() bool {
	return c.TTL.Enabled == nil || *c.TTL.Enabled
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
