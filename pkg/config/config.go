// Package config loads pipeline configuration from defaults, an
// optional YAML file and CUSTOMER_SYNC_* environment variables, in that
// precedence order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPrefix for environment overrides.
const envPrefix = "CUSTOMER_SYNC_"

// Config holds every externally supplied setting of the pipeline.
type Config struct {
	// BaseURL of the customer API. Required.
	BaseURL string `yaml:"base_url"`

	// APIKey sent as a Bearer token. Optional.
	APIKey string `yaml:"api_key"`

	// Resource is the collection path under BaseURL.
	Resource string `yaml:"resource"`

	// OutputFile is the export destination path.
	OutputFile string `yaml:"output_file"`

	// Timeout per individual HTTP request.
	Timeout time.Duration `yaml:"timeout"`

	// MaxAttempts per page request, including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffBase is the first retry wait; doubles per attempt.
	BackoffBase time.Duration `yaml:"backoff_base"`

	// RateLimitRPS paces requests client-side. <= 0 disables.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`

	// MetricsAddr serves /metrics during the run when non-empty.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogPretty enables console-friendly log output.
	LogPretty bool `yaml:"log_pretty"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Resource:    "users",
		OutputFile:  "customers_export.json",
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		BackoffBase: 1 * time.Second,
		LogLevel:    "info",
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then environment variables. A .env file
// in the working directory is folded into the environment first.
func Load(path string) (Config, error) {
	// Missing .env is fine; only the explicit config file is required
	// to exist when named.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// applyEnv overrides fields from CUSTOMER_SYNC_* variables.
func (c *Config) applyEnv() error {
	setString(&c.BaseURL, "BASE_URL")
	setString(&c.APIKey, "API_KEY")
	setString(&c.Resource, "RESOURCE")
	setString(&c.OutputFile, "OUTPUT_FILE")
	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")

	if err := setDuration(&c.Timeout, "TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.BackoffBase, "BACKOFF_BASE"); err != nil {
		return err
	}
	if err := setInt(&c.MaxAttempts, "MAX_ATTEMPTS"); err != nil {
		return err
	}
	if err := setFloat(&c.RateLimitRPS, "RATE_LIMIT_RPS"); err != nil {
		return err
	}
	if err := setBool(&c.LogPretty, "LOG_PRETTY"); err != nil {
		return err
	}
	return nil
}

// Validate checks the settings a run cannot proceed without.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output_file is required")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1 (got %d)", c.MaxAttempts)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive (got %v)", c.Timeout)
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("backoff_base must be positive (got %v)", c.BackoffBase)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s%s: %w", envPrefix, key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s%s: %w", envPrefix, key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("parse %s%s: %w", envPrefix, key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parse %s%s: %w", envPrefix, key, err)
	}
	*dst = b
	return nil
}
