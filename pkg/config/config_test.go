package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "users", cfg.Resource)
	assert.Equal(t, "customers_export.json", cfg.OutputFile)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.BackoffBase)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
base_url: https://reqres.in/api
api_key: file-key
output_file: /tmp/export.json
timeout: 5s
max_attempts: 5
backoff_base: 500ms
rate_limit_rps: 2.5
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://reqres.in/api", cfg.BaseURL)
	assert.Equal(t, "file-key", cfg.APIKey)
	assert.Equal(t, "/tmp/export.json", cfg.OutputFile)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
base_url: https://from-file.example.com
max_attempts: 5
`)

	t.Setenv("CUSTOMER_SYNC_BASE_URL", "https://from-env.example.com")
	t.Setenv("CUSTOMER_SYNC_MAX_ATTEMPTS", "7")
	t.Setenv("CUSTOMER_SYNC_TIMEOUT", "3s")
	t.Setenv("CUSTOMER_SYNC_LOG_PRETTY", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://from-env.example.com", cfg.BaseURL)
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.True(t, cfg.LogPretty)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAMLErrors(t *testing.T) {
	path := writeConfig(t, "base_url: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_BadEnvValueErrors(t *testing.T) {
	t.Setenv("CUSTOMER_SYNC_MAX_ATTEMPTS", "many")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.BaseURL = "https://reqres.in/api"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing base url", func(c *Config) { c.BaseURL = "" }, true},
		{"missing output", func(c *Config) { c.OutputFile = "" }, true},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }, true},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"zero backoff", func(c *Config) { c.BackoffBase = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
