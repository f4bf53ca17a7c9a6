// ABOUTME: Tests for configuration loading, env expansion, defaults and validation
// ABOUTME: Uses temp files to exercise the YAML parsing path end to end

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
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MinimalConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/yatri.db"
  fallback_dir: "/tmp/yatri-files"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.HTTPAddr)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, DefaultHistoryCap, cfg.Conversation.HistoryCap)
	assert.Equal(t, DefaultProviderTimeout, cfg.Providers.Timeout)
	assert.Equal(t, DefaultHealthInterval, cfg.Database.HealthInterval)
	assert.Equal(t, DefaultAnthropicModel, cfg.Providers.Anthropic.Model)
	assert.Equal(t, DefaultReasonerModel, cfg.Providers.Anthropic.ReasonerModel)
	assert.Equal(t, DefaultOpenAIModel, cfg.Providers.OpenAI.Model)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("YATRI_TEST_KEY", "sk-test-123")

	path := writeConfig(t, `
database:
  path: "/tmp/yatri.db"
  fallback_dir: "/tmp/yatri-files"
providers:
  anthropic:
    api_key: "${YATRI_TEST_KEY}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.Providers.Anthropic.APIKey)
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/yatri.db"
  fallback_dir: "/tmp/yatri-files"
providers:
  openai:
    api_key: "${YATRI_DEFINITELY_UNSET_VAR}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Providers.OpenAI.APIKey)
}

func TestLoad_Durations(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/yatri.db"
  fallback_dir: "/tmp/yatri-files"
  health_interval: "10s"
providers:
  timeout: "45s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Providers.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Database.HealthInterval)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/yatri.db"
  fallback_dir: "/tmp/yatri-files"
providers:
  timeout: "not-a-duration"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "providers.timeout")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "missing fallback dir",
			mutate:  func(c *Config) { c.Database.FallbackDir = "" },
			wantErr: "database.fallback_dir",
		},
		{
			name:    "odd history cap",
			mutate:  func(c *Config) { c.Conversation.HistoryCap = 7 },
			wantErr: "must be even",
		},
		{
			name:    "tiny history cap",
			mutate:  func(c *Config) { c.Conversation.HistoryCap = 1 },
			wantErr: "at least 2",
		},
		{
			name:    "unknown environment",
			mutate:  func(c *Config) { c.Environment = "staging-ish" },
			wantErr: "environment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Environment: "production",
				Database:    DatabaseConfig{Path: "/tmp/db", FallbackDir: "/tmp/files"},
				Conversation: ConvConfig{
					HistoryCap: 20,
				},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
