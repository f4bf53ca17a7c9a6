// ABOUTME: Configuration loading and parsing for yatri-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete yatri-gateway configuration
type Config struct {
	Server       ServerConfig    `yaml:"server"`
	Environment  string          `yaml:"environment"`
	Database     DatabaseConfig  `yaml:"database"`
	Providers    ProvidersConfig `yaml:"providers"`
	Conversation ConvConfig      `yaml:"conversation"`
	Logging      LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds storage backend configuration.
// Path is the SQLite database file; FallbackDir holds the flat-file
// store used when the database is unavailable.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	FallbackDir string `yaml:"fallback_dir"`

	HealthIntervalRaw string        `yaml:"health_interval"`
	HealthInterval    time.Duration `yaml:"-"`
}

// ProvidersConfig holds the response provider chain configuration
type ProvidersConfig struct {
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`

	TimeoutRaw string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

// AnthropicConfig configures the primary reasoning provider.
// ReasonerModel is used when a request escalates to reasoning mode.
type AnthropicConfig struct {
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	ReasonerModel string `yaml:"reasoner_model"`
}

// OpenAIConfig configures the secondary general-purpose provider
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// ConvConfig bounds the in-memory conversation history
type ConvConfig struct {
	// HistoryCap is the maximum number of retained messages per
	// conversation key (a user/assistant exchange counts as two).
	HistoryCap int `yaml:"history_cap"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied for omitted fields.
const (
	DefaultHTTPAddr        = "localhost:8080"
	DefaultHistoryCap      = 20
	DefaultProviderTimeout = 30 * time.Second
	DefaultHealthInterval  = 30 * time.Second
	DefaultAnthropicModel  = "claude-3-5-sonnet-20241022"
	DefaultReasonerModel   = "claude-3-7-sonnet-20250219"
	DefaultOpenAIModel     = "gpt-4o-mini"
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment
// variable values. Unset variables are replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in zero-valued fields with their defaults
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Conversation.HistoryCap == 0 {
		c.Conversation.HistoryCap = DefaultHistoryCap
	}
	if c.Providers.Timeout == 0 {
		c.Providers.Timeout = DefaultProviderTimeout
	}
	if c.Database.HealthInterval == 0 {
		c.Database.HealthInterval = DefaultHealthInterval
	}
	if c.Providers.Anthropic.Model == "" {
		c.Providers.Anthropic.Model = DefaultAnthropicModel
	}
	if c.Providers.Anthropic.ReasonerModel == "" {
		c.Providers.Anthropic.ReasonerModel = DefaultReasonerModel
	}
	if c.Providers.OpenAI.Model == "" {
		c.Providers.OpenAI.Model = DefaultOpenAIModel
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.FallbackDir == "" {
		return fmt.Errorf("database.fallback_dir is required")
	}
	if c.Conversation.HistoryCap < 2 {
		return fmt.Errorf("conversation.history_cap must be at least 2")
	}
	if c.Conversation.HistoryCap%2 != 0 {
		return fmt.Errorf("conversation.history_cap must be even (history is kept in user/assistant pairs)")
	}
	switch c.Environment {
	case "development", "production", "test":
	default:
		return fmt.Errorf("environment must be one of development, production, test (got %q)", c.Environment)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func (c *Config) parseDurations() error {
	var err error

	if c.Providers.TimeoutRaw != "" {
		c.Providers.Timeout, err = time.ParseDuration(c.Providers.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing providers.timeout %q: %w", c.Providers.TimeoutRaw, err)
		}
	}

	if c.Database.HealthIntervalRaw != "" {
		c.Database.HealthInterval, err = time.ParseDuration(c.Database.HealthIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing database.health_interval %q: %w", c.Database.HealthIntervalRaw, err)
		}
	}

	return nil
}
