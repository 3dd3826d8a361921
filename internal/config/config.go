// Package config loads the application configuration: full defaults,
// optionally overlaid by a YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all uplift configuration.
type Config struct {
	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Result cache
	Cache CacheConfig `yaml:"cache"`

	// Module registry
	Registry RegistryConfig `yaml:"registry"`

	// Analysis pipeline tuning
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Page capture
	Capture CaptureConfig `yaml:"capture"`

	// Artifact storage
	Storage StorageConfig `yaml:"storage"`

	// Usage tracking
	Usage UsageConfig `yaml:"usage"`

	// Debug logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the completion service.
type LLMConfig struct {
	Provider        string      `yaml:"provider"` // openai, anthropic
	OpenAIModel     string      `yaml:"openai_model"`
	AnthropicModel  string      `yaml:"anthropic_model"`
	OpenAIAPIKey    string      `yaml:"openai_api_key"`
	AnthropicAPIKey string      `yaml:"anthropic_api_key"`
	Temperature     float64     `yaml:"temperature"`
	MaxTokens       int         `yaml:"max_tokens"`
	Timeout         string      `yaml:"timeout"`
	MaxConcurrent   int         `yaml:"max_concurrent"`
	Retry           RetryConfig `yaml:"retry"`
}

// RetryConfig configures the retry policy for completion calls.
type RetryConfig struct {
	MaxAttempts  int     `yaml:"max_attempts"`
	InitialDelay string  `yaml:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay"`
	Multiplier   float64 `yaml:"multiplier"`
}

// CacheConfig configures the module result cache.
type CacheConfig struct {
	MaxSize         int    `yaml:"max_size"`
	DefaultTTL      string `yaml:"default_ttl"`
	CleanupInterval string `yaml:"cleanup_interval"`
}

// RegistryConfig configures module dispatch.
type RegistryConfig struct {
	// Default timeout for a single module execution
	DefaultTimeout string `yaml:"default_timeout"`
}

// PipelineConfig tunes the analysis stages.
type PipelineConfig struct {
	MinGroupSize          int    `yaml:"min_group_size"`
	MaxHypothesesPerTheme int    `yaml:"max_hypotheses_per_theme"`
	MaxExperiments        int    `yaml:"max_experiments"`
	StageTimeout          string `yaml:"stage_timeout"`

	// Directory of prompt template overrides; empty disables overrides
	PromptDir string `yaml:"prompt_dir"`
}

// CaptureConfig configures page capture.
type CaptureConfig struct {
	Mode           string `yaml:"mode"` // browser, static
	Headless       bool   `yaml:"headless"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	NavTimeout     string `yaml:"nav_timeout"`
	UserAgent      string `yaml:"user_agent"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

// StorageConfig configures artifact persistence.
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite

	// Database path for the sqlite driver; empty derives it from the
	// workspace (<workspace>/.uplift/artifacts.db)
	Path string `yaml:"path"`
}

// UsageConfig configures LLM usage tracking.
type UsageConfig struct {
	Enabled bool `yaml:"enabled"`

	// Workspace override for the usage file; empty uses the workspace
	Path string `yaml:"path"`
}

// LoggingConfig configures the category debug logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
	JSONFormat bool            `yaml:"json_format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "openai",
			OpenAIModel:    "gpt-4o",
			AnthropicModel: "claude-3-5-sonnet-20241022",
			Temperature:    0.2,
			MaxTokens:      4096,
			Timeout:        "120s",
			MaxConcurrent:  4,
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: "1s",
				MaxDelay:     "15s",
				Multiplier:   2.0,
			},
		},

		Cache: CacheConfig{
			MaxSize:         500,
			DefaultTTL:      "1h",
			CleanupInterval: "5m",
		},

		Registry: RegistryConfig{
			DefaultTimeout: "60s",
		},

		Pipeline: PipelineConfig{
			MinGroupSize:          2,
			MaxHypothesesPerTheme: 5,
			MaxExperiments:        10,
			StageTimeout:          "2m",
		},

		Capture: CaptureConfig{
			Mode:           "browser",
			Headless:       true,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			NavTimeout:     "30s",
			MaxBodyBytes:   5 << 20,
		},

		Storage: StorageConfig{
			Driver: "sqlite",
		},

		Usage: UsageConfig{
			Enabled: true,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides. API keys
// carry a provider preference; when both are set the OpenAI check runs
// last and wins, and UPLIFT_PROVIDER restores an explicit choice.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.AnthropicAPIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.OpenAIAPIKey = key
		c.LLM.Provider = "openai"
	}
	if provider := os.Getenv("UPLIFT_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
	if model := os.Getenv("UPLIFT_MODEL"); model != "" {
		switch c.LLM.Provider {
		case "anthropic":
			c.LLM.AnthropicModel = model
		default:
			c.LLM.OpenAIModel = model
		}
	}

	if path := os.Getenv("UPLIFT_DB"); path != "" {
		c.Storage.Path = path
	}
	if dir := os.Getenv("UPLIFT_PROMPTS"); dir != "" {
		c.Pipeline.PromptDir = dir
	}
}

// duration parses a duration string, falling back when empty or invalid.
func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetLLMTimeout returns the LLM request timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return duration(c.LLM.Timeout, 120*time.Second)
}

// GetRetryInitialDelay returns the first retry backoff as a duration.
func (c *Config) GetRetryInitialDelay() time.Duration {
	return duration(c.LLM.Retry.InitialDelay, 1*time.Second)
}

// GetRetryMaxDelay returns the backoff ceiling as a duration.
func (c *Config) GetRetryMaxDelay() time.Duration {
	return duration(c.LLM.Retry.MaxDelay, 15*time.Second)
}

// GetCacheTTL returns the default cache entry lifetime as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	return duration(c.Cache.DefaultTTL, time.Hour)
}

// GetCacheCleanupInterval returns the janitor sweep interval as a duration.
func (c *Config) GetCacheCleanupInterval() time.Duration {
	return duration(c.Cache.CleanupInterval, 5*time.Minute)
}

// GetRegistryTimeout returns the default module execution timeout.
func (c *Config) GetRegistryTimeout() time.Duration {
	return duration(c.Registry.DefaultTimeout, 60*time.Second)
}

// GetStageTimeout returns the per-stage pipeline timeout.
func (c *Config) GetStageTimeout() time.Duration {
	return duration(c.Pipeline.StageTimeout, 2*time.Minute)
}

// GetNavTimeout returns the browser navigation timeout.
func (c *Config) GetNavTimeout() time.Duration {
	return duration(c.Capture.NavTimeout, 30*time.Second)
}

// ActiveAPIKey returns the API key for the configured provider.
func (c *Config) ActiveAPIKey() string {
	switch c.LLM.Provider {
	case "anthropic":
		return c.LLM.AnthropicAPIKey
	default:
		return c.LLM.OpenAIAPIKey
	}
}

// ActiveModel returns the model for the configured provider.
func (c *Config) ActiveModel() string {
	switch c.LLM.Provider {
	case "anthropic":
		return c.LLM.AnthropicModel
	default:
		return c.LLM.OpenAIModel
	}
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openai", "anthropic"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.ActiveAPIKey() == "" {
		return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY or ANTHROPIC_API_KEY)")
	}

	switch c.Capture.Mode {
	case "", "browser", "static":
	default:
		return fmt.Errorf("invalid capture mode: %s (valid: [browser static])", c.Capture.Mode)
	}

	switch c.Storage.Driver {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("invalid storage driver: %s (valid: [memory sqlite])", c.Storage.Driver)
	}

	return nil
}
