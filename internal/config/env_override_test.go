package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_APIKeys(t *testing.T) {
	t.Run("ANTHROPIC_API_KEY sets key and provider", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("UPLIFT_PROVIDER", "")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "ant-key", cfg.LLM.AnthropicAPIKey)
		assert.Equal(t, "anthropic", cfg.LLM.Provider)
	})

	t.Run("OPENAI_API_KEY sets key and provider", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("UPLIFT_PROVIDER", "")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "oa-key", cfg.LLM.OpenAIAPIKey)
		assert.Equal(t, "openai", cfg.LLM.Provider)
	})

	t.Run("precedence: OpenAI checked last wins", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("UPLIFT_PROVIDER", "")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		// Both keys land; the provider preference follows the last check.
		assert.Equal(t, "ant-key", cfg.LLM.AnthropicAPIKey)
		assert.Equal(t, "oa-key", cfg.LLM.OpenAIAPIKey)
		assert.Equal(t, "openai", cfg.LLM.Provider)
	})

	t.Run("UPLIFT_PROVIDER restores explicit choice", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("UPLIFT_PROVIDER", "anthropic")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "anthropic", cfg.LLM.Provider)
	})
}

func TestEnvOverrides_Model(t *testing.T) {
	t.Run("UPLIFT_MODEL targets the active provider", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("UPLIFT_PROVIDER", "")
		t.Setenv("UPLIFT_MODEL", "gpt-4o-mini")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gpt-4o-mini", cfg.LLM.OpenAIModel)
		assert.Empty(t, cfg.LLM.AnthropicModel)
	})

	t.Run("UPLIFT_MODEL follows UPLIFT_PROVIDER", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("UPLIFT_PROVIDER", "anthropic")
		t.Setenv("UPLIFT_MODEL", "claude-3-opus-20240229")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "claude-3-opus-20240229", cfg.LLM.AnthropicModel)
		assert.Empty(t, cfg.LLM.OpenAIModel)
	})
}

func TestEnvOverrides_Paths(t *testing.T) {
	t.Run("UPLIFT_DB sets the storage path", func(t *testing.T) {
		t.Setenv("UPLIFT_DB", "/tmp/uplift-test.db")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "/tmp/uplift-test.db", cfg.Storage.Path)
	})

	t.Run("UPLIFT_PROMPTS sets the prompt dir", func(t *testing.T) {
		t.Setenv("UPLIFT_PROMPTS", "/tmp/prompts")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "/tmp/prompts", cfg.Pipeline.PromptDir)
	})
}
