package ai_test

import (
	"testing"

	"github.com/kiranshivaraju/voicepipe/internal/ai"
	"github.com/kiranshivaraju/voicepipe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_Gemini(t *testing.T) {
	cfg := config.AIConfig{
		Provider: "gemini",
		Gemini:   config.GeminiConfig{APIKey: "test-key", Model: "gemini-2.0-flash", BaseURL: "https://example.com"},
	}
	p, err := ai.NewProvider(cfg)
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())
}

func TestNewProvider_Mock(t *testing.T) {
	p, err := ai.NewProvider(config.AIConfig{Provider: "mock"})
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())
}

func TestNewProvider_Unknown(t *testing.T) {
	cfg := config.AIConfig{Provider: "unknown-provider"}
	_, err := ai.NewProvider(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown AI provider")
	assert.Contains(t, err.Error(), "unknown-provider")
}

func TestNewProvider_Empty(t *testing.T) {
	cfg := config.AIConfig{Provider: ""}
	_, err := ai.NewProvider(cfg)
	require.Error(t, err)
}
