package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvGoogleAPIKey, "")
	t.Setenv(EnvSiliconFlowAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvEmbeddingProvider, "")
}

func TestDetectProviderPriority(t *testing.T) {
	clearProviderEnv(t)
	assert.Equal(t, "", DetectProvider())

	t.Setenv(EnvOpenAIAPIKey, "sk-x")
	assert.Equal(t, ProviderOpenAI, DetectProvider())

	t.Setenv(EnvSiliconFlowAPIKey, "sf-x")
	assert.Equal(t, ProviderSiliconFlow, DetectProvider(), "siliconflow outranks openai")

	t.Setenv(EnvGoogleAPIKey, "g-x")
	assert.Equal(t, ProviderGemini, DetectProvider(), "gemini outranks everything")
}

func TestNewFromEnvNoKeys(t *testing.T) {
	clearProviderEnv(t)

	_, err := NewFromEnv()
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestNewFromEnvExplicitProvider(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv(EnvGoogleAPIKey, "g-x")
	t.Setenv(EnvOpenAIAPIKey, "sk-x")
	t.Setenv(EnvEmbeddingProvider, ProviderOpenAI)

	emb, err := NewFromEnv()
	require.NoError(t, err)
	defer func() {
		_ = emb.Close()
	}()

	assert.Equal(t, ProviderOpenAI, emb.Provider())
}

func TestNewUnsupportedProvider(t *testing.T) {
	_, err := New(Config{Provider: "cohere"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestNewExplicitConfig(t *testing.T) {
	emb, err := New(Config{Provider: ProviderSiliconFlow, APIKey: "sf-x", Model: "Qwen/Qwen3-Embedding-0.6B"})
	require.NoError(t, err)
	defer func() {
		_ = emb.Close()
	}()

	assert.Equal(t, ProviderSiliconFlow, emb.Provider())
	assert.Equal(t, "Qwen/Qwen3-Embedding-0.6B", emb.Model())
	assert.Equal(t, 0, emb.Dimension())
}
