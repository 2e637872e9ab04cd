package embedder

import (
	"fmt"
	"os"
)

// Config configures embedder creation.
type Config struct {
	// Provider selects the backend explicitly ("openai", "gemini",
	// "siliconflow"). Empty means auto-detect from available API keys.
	Provider string

	// Model overrides the provider's default model.
	Model string

	// APIKey overrides the environment lookup for the selected provider.
	APIKey string

	// BaseURL overrides the provider endpoint (SiliconFlow only).
	BaseURL string

	// CacheSize is the in-memory LRU capacity. Zero means the default.
	CacheSize int
}

// New creates an embedder from the given configuration. With an empty
// Provider it falls back to environment auto-detection.
func New(cfg Config) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)

	provider := cfg.Provider
	if provider == "" {
		provider = os.Getenv(EnvEmbeddingProvider)
	}
	if provider == "" {
		provider = DetectProvider()
	}

	switch provider {
	case ProviderGemini:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv(EnvGoogleAPIKey)
		}
		return NewGeminiProvider(key, cfg.Model, cache)

	case ProviderSiliconFlow:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv(EnvSiliconFlowAPIKey)
		}
		model := cfg.Model
		if model == "" {
			model = os.Getenv(EnvSiliconFlowModel)
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv(EnvSiliconFlowBaseURL)
		}
		return NewSiliconFlowProvider(key, model, baseURL, cache)

	case ProviderOpenAI:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv(EnvOpenAIAPIKey)
		}
		return NewOpenAIProvider(key, cfg.Model, cache)

	case "":
		return nil, fmt.Errorf("%w: set %s, %s or %s", ErrNoProviderEnabled,
			EnvGoogleAPIKey, EnvSiliconFlowAPIKey, EnvOpenAIAPIKey)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
}

// NewFromEnv creates an embedder from environment variables alone.
// KBINDEX_EMBEDDING_PROVIDER forces a specific backend; otherwise the first
// configured provider wins, in priority order Gemini, SiliconFlow, OpenAI.
func NewFromEnv() (Embedder, error) {
	return New(Config{})
}

// DetectProvider returns the name of the first provider with an API key in
// the environment, in priority order Gemini, SiliconFlow, OpenAI. Returns ""
// when none is configured.
func DetectProvider() string {
	if os.Getenv(EnvGoogleAPIKey) != "" {
		return ProviderGemini
	}
	if os.Getenv(EnvSiliconFlowAPIKey) != "" {
		return ProviderSiliconFlow
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ""
}
