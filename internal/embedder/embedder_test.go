package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "hello"}))
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
}

func TestValidateBatchRequest(t *testing.T) {
	assert.NoError(t, ValidateBatchRequest(BatchEmbeddingRequest{Texts: []string{"a", "b"}}))
	assert.ErrorIs(t, ValidateBatchRequest(BatchEmbeddingRequest{}), ErrInvalidInput)
	assert.ErrorIs(t, ValidateBatchRequest(BatchEmbeddingRequest{Texts: []string{"a", ""}}), ErrInvalidInput)
}

func TestComputeHashDeterministic(t *testing.T) {
	h1 := ComputeHash("some text")
	h2 := ComputeHash("some text")
	h3 := ComputeHash("other text")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestCacheGetReturnsCopy(t *testing.T) {
	cache := NewCache(10)
	cache.Set("k", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3})

	got, ok := cache.Get("k")
	require.True(t, ok)
	got.Vector[0] = 99

	again, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, float32(1), again.Vector[0])
}

func TestCacheEviction(t *testing.T) {
	cache := NewCache(2)
	cache.Set("a", &Embedding{Vector: []float32{1}})
	cache.Set("b", &Embedding{Vector: []float32{2}})
	cache.Set("c", &Embedding{Vector: []float32{3}})

	assert.Equal(t, 2, cache.Size())
	_, ok := cache.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
}

func TestCacheClear(t *testing.T) {
	cache := NewCache(10)
	cache.Set("a", &Embedding{Vector: []float32{1}})
	cache.Clear()
	assert.Equal(t, 0, cache.Size())
}

func TestRetryWithBackoffSucceedsAfterFailures(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	result, err := retryWithBackoff(context.Background(), cfg, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, assert.AnError
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoffExhausted(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}

	_, err := retryWithBackoff(context.Background(), cfg, func() (int, error) {
		return 0, assert.AnError
	})

	assert.ErrorIs(t, err, assert.AnError)
}

func TestRetryWithBackoffRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}
	_, err := retryWithBackoff(ctx, cfg, func() (int, error) {
		return 0, assert.AnError
	})

	assert.ErrorIs(t, err, context.Canceled)
}

// openAIStyleServer fakes an OpenAI-compatible /embeddings endpoint returning
// a fixed-dimension vector per input.
func openAIStyleServer(t *testing.T, dim int, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		require.Equal(t, "/embeddings", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]datum, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dim)
			vec[0] = float32(i + 1)
			data[i] = datum{Embedding: vec, Index: i}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data, "model": req.Model})
	}))
}

func TestOpenAIProviderBatch(t *testing.T) {
	server := openAIStyleServer(t, 1536, nil)
	defer server.Close()

	p, err := NewOpenAIProvider("test-key", "", NewCache(10))
	require.NoError(t, err)
	p.baseURL = server.URL

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"one", "two"}})
	require.NoError(t, err)

	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, ProviderOpenAI, resp.Provider)
	assert.Equal(t, DefaultOpenAIModel, resp.Model)
	assert.Equal(t, 1536, resp.Embeddings[0].Dimension)
	assert.Equal(t, float32(1), resp.Embeddings[0].Vector[0])
	assert.Equal(t, float32(2), resp.Embeddings[1].Vector[0])
}

func TestOpenAIProviderUsesCache(t *testing.T) {
	var calls atomic.Int64
	server := openAIStyleServer(t, 4, &calls)
	defer server.Close()

	p, err := NewOpenAIProvider("test-key", "", NewCache(10))
	require.NoError(t, err)
	p.baseURL = server.URL

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "repeat me"})
	require.NoError(t, err)
	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "repeat me"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load(), "second call should be served from cache")
}

func TestOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider("", "", nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestGeminiProviderBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, ":batchEmbedContents")
		require.NotEmpty(t, r.Header.Get("x-goog-api-key"))

		var req struct {
			Requests []struct {
				Content struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"content"`
			} `json:"requests"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type values struct {
			Values []float32 `json:"values"`
		}
		out := make([]values, len(req.Requests))
		for i := range req.Requests {
			out[i] = values{Values: make([]float32, 768)}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": out})
	}))
	defer server.Close()

	p, err := NewGeminiProvider("test-key", "", NewCache(10))
	require.NoError(t, err)
	p.baseURL = server.URL

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "b", "c"}})
	require.NoError(t, err)

	require.Len(t, resp.Embeddings, 3)
	assert.Equal(t, ProviderGemini, resp.Provider)
	assert.Equal(t, DefaultGeminiModel, resp.Model)
	assert.Equal(t, 768, resp.Embeddings[0].Dimension)
	assert.Equal(t, 768, p.Dimension())
}

func TestSiliconFlowLazyDimension(t *testing.T) {
	server := openAIStyleServer(t, 1024, nil)
	defer server.Close()

	p, err := NewSiliconFlowProvider("test-key", "", server.URL, NewCache(10))
	require.NoError(t, err)

	assert.Equal(t, 0, p.Dimension(), "dimension unknown before first call")

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hello"})
	require.NoError(t, err)

	assert.Equal(t, 1024, p.Dimension())
	assert.Equal(t, DefaultSiliconFlowModel, p.Model())
}

func TestProviderAPIErrorWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	p, err := NewOpenAIProvider("test-key", "", nil)
	require.NoError(t, err)
	p.baseURL = server.URL

	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"x"}})
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestSplitBatchesPreservesOrder(t *testing.T) {
	texts := make([]string, 130)
	for i := range texts {
		texts[i] = string(rune('a' + i%26))
	}

	embs, err := splitBatches(context.Background(), texts, 50, func(_ context.Context, batch []string) ([]*Embedding, error) {
		out := make([]*Embedding, len(batch))
		for i, s := range batch {
			out[i] = &Embedding{Vector: []float32{float32(s[0])}, Dimension: 1}
		}
		return out, nil
	})
	require.NoError(t, err)

	require.Len(t, embs, 130)
	for i, emb := range embs {
		assert.Equal(t, float32(texts[i][0]), emb.Vector[0], "index %d out of order", i)
	}
}
