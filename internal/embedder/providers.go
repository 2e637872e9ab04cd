package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Provider configuration
const (
	ProviderOpenAI      = "openai"
	ProviderGemini      = "gemini"
	ProviderSiliconFlow = "siliconflow"

	// Default models
	DefaultOpenAIModel      = "text-embedding-3-small"
	DefaultGeminiModel      = "gemini-embedding-001"
	DefaultSiliconFlowModel = "BAAI/bge-large-zh-v1.5"

	// Default endpoints
	DefaultOpenAIBaseURL      = "https://api.openai.com/v1"
	DefaultGeminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	DefaultSiliconFlowBaseURL = "https://api.siliconflow.cn/v1"

	// Dimensions. SiliconFlow dimensionality depends on the model and is
	// learned from the first response rather than declared here.
	OpenAIDimension = 1536
	GeminiDimension = 768

	// Batch limits
	DefaultBatchSize     = 50
	MaxConcurrentBatches = 4

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// Environment variables consulted by the factory and providers.
const (
	EnvOpenAIAPIKey          = "OPENAI_API_KEY"
	EnvGoogleAPIKey          = "GOOGLE_API_KEY"
	EnvSiliconFlowAPIKey     = "SILICONFLOW_API_KEY"
	EnvSiliconFlowBaseURL    = "SILICONFLOW_BASE_URL"
	EnvSiliconFlowModel      = "SILICONFLOW_EMBEDDING_MODEL"
	EnvEmbeddingProvider     = "KBINDEX_EMBEDDING_PROVIDER"
	defaultHTTPTimeoutSecond = 30
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeoutSecond * time.Second}
}

// splitBatches embeds texts in sub-batches of at most batchSize, issuing up
// to MaxConcurrentBatches calls in parallel. Results keep input order.
// Any sub-batch failure fails the whole request.
func splitBatches(ctx context.Context, texts []string, batchSize int, call func(ctx context.Context, texts []string) ([]*Embedding, error)) ([]*Embedding, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	results := make([]*Embedding, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentBatches)

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		offset, batch := start, texts[start:end]

		g.Go(func() error {
			embs, err := call(gctx, batch)
			if err != nil {
				return err
			}
			if len(embs) != len(batch) {
				return fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(embs), len(batch))
			}
			copy(results[offset:], embs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// cacheBatch records freshly generated embeddings under their text hashes.
func cacheBatch(cache *Cache, texts []string, embs []*Embedding) {
	if cache == nil {
		return
	}
	for i, emb := range embs {
		hash := ComputeHash(texts[i])
		emb.Hash = hash
		cache.Set(hash, emb)
	}
}

// openAIWireCall posts texts to an OpenAI-compatible /embeddings endpoint.
// SiliconFlow speaks the same wire format, so both providers share it.
func openAIWireCall(ctx context.Context, client *http.Client, baseURL, apiKey, model, provider string, texts []string) ([]*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		embeddings[i] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  provider,
			Model:     model,
		}
	}
	return embeddings, nil
}

// OpenAIProvider implements Embedder using the OpenAI embeddings API.
type OpenAIProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	cache      *Cache
}

// NewOpenAIProvider creates a new OpenAI embedder.
func NewOpenAIProvider(apiKey, model string, cache *Cache) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    DefaultOpenAIBaseURL,
		httpClient: newHTTPClient(),
		cache:      cache,
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if o.cache != nil {
		if emb, ok := o.cache.Get(hash); ok {
			return emb, nil
		}
	}

	resp, err := o.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	config := DefaultRetryConfig()
	embeddings, err := splitBatches(ctx, req.Texts, DefaultBatchSize, func(ctx context.Context, texts []string) ([]*Embedding, error) {
		return retryWithBackoff(ctx, config, func() ([]*Embedding, error) {
			return openAIWireCall(ctx, o.httpClient, o.baseURL, o.apiKey, o.model, ProviderOpenAI, texts)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	cacheBatch(o.cache, req.Texts, embeddings)

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOpenAI,
		Model:      o.model,
	}, nil
}

func (o *OpenAIProvider) Provider() string { return ProviderOpenAI }
func (o *OpenAIProvider) Model() string    { return o.model }
func (o *OpenAIProvider) Dimension() int   { return OpenAIDimension }

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// GeminiProvider implements Embedder using the Gemini embedContent API.
type GeminiProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	cache      *Cache
}

// NewGeminiProvider creates a new Gemini embedder.
func NewGeminiProvider(apiKey, model string, cache *Cache) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvGoogleAPIKey)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    DefaultGeminiBaseURL,
		httpClient: newHTTPClient(),
		cache:      cache,
	}, nil
}

func (g *GeminiProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if g.cache != nil {
		if emb, ok := g.cache.Get(hash); ok {
			return emb, nil
		}
	}

	resp, err := g.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}

func (g *GeminiProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	config := DefaultRetryConfig()
	embeddings, err := splitBatches(ctx, req.Texts, DefaultBatchSize, func(ctx context.Context, texts []string) ([]*Embedding, error) {
		return retryWithBackoff(ctx, config, func() ([]*Embedding, error) {
			return g.callAPI(ctx, texts)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	cacheBatch(g.cache, req.Texts, embeddings)

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderGemini,
		Model:      g.model,
	}, nil
}

// callAPI posts texts to the batchEmbedContents endpoint.
func (g *GeminiProvider) callAPI(ctx context.Context, texts []string) ([]*Embedding, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Parts []part `json:"parts"`
	}
	type embedRequest struct {
		Model   string  `json:"model"`
		Content content `json:"content"`
	}

	requests := make([]embedRequest, len(texts))
	for i, text := range texts {
		requests[i] = embedRequest{
			Model:   "models/" + g.model,
			Content: content{Parts: []part{{Text: text}}},
		}
	}

	body, err := json.Marshal(map[string]interface{}{"requests": requests})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Embeddings []struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	embeddings := make([]*Embedding, len(apiResp.Embeddings))
	for i, data := range apiResp.Embeddings {
		embeddings[i] = &Embedding{
			Vector:    data.Values,
			Dimension: len(data.Values),
			Provider:  ProviderGemini,
			Model:     g.model,
		}
	}
	return embeddings, nil
}

func (g *GeminiProvider) Provider() string { return ProviderGemini }
func (g *GeminiProvider) Model() string    { return g.model }
func (g *GeminiProvider) Dimension() int   { return GeminiDimension }

func (g *GeminiProvider) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}

// SiliconFlowProvider implements Embedder against SiliconFlow's
// OpenAI-compatible API. Vector dimensionality varies by model, so it is
// recorded from the first successful response; Dimension reports 0 until then.
type SiliconFlowProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	cache      *Cache
	dims       atomic.Int64
}

// NewSiliconFlowProvider creates a new SiliconFlow embedder.
func NewSiliconFlowProvider(apiKey, model, baseURL string, cache *Cache) (*SiliconFlowProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvSiliconFlowAPIKey)
	}
	if model == "" {
		model = DefaultSiliconFlowModel
	}
	if baseURL == "" {
		baseURL = DefaultSiliconFlowBaseURL
	}
	return &SiliconFlowProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: newHTTPClient(),
		cache:      cache,
	}, nil
}

func (s *SiliconFlowProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if s.cache != nil {
		if emb, ok := s.cache.Get(hash); ok {
			return emb, nil
		}
	}

	resp, err := s.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}

func (s *SiliconFlowProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	config := DefaultRetryConfig()
	embeddings, err := splitBatches(ctx, req.Texts, DefaultBatchSize, func(ctx context.Context, texts []string) ([]*Embedding, error) {
		return retryWithBackoff(ctx, config, func() ([]*Embedding, error) {
			return openAIWireCall(ctx, s.httpClient, s.baseURL, s.apiKey, s.model, ProviderSiliconFlow, texts)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	if len(embeddings) > 0 && s.dims.Load() == 0 {
		s.dims.Store(int64(embeddings[0].Dimension))
	}

	cacheBatch(s.cache, req.Texts, embeddings)

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderSiliconFlow,
		Model:      s.model,
	}, nil
}

func (s *SiliconFlowProvider) Provider() string { return ProviderSiliconFlow }
func (s *SiliconFlowProvider) Model() string    { return s.model }

// Dimension returns the dimensionality learned from the first successful
// call, or 0 if nothing has been embedded yet.
func (s *SiliconFlowProvider) Dimension() int { return int(s.dims.Load()) }

func (s *SiliconFlowProvider) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}
