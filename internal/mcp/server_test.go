package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbindex/internal/config"
	"kbindex/internal/embedder"
	"kbindex/internal/knowledge"
)

type stubEmbedder struct{}

func (stubEmbedder) GenerateEmbedding(_ context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	vec := []float32{float32(len(req.Text)%7) + 1, 1}
	return &embedder.Embedding{Vector: vec, Dimension: 2, Provider: "stub", Model: "stub-model"}, nil
}

func (s stubEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	out := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, _ := s.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		out[i] = emb
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: out, Provider: "stub", Model: "stub-model"}, nil
}

func (stubEmbedder) Provider() string { return "stub" }
func (stubEmbedder) Model() string    { return "stub-model" }
func (stubEmbedder) Dimension() int   { return 2 }
func (stubEmbedder) Close() error     { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	manager, err := knowledge.New(knowledge.Config{DBPath: ":memory:", Embedder: stubEmbedder{}})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = manager.Close()
	})

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	return newServerWithManager(manager, cfg)
}

func toolRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestHandleIndexKnowledgeFile(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "persona.md")
	require.NoError(t, os.WriteFile(path, []byte("enjoys birdwatching at dawn"), 0o644))

	result, err := s.handleIndexKnowledge(context.Background(), toolRequest(map[string]interface{}{
		"path": path,
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, `"indexed": true`)
	assert.Contains(t, text, `"chunks": 1`)
}

func TestHandleIndexKnowledgeDirectory(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("beta"), 0o644))

	result, err := s.handleIndexKnowledge(context.Background(), toolRequest(map[string]interface{}{
		"path": dir,
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, `"files_indexed": 2`)
}

func TestHandleIndexKnowledgeValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleIndexKnowledge(ctx, toolRequest(map[string]interface{}{}))
	require.Error(t, err)
	assertMCPCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleIndexKnowledge(ctx, toolRequest(map[string]interface{}{"path": "relative/path.md"}))
	require.Error(t, err)
	assertMCPCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleIndexKnowledge(ctx, toolRequest(map[string]interface{}{"path": filepath.Join(t.TempDir(), "ghost.md")}))
	require.Error(t, err)
	assertMCPCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleSearchKnowledge(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "persona.md")
	content := "collects antique maps of coastal towns"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := s.handleIndexKnowledge(ctx, toolRequest(map[string]interface{}{"path": path}))
	require.NoError(t, err)

	// Querying the exact chunk text gives cosine 1.0 under the stub
	result, err := s.handleSearchKnowledge(ctx, toolRequest(map[string]interface{}{
		"query": content,
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "persona.md")
}

func TestHandleSearchKnowledgeValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleSearchKnowledge(ctx, toolRequest(map[string]interface{}{}))
	require.Error(t, err)
	assertMCPCode(t, err, ErrorCodeEmptyQuery)

	_, err = s.handleSearchKnowledge(ctx, toolRequest(map[string]interface{}{
		"query":       "x",
		"max_results": float64(500),
	}))
	require.Error(t, err)
	assertMCPCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleGetStats(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleGetStats(context.Background(), toolRequest(map[string]interface{}{}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, `"file_count": 0`)
	assert.Contains(t, text, `"embedding_provider": "stub"`)
}

func TestHandleClearIndex(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleClearIndex(ctx, toolRequest(map[string]interface{}{}))
	require.Error(t, err)
	assertMCPCode(t, err, ErrorCodeInvalidParams)

	result, err := s.handleClearIndex(ctx, toolRequest(map[string]interface{}{"confirm": true}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), `"cleared": true`)
}

func assertMCPCode(t *testing.T, err error, code int) {
	t.Helper()
	mcpErr, ok := err.(*MCPError)
	require.True(t, ok, "expected *MCPError, got %T", err)
	assert.Equal(t, code, mcpErr.Code)
}
