package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"kbindex/internal/indexer"
	"kbindex/internal/knowledge"
	"kbindex/internal/searcher"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32001 // Another directory sweep is already running
	ErrorCodeEmptyQuery         = -32002 // Query parameter is empty
)

// handleIndexKnowledge handles the index_knowledge tool invocation
func (s *Server) handleIndexKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if !filepath.IsAbs(path) {
		return nil, newMCPError(ErrorCodeInvalidParams, "path must be absolute", map[string]interface{}{
			"param": "path",
			"value": path,
		})
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "path is not accessible", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	force := getBoolDefault(args, "force", false)
	pattern := getStringDefault(args, "pattern", s.cfg.Index.FilePattern)
	opts := indexer.Options{
		Force:         force,
		MaxTokens:     s.cfg.Chunker.MaxTokens,
		OverlapTokens: s.cfg.Chunker.OverlapTokens,
		Workers:       s.cfg.Index.Workers,
	}

	if !info.IsDir() {
		result, err := s.manager.IndexFile(ctx, path, opts)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"indexed": !result.Skipped,
			"skipped": result.Skipped,
			"chunks":  result.Chunks,
			"path":    result.Path,
		})), nil
	}

	result, err := s.manager.IndexDirectory(ctx, path, pattern, opts)
	if err == indexer.ErrSweepInProgress {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "another indexing operation is already running", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":        true,
		"files_indexed":  result.FilesIndexed,
		"files_skipped":  result.FilesSkipped,
		"files_failed":   result.FilesFailed,
		"chunks_created": result.ChunksCreated,
		"duration_ms":    result.Duration.Milliseconds(),
	}
	if len(result.Failures) > 0 {
		failures := result.Failures
		if len(failures) > 5 {
			failures = failures[:5]
			response["failure_count"] = len(result.Failures)
		}
		messages := make([]string, len(failures))
		for i, f := range failures {
			messages[i] = fmt.Sprintf("%s: %s", f.Path, f.Err)
		}
		response["failures"] = messages
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchKnowledge handles the search_knowledge tool invocation
func (s *Server) handleSearchKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	maxResults := getIntDefault(args, "max_results", s.cfg.Search.MaxResults)
	if maxResults < 1 || maxResults > 50 {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_results must be between 1 and 50", map[string]interface{}{
			"param": "max_results",
			"value": maxResults,
		})
	}

	minScore := getFloatDefault(args, "min_score", s.cfg.Search.MinScore)

	results, err := s.manager.Search(ctx, query, searcher.Options{
		MaxResults:   maxResults,
		MinScore:     minScore,
		VectorWeight: s.cfg.Search.VectorWeight,
		TextWeight:   s.cfg.Search.TextWeight,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(knowledge.FormatResults(results)), nil
}

// handleGetStats handles the get_stats tool invocation
func (s *Server) handleGetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.manager.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get stats", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"file_count":         stats.FileCount,
		"chunk_count":        stats.ChunkCount,
		"embedding_provider": stats.EmbeddingProvider,
		"embedding_model":    stats.EmbeddingModel,
	})), nil
}

// handleClearIndex handles the clear_index tool invocation
func (s *Server) handleClearIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	if confirmed, _ := args["confirm"].(bool); !confirmed {
		return nil, newMCPError(ErrorCodeInvalidParams, "confirm must be true to clear the index", map[string]interface{}{
			"param": "confirm",
		})
	}

	if err := s.manager.Clear(ctx); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to clear index", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"cleared": true,
	})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a float parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
