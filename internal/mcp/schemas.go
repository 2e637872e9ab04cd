package mcp

import "github.com/mark3labs/mcp-go/mcp"

// indexKnowledgeTool defines the index_knowledge tool schema
func indexKnowledgeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_knowledge",
		Description: "Index a knowledge base file or directory to make it searchable",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a knowledge file or a directory of files",
				},
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Glob matched against file names when path is a directory",
					"default":     "*.md",
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-index files even when their content is unchanged",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchKnowledgeTool defines the search_knowledge tool schema
func searchKnowledgeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_knowledge",
		Description: "Search the knowledge base with hybrid semantic and keyword retrieval",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural-language search query",
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-50)",
					"default":     6,
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Minimum composite score for a result to be included; negative disables the threshold",
					"default":     0.35,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatsTool defines the get_stats tool schema
func getStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_stats",
		Description: "Report indexed file and chunk counts and the embedding backend in use",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// clearIndexTool defines the clear_index tool schema
func clearIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "clear_index",
		Description: "Remove all indexed files and chunks from the knowledge base",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"confirm": map[string]interface{}{
					"type":        "boolean",
					"description": "Must be true; guards against accidental invocation",
				},
			},
			Required: []string{"confirm"},
		},
	}
}
