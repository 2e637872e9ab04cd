package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"kbindex/internal/config"
	"kbindex/internal/embedder"
	"kbindex/internal/knowledge"
)

const (
	// ServerName is the MCP server name
	ServerName = "kbindex"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	manager *knowledge.Manager
	cfg     *config.AppConfig
}

// NewServer creates a new MCP server instance backed by the configured
// knowledge base.
func NewServer(cfg *config.AppConfig) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	manager, err := knowledge.New(knowledge.Config{
		DBPath: cfg.DBPath,
		EmbedderConfig: embedder.Config{
			Provider:  cfg.Embedder.Provider,
			Model:     cfg.Embedder.Model,
			BaseURL:   cfg.Embedder.BaseURL,
			CacheSize: cfg.Embedder.CacheSize,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize knowledge base: %w", err)
	}

	return newServerWithManager(manager, cfg), nil
}

// newServerWithManager wires tools onto an existing manager. Split out so
// tests can supply a manager with a fake embedding backend.
func newServerWithManager(manager *knowledge.Manager, cfg *config.AppConfig) *Server {
	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion),
		manager: manager,
		cfg:     cfg,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.manager.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexKnowledgeTool(), s.handleIndexKnowledge)
	s.mcp.AddTool(searchKnowledgeTool(), s.handleSearchKnowledge)
	s.mcp.AddTool(getStatsTool(), s.handleGetStats)
	s.mcp.AddTool(clearIndexTool(), s.handleClearIndex)
}
