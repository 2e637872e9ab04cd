// Package mcp exposes the knowledge base over the Model Context Protocol
// on stdio. Four tools are registered: index_knowledge, search_knowledge,
// get_stats, and clear_index.
package mcp
