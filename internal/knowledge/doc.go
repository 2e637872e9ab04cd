// Package knowledge exposes the persona knowledge base as a single facade:
// index files or directories, run hybrid searches, report stats, and clear
// the index. The MCP server and CLI both sit on top of this package.
package knowledge
