// Package storage persists the knowledge base index in a single SQLite
// database: file records for change detection, chunks with JSON-encoded
// embedding vectors, an FTS5 mirror of chunk text for lexical search, a
// cross-run embedding cache, and index-level metadata.
//
// Two drivers are supported behind build tags. The default pure Go driver
// (modernc.org/sqlite) needs no C toolchain and includes FTS5; building
// with -tags fts5 swaps in the CGO driver (mattn/go-sqlite3) for speed.
//
// Mutations funnel through a single writer: the connection pool is capped
// at one connection and an in-process mutex serializes write transactions,
// so concurrent indexing goroutines never trip over SQLITE_BUSY.
package storage
