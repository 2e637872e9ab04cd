package storage

import (
	"context"
)

// Store defines the interface for persisting and querying indexed knowledge
// base data
type Store interface {
	// File operations
	UpsertFile(ctx context.Context, file *FileRecord) error
	GetFile(ctx context.Context, path string) (*FileRecord, error)
	ListFiles(ctx context.Context) ([]*FileRecord, error)

	// Chunk operations. ReplaceChunks atomically swaps a file's chunks:
	// old rows (and their FTS entries) are deleted, new rows inserted, and
	// the file record upserted in a single transaction.
	ReplaceChunks(ctx context.Context, file *FileRecord, chunks []*Chunk) error
	GetChunksByIDs(ctx context.Context, ids []string) ([]*Chunk, error)
	ChunksByModel(ctx context.Context, model string) ([]*Chunk, error)

	// Search operations. SearchText runs an FTS5 MATCH query; a query the
	// FTS engine cannot parse yields no results rather than an error.
	SearchText(ctx context.Context, match, model string, limit int) ([]TextResult, error)

	// Embedding cache operations, keyed by (provider, model, text hash).
	GetCachedEmbedding(ctx context.Context, provider, model, textHash string) ([]float32, error)
	PutCachedEmbedding(ctx context.Context, provider, model, textHash string, vector []float32) error

	// Meta operations
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	// Maintenance operations
	Stats(ctx context.Context) (*Stats, error)
	Clear(ctx context.Context) error
	Close() error
}

// FileRecord tracks an indexed knowledge base file
type FileRecord struct {
	Path  string
	Hash  string // SHA-256 of file content, hex
	MTime int64  // Unix seconds
	Size  int64  // Bytes
}

// Chunk is a stored document slice with its embedding
type Chunk struct {
	ID        string // Content-addressed: sha256("path:start:end:hash:model")[:16]
	Path      string
	StartLine int
	EndLine   int
	Hash      string // Truncated SHA-256 of Text
	Model     string // Embedding model that produced Embedding
	Text      string
	Embedding []float32
	UpdatedAt int64 // Unix seconds
}

// TextResult is a row from full-text search. Rank is the raw bm25() value
// from SQLite, where more negative means more relevant.
type TextResult struct {
	ID   string
	Rank float64
}

// Stats summarizes index contents
type Stats struct {
	FileCount  int
	ChunkCount int
}

// Well-known meta keys
const (
	MetaKeyProvider = "embedding_provider"
	MetaKeyModel    = "embedding_model"
)
