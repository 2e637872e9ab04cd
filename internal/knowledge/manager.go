package knowledge

import (
	"context"
	"fmt"
	"strings"

	"kbindex/internal/embedder"
	"kbindex/internal/indexer"
	"kbindex/internal/searcher"
	"kbindex/internal/storage"
	"kbindex/pkg/types"
)

// Manager is the top-level facade over the knowledge base: one store, one
// embedding backend, and the indexing and search pipelines wired together.
type Manager struct {
	store    storage.Store
	embedder embedder.Embedder
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
}

// Config configures a Manager
type Config struct {
	// DBPath is the SQLite database location. ":memory:" works for tests.
	DBPath string

	// Embedder overrides provider construction entirely.
	Embedder embedder.Embedder

	// EmbedderConfig builds the backend when Embedder is nil. Its zero
	// value means environment-based provider selection.
	EmbedderConfig embedder.Config
}

// New creates a Manager, opening the database and building an embedding
// backend from EmbedderConfig unless one is supplied.
func New(cfg Config) (*Manager, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	emb := cfg.Embedder
	if emb == nil {
		var err error
		emb, err = embedder.New(cfg.EmbedderConfig)
		if err != nil {
			return nil, err
		}
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		_ = emb.Close()
		return nil, err
	}

	return &Manager{
		store:    store,
		embedder: emb,
		indexer:  indexer.New(store, emb),
		searcher: searcher.New(store, emb),
	}, nil
}

// IndexFile indexes a single file
func (m *Manager) IndexFile(ctx context.Context, path string, opts indexer.Options) (*indexer.FileResult, error) {
	return m.indexer.IndexFile(ctx, path, opts)
}

// IndexDirectory indexes every matching file under dir
func (m *Manager) IndexDirectory(ctx context.Context, dir, pattern string, opts indexer.Options) (*indexer.DirectoryResult, error) {
	return m.indexer.IndexDirectory(ctx, dir, pattern, opts)
}

// Search runs a hybrid query against the index
func (m *Manager) Search(ctx context.Context, query string, opts searcher.Options) ([]types.SearchResult, error) {
	return m.searcher.Search(ctx, query, opts)
}

// Stats reports index contents plus the embedding backend that built it.
// Provider and model come from index metadata when present, so stats stay
// accurate even if the process restarts with different credentials.
func (m *Manager) Stats(ctx context.Context) (*types.Stats, error) {
	stored, err := m.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	stats := &types.Stats{
		FileCount:         stored.FileCount,
		ChunkCount:        stored.ChunkCount,
		EmbeddingProvider: m.embedder.Provider(),
		EmbeddingModel:    m.embedder.Model(),
	}
	if provider, err := m.store.GetMeta(ctx, storage.MetaKeyProvider); err == nil {
		stats.EmbeddingProvider = provider
	}
	if model, err := m.store.GetMeta(ctx, storage.MetaKeyModel); err == nil {
		stats.EmbeddingModel = model
	}
	return stats, nil
}

// Clear removes all indexed files and chunks. The persistent embedding
// cache is kept so re-indexing stays cheap.
func (m *Manager) Clear(ctx context.Context) error {
	return m.store.Clear(ctx)
}

// Close releases the database and embedding backend
func (m *Manager) Close() error {
	embErr := m.embedder.Close()
	storeErr := m.store.Close()
	if storeErr != nil {
		return storeErr
	}
	return embErr
}

// FormatResults renders search results as a numbered context block suitable
// for injection into a model prompt.
func FormatResults(results []types.SearchResult) string {
	if len(results) == 0 {
		return "No matching knowledge found."
	}

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s (lines %d-%d, score %.2f)\n", i+1, r.Path, r.StartLine, r.EndLine, r.Score)
		sb.WriteString(strings.TrimSpace(r.Text))
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}
