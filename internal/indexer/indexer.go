package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kbindex/internal/chunker"
	"kbindex/internal/embedder"
	"kbindex/internal/storage"
)

// ErrSweepInProgress is returned when a directory sweep is requested while
// another one is still running.
var ErrSweepInProgress = errors.New("directory indexing already in progress")

// DefaultFilePattern matches the knowledge base files indexed by default
const DefaultFilePattern = "*.md"

// Indexer coordinates the indexing pipeline: read -> chunk -> embed -> store
type Indexer struct {
	store    storage.Store
	embedder embedder.Embedder

	workers   int
	sweepLock IndexLock
}

// Options configures an indexing operation
type Options struct {
	// Force re-indexes files even when their content hash is unchanged
	Force bool

	// MaxTokens and OverlapTokens override the chunking budgets.
	// Zero means the chunker defaults; a negative OverlapTokens
	// requests no overlap at all.
	MaxTokens     int
	OverlapTokens int

	// FailFast aborts a directory sweep on the first file error instead
	// of skipping the file and continuing.
	FailFast bool

	// Workers bounds sweep concurrency (default: runtime.NumCPU())
	Workers int
}

// FileResult reports the outcome of indexing a single file
type FileResult struct {
	Path    string
	Chunks  int
	Skipped bool // Content hash unchanged, nothing re-embedded
}

// FileFailure records a file that could not be indexed during a sweep
type FileFailure struct {
	Path string
	Err  string
}

// DirectoryResult summarizes a directory sweep
type DirectoryResult struct {
	FilesIndexed  int
	FilesSkipped  int
	FilesFailed   int
	ChunksCreated int
	Duration      time.Duration
	Failures      []FileFailure
}

// New creates a new Indexer
func New(store storage.Store, emb embedder.Embedder) *Indexer {
	return &Indexer{
		store:    store,
		embedder: emb,
		workers:  runtime.NumCPU(),
	}
}

// IndexFile indexes one file. Unchanged files (same content hash) are
// skipped unless opts.Force is set. The file's previous chunks are
// atomically replaced, so a re-index can never leave a mix of old and new.
func (idx *Indexer) IndexFile(ctx context.Context, path string, opts Options) (*FileResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		// A missing file is a benign no-op, not a failure
		if errors.Is(err, fs.ErrNotExist) {
			return &FileResult{Path: path, Skipped: true}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	sum := sha256.Sum256(content)
	fileHash := hex.EncodeToString(sum[:])

	if !opts.Force {
		existing, err := idx.store.GetFile(ctx, path)
		if err != nil && err != storage.ErrNotFound {
			return nil, err
		}
		if existing != nil && existing.Hash == fileHash {
			return &FileResult{Path: path, Skipped: true}, nil
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = chunker.DefaultMaxTokens
	}
	overlapTokens := opts.OverlapTokens
	if overlapTokens < 0 {
		overlapTokens = 0
	} else if opts.OverlapTokens == 0 {
		overlapTokens = chunker.DefaultOverlapTokens
	}

	chunks := chunker.ChunkMarkdown(string(content), maxTokens, overlapTokens)
	if len(chunks) == 0 {
		// Nothing indexable, leave the store untouched
		return &FileResult{Path: path}, nil
	}

	stored, err := idx.embedChunks(ctx, path, chunks)
	if err != nil {
		return nil, err
	}

	file := &storage.FileRecord{
		Path:  path,
		Hash:  fileHash,
		MTime: info.ModTime().Unix(),
		Size:  int64(len(content)),
	}
	if err := idx.store.ReplaceChunks(ctx, file, stored); err != nil {
		return nil, fmt.Errorf("failed to store chunks for %s: %w", path, err)
	}

	// Record which backend produced the index so stats can report it even
	// when the process restarts with different credentials.
	_ = idx.store.SetMeta(ctx, storage.MetaKeyProvider, idx.embedder.Provider())
	_ = idx.store.SetMeta(ctx, storage.MetaKeyModel, idx.embedder.Model())

	return &FileResult{Path: path, Chunks: len(stored)}, nil
}

// embedChunks resolves embeddings for all chunks, consulting the persistent
// cache first and batching only the misses through the provider.
func (idx *Indexer) embedChunks(ctx context.Context, path string, chunks []chunker.Chunk) ([]*storage.Chunk, error) {
	provider := idx.embedder.Provider()
	model := idx.embedder.Model()

	stored := make([]*storage.Chunk, len(chunks))
	var missTexts []string
	var missIdx []int

	for i, chunk := range chunks {
		stored[i] = &storage.Chunk{
			ID:        DeriveChunkID(path, chunk.StartLine, chunk.EndLine, chunk.Hash, model),
			Path:      path,
			StartLine: chunk.StartLine,
			EndLine:   chunk.EndLine,
			Hash:      chunk.Hash,
			Model:     model,
			Text:      chunk.Text,
		}

		textHash := embedder.ComputeHash(chunk.Text)
		vector, err := idx.store.GetCachedEmbedding(ctx, provider, model, textHash)
		if err == nil {
			stored[i].Embedding = vector
			continue
		}
		if err != storage.ErrNotFound {
			return nil, err
		}
		missTexts = append(missTexts, chunk.Text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: missTexts})
		if err != nil {
			return nil, fmt.Errorf("failed to embed %s: %w", path, err)
		}
		if len(resp.Embeddings) != len(missTexts) {
			return nil, fmt.Errorf("embedding count mismatch for %s: got %d, want %d",
				path, len(resp.Embeddings), len(missTexts))
		}
		for j, emb := range resp.Embeddings {
			i := missIdx[j]
			stored[i].Embedding = emb.Vector
			textHash := embedder.ComputeHash(missTexts[j])
			if err := idx.store.PutCachedEmbedding(ctx, provider, model, textHash, emb.Vector); err != nil {
				return nil, err
			}
		}
	}

	return stored, nil
}

// IndexDirectory walks dir recursively and indexes every file whose base
// name matches pattern, using a bounded worker pool. Only one sweep may run
// at a time. A missing directory is a benign no-op, unreadable entries are
// skipped, and failed files are skipped and reported unless opts.FailFast
// is set.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir, pattern string, opts Options) (*DirectoryResult, error) {
	if !idx.sweepLock.TryAcquire() {
		return nil, ErrSweepInProgress
	}
	defer idx.sweepLock.Release()

	if pattern == "" {
		pattern = DefaultFilePattern
	}

	files, err := discoverFiles(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files in %s: %w", dir, err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = idx.workers
	}

	start := time.Now()
	result := &DirectoryResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, path := range files {
		path := path
		g.Go(func() error {
			fileResult, err := idx.IndexFile(gctx, path, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if opts.FailFast {
					return fmt.Errorf("failed to index %s: %w", path, err)
				}
				result.FilesFailed++
				result.Failures = append(result.Failures, FileFailure{Path: path, Err: err.Error()})
				return nil
			}
			if fileResult.Skipped {
				result.FilesSkipped++
			} else {
				result.FilesIndexed++
				result.ChunksCreated += fileResult.Chunks
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

// discoverFiles walks dir collecting files whose base name matches pattern,
// in sorted (WalkDir) order. A missing root yields an empty list; unreadable
// entries are skipped rather than aborting the walk.
func discoverFiles(dir, pattern string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			// Hidden directories hold editor state, not knowledge
			if name := d.Name(); name != "." && len(name) > 1 && name[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		matched, err := filepath.Match(pattern, d.Name())
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if matched {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// DeriveChunkID builds the content-addressed chunk id: the first 16 hex
// characters of SHA-256 over "path:start:end:chunkhash:model". Any change
// to position, content, or embedding model yields a new id.
func DeriveChunkID(path string, startLine, endLine int, chunkHash, model string) string {
	key := fmt.Sprintf("%s:%d:%d:%s:%s", path, startLine, endLine, chunkHash, model)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}
