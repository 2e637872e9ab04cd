package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB

	// writeMu serializes mutating operations. SQLite allows one writer at
	// a time; serializing in-process avoids SQLITE_BUSY churn when several
	// goroutines finish embedding at once.
	writeMu sync.Mutex
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore creates a new SQLite store instance, applying any pending
// migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// File operations

func (s *SQLiteStore) UpsertFile(ctx context.Context, file *FileRecord) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return upsertFile(ctx, s.db, file)
}

func upsertFile(ctx context.Context, q querier, file *FileRecord) error {
	query := `
		INSERT INTO files (path, hash, mtime, size)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			hash = excluded.hash,
			mtime = excluded.mtime,
			size = excluded.size
	`
	if _, err := q.ExecContext(ctx, query, file.Path, file.Hash, file.MTime, file.Size); err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetFile(ctx context.Context, path string) (*FileRecord, error) {
	query := `
		SELECT path, hash, mtime, size
		FROM files
		WHERE path = ?
	`
	var file FileRecord
	err := s.db.QueryRowContext(ctx, query, path).Scan(
		&file.Path, &file.Hash, &file.MTime, &file.Size,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *SQLiteStore) ListFiles(ctx context.Context) ([]*FileRecord, error) {
	query := `
		SELECT path, hash, mtime, size
		FROM files
		ORDER BY path
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var files []*FileRecord
	for rows.Next() {
		var file FileRecord
		if err := rows.Scan(&file.Path, &file.Hash, &file.MTime, &file.Size); err != nil {
			return nil, err
		}
		files = append(files, &file)
	}
	return files, rows.Err()
}

// Chunk operations

// ReplaceChunks atomically swaps a file's chunks. Readers either see the
// file's previous chunks or the new set, never a mix.
func (s *SQLiteStore) ReplaceChunks(ctx context.Context, file *FileRecord, chunks []*Chunk) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE path = ?", file.Path); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks_fts WHERE path = ?", file.Path); err != nil {
		return fmt.Errorf("failed to delete old fts rows: %w", err)
	}

	insertChunk := `
		INSERT INTO chunks (id, path, start_line, end_line, hash, model, text, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	insertFTS := `
		INSERT INTO chunks_fts (text, id, path, model, start_line, end_line)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	now := time.Now().Unix()
	for _, chunk := range chunks {
		if chunk.UpdatedAt == 0 {
			chunk.UpdatedAt = now
		}
		encoded, err := encodeVector(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding for chunk %s: %w", chunk.ID, err)
		}
		if _, err := tx.ExecContext(ctx, insertChunk,
			chunk.ID, chunk.Path, chunk.StartLine, chunk.EndLine,
			chunk.Hash, chunk.Model, chunk.Text, encoded, chunk.UpdatedAt); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
		if _, err := tx.ExecContext(ctx, insertFTS,
			chunk.Text, chunk.ID, chunk.Path, chunk.Model,
			chunk.StartLine, chunk.EndLine); err != nil {
			return fmt.Errorf("failed to insert fts row %s: %w", chunk.ID, err)
		}
	}

	if err := upsertFile(ctx, tx, file); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk replacement: %w", err)
	}
	return nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const chunkColumns = "id, path, start_line, end_line, hash, model, text, embedding, updated_at"

func scanChunks(rows *sql.Rows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		var chunk Chunk
		var encoded string
		if err := rows.Scan(&chunk.ID, &chunk.Path, &chunk.StartLine, &chunk.EndLine,
			&chunk.Hash, &chunk.Model, &chunk.Text, &encoded, &chunk.UpdatedAt); err != nil {
			return nil, err
		}
		vector, err := decodeVector(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding for chunk %s: %w", chunk.ID, err)
		}
		chunk.Embedding = vector
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) GetChunksByIDs(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf("SELECT %s FROM chunks WHERE id IN (%s)", chunkColumns, placeholders)

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return scanChunks(rows)
}

// ChunksByModel returns every chunk embedded with the given model, in
// stable id order. The vector search phase scans this set.
func (s *SQLiteStore) ChunksByModel(ctx context.Context, model string) ([]*Chunk, error) {
	query := fmt.Sprintf("SELECT %s FROM chunks WHERE model = ? ORDER BY id", chunkColumns)
	rows, err := s.db.QueryContext(ctx, query, model)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return scanChunks(rows)
}

// Search operations

// SearchText runs an FTS5 MATCH query, returning chunk ids with raw bm25
// ranks ordered best-first. A query FTS5 cannot parse yields no results.
func (s *SQLiteStore) SearchText(ctx context.Context, match, model string, limit int) ([]TextResult, error) {
	if match == "" || limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, bm25(chunks_fts) AS rank
		FROM chunks_fts
		WHERE chunks_fts MATCH ? AND model = ?
		ORDER BY rank
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, match, model, limit)
	if err != nil {
		if isFTSSyntaxError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("text search failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var results []TextResult
	for rows.Next() {
		var r TextResult
		if err := rows.Scan(&r.ID, &r.Rank); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// isFTSSyntaxError reports whether err came from FTS5 rejecting the MATCH
// expression itself, as opposed to a real database failure.
func isFTSSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5: syntax error") ||
		strings.Contains(msg, "malformed MATCH") ||
		strings.Contains(msg, "unterminated string")
}

// Embedding cache operations

func (s *SQLiteStore) GetCachedEmbedding(ctx context.Context, provider, model, textHash string) ([]float32, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx,
		"SELECT embedding FROM embedding_cache WHERE provider = ? AND model = ? AND text_hash = ?",
		provider, model, textHash).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeVector(encoded)
}

func (s *SQLiteStore) PutCachedEmbedding(ctx context.Context, provider, model, textHash string, vector []float32) error {
	encoded, err := encodeVector(vector)
	if err != nil {
		return fmt.Errorf("failed to encode cached embedding: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (provider, model, text_hash, embedding, dims, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, model, text_hash) DO UPDATE SET
			embedding = excluded.embedding,
			dims = excluded.dims,
			updated_at = excluded.updated_at
	`, provider, model, textHash, encoded, len(vector), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to cache embedding: %w", err)
	}
	return nil
}

// Meta operations

func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}

// Maintenance operations

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&stats.FileCount); err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&stats.ChunkCount); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	return &stats, nil
}

// Clear removes all indexed data. The embedding cache survives so that
// re-indexing after a clear does not re-pay API calls.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range []string{
		"DELETE FROM chunks_fts",
		"DELETE FROM chunks",
		"DELETE FROM files",
		"DELETE FROM meta",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	}

	return tx.Commit()
}
