// Package indexer drives the ingestion pipeline: read a file, hash it,
// chunk it, embed the chunks, and atomically replace the file's rows in
// storage.
//
// Indexing is incremental. Each file record keeps the SHA-256 of its last
// indexed content; a file whose hash is unchanged is skipped without any
// embedding calls. Within a changed file, the persistent embedding cache
// is consulted per chunk, so only genuinely new text reaches the provider.
//
// Directory sweeps run files through a bounded worker pool and are
// mutually exclusive: a second sweep started while one is running returns
// ErrSweepInProgress.
package indexer
