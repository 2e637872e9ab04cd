package types

// SearchResult is one ranked passage returned by a hybrid search.
//
// Score is the weighted composite. VectorScore and TextScore are the
// per-phase signals; either is nil when the chunk was not found by that
// phase (the composite then treats it as zero).
type SearchResult struct {
	ID          string
	Path        string
	StartLine   int
	EndLine     int
	Text        string
	Score       float64
	VectorScore *float64
	TextScore   *float64
}

// Stats summarizes the state of an index.
type Stats struct {
	FileCount         int
	ChunkCount        int
	EmbeddingProvider string
	EmbeddingModel    string
}
