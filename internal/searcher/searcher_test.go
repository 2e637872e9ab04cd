package searcher

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbindex/internal/embedder"
	"kbindex/internal/storage"
)

// fakeEmbedder returns canned vectors keyed by exact text.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) GenerateEmbedding(_ context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	vec, ok := f.vectors[req.Text]
	if !ok {
		vec = []float32{0, 0}
	}
	return &embedder.Embedding{Vector: vec, Dimension: len(vec), Provider: "fake", Model: f.Model()}, nil
}

func (f *fakeEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	out := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := f.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: out, Provider: "fake", Model: f.Model()}, nil
}

func (f *fakeEmbedder) Provider() string { return "fake" }
func (f *fakeEmbedder) Model() string    { return "fake-model" }
func (f *fakeEmbedder) Dimension() int   { return 2 }
func (f *fakeEmbedder) Close() error     { return nil }

func seedChunk(t *testing.T, store storage.Store, id, path, text string, emb []float32) {
	t.Helper()
	file := &storage.FileRecord{Path: path, Hash: "h-" + id, MTime: 1}
	err := store.ReplaceChunks(context.Background(), file, []*storage.Chunk{{
		ID: id, Path: path, StartLine: 0, EndLine: 3,
		Hash: "ch-" + id, Model: "fake-model", Text: text, Embedding: emb,
	}})
	require.NoError(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{5, 0}), 1e-9, "scale invariant")
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}), "zero norm")
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}), "length mismatch")
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestBuildMatchQuery(t *testing.T) {
	assert.Equal(t, `"morning" AND "coffee"`, buildMatchQuery("morning coffee"))
	assert.Equal(t, `"rock_climbing"`, buildMatchQuery("rock_climbing!"))
	assert.Equal(t, `"喝" AND "咖啡"`, buildMatchQuery("喝 咖啡"))
	assert.Equal(t, "", buildMatchQuery("!!! ..."))
	// FTS5 operators in the input become quoted literals
	assert.Equal(t, `"a" AND "OR" AND "b"`, buildMatchQuery(`a OR b`))
}

func TestTextScoreFromRank(t *testing.T) {
	assert.InDelta(t, 0.25, textScoreFromRank(-3), 1e-9)
	assert.InDelta(t, 1.0, textScoreFromRank(0), 1e-9)
	assert.InDelta(t, 1.0, textScoreFromRank(2), 1e-9, "positive rank clamps to max score")
}

func newHybridFixture(t *testing.T) (*Searcher, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	emb := &fakeEmbedder{vectors: map[string][]float32{
		"coffee": {1, 0},
	}}
	return New(store, emb), store
}

func TestSearchHybridRanking(t *testing.T) {
	s, store := newHybridFixture(t)
	ctx := context.Background()

	// Strong semantic and lexical match
	seedChunk(t, store, "both", "alice.md", "she drinks coffee every morning", []float32{1, 0})
	// Semantic-only match (no query term in text)
	seedChunk(t, store, "vec-only", "bob.md", "an espresso ritual at dawn", []float32{0.8, 0.6})
	// Lexical-only match with an orthogonal vector: composite caps at 0.3
	seedChunk(t, store, "text-only", "carol.md", "coffee coffee coffee", []float32{0, 1})
	// No match at all
	seedChunk(t, store, "neither", "dave.md", "tax forms and receipts", []float32{-1, 0})

	results, err := s.Search(ctx, "coffee", Options{})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "both", results[0].ID)
	assert.Equal(t, "vec-only", results[1].ID)

	// "both": 0.7*1.0 + 0.3*textScore, so strictly above the vector weight
	assert.Greater(t, results[0].Score, 0.7)
	require.NotNil(t, results[0].VectorScore)
	assert.InDelta(t, 1.0, *results[0].VectorScore, 1e-6)
	require.NotNil(t, results[0].TextScore)
	assert.Greater(t, *results[0].TextScore, 0.0)

	// "vec-only": 0.7*0.8 = 0.56 up to float32 conversion noise
	assert.InDelta(t, 0.56, results[1].Score, 1e-6)
	assert.Nil(t, results[1].TextScore)

	// Result fields carry the chunk through
	assert.Equal(t, "alice.md", results[0].Path)
	assert.Equal(t, "she drinks coffee every morning", results[0].Text)
	assert.Equal(t, 0, results[0].StartLine)
	assert.Equal(t, 3, results[0].EndLine)
}

func TestSearchThresholdFiltersWeakMatches(t *testing.T) {
	s, store := newHybridFixture(t)

	// cosine 0.4 gives composite 0.28 < 0.35
	norm := float32(math.Sqrt(1 - 0.4*0.4))
	seedChunk(t, store, "weak", "weak.md", "unrelated musings", []float32{0.4, norm})

	results, err := s.Search(context.Background(), "coffee", Options{})
	require.NoError(t, err)
	assert.Empty(t, results)

	// Lowering the threshold lets it through
	results, err = s.Search(context.Background(), "coffee", Options{MinScore: 0.1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "weak", results[0].ID)

	// Negative disables the threshold entirely
	results, err = s.Search(context.Background(), "coffee", Options{MinScore: -1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "weak", results[0].ID)
}

func TestSearchMaxResults(t *testing.T) {
	s, store := newHybridFixture(t)

	for _, id := range []string{"a", "b", "c", "d"} {
		seedChunk(t, store, id, id+".md", "text "+id, []float32{1, 0})
	}

	results, err := s.Search(context.Background(), "coffee", Options{MaxResults: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// All four tie at cosine 1.0 with no text hits: id ascending breaks it
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)

	// A perfect vector match with no text hit scores exactly the vector weight
	assert.InDelta(t, 0.7, results[0].Score, 1e-6)
}

func TestSearchEmptyQuery(t *testing.T) {
	s, _ := newHybridFixture(t)

	_, err := s.Search(context.Background(), "   ", Options{})
	assert.Error(t, err)
}

func TestSearchEmptyIndex(t *testing.T) {
	s, _ := newHybridFixture(t)

	results, err := s.Search(context.Background(), "coffee", Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchCustomWeights(t *testing.T) {
	s, store := newHybridFixture(t)

	seedChunk(t, store, "lex", "lex.md", "coffee", []float32{0, 1})

	// With all weight on the text phase the lexical-only chunk surfaces
	results, err := s.Search(context.Background(), "coffee", Options{TextWeight: 1.0, VectorWeight: 0.0001, MinScore: 0.35})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "lex", results[0].ID)
}
