package searcher

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"kbindex/internal/embedder"
	"kbindex/internal/storage"
	"kbindex/pkg/types"
)

const (
	// DefaultMaxResults is the number of results returned when unspecified
	DefaultMaxResults = 6

	// DefaultMinScore filters out weak composite matches
	DefaultMinScore = 0.35

	// DefaultVectorWeight and DefaultTextWeight blend the two phases
	DefaultVectorWeight = 0.7
	DefaultTextWeight   = 0.3

	// candidateMultiplier oversizes each phase's candidate pool so the
	// merged ranking has enough material to fill max results after the
	// score threshold is applied.
	candidateMultiplier = 4
)

// Options configures a search
type Options struct {
	MaxResults int

	// MinScore filters out weak composite matches. Zero means the
	// default; negative disables the threshold entirely.
	MinScore float64

	VectorWeight float64
	TextWeight   float64
}

// withDefaults fills zero-valued fields
func (o Options) withDefaults() Options {
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.MinScore < 0 {
		o.MinScore = 0
	} else if o.MinScore == 0 {
		o.MinScore = DefaultMinScore
	}
	if o.VectorWeight == 0 && o.TextWeight == 0 {
		o.VectorWeight = DefaultVectorWeight
		o.TextWeight = DefaultTextWeight
	}
	return o
}

// Searcher runs hybrid semantic + lexical queries over the index
type Searcher struct {
	store    storage.Store
	embedder embedder.Embedder
}

// New creates a Searcher
func New(store storage.Store, emb embedder.Embedder) *Searcher {
	return &Searcher{store: store, embedder: emb}
}

// Search runs both retrieval phases concurrently and fuses their scores.
// The vector phase embeds the query and ranks all chunks for the current
// model by cosine similarity; the text phase runs a conjunctive FTS5 query.
// A chunk found by both phases gets a composite of both scores; a chunk
// found by one phase scores zero on the other.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]types.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	opts = opts.withDefaults()

	model := s.embedder.Model()
	candidates := opts.MaxResults * candidateMultiplier

	var vectorHits []vectorHit
	var textHits []storage.TextResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.vectorPhase(gctx, query, model, candidates)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		vectorHits = hits
		return nil
	})
	g.Go(func() error {
		match := buildMatchQuery(query)
		hits, err := s.store.SearchText(gctx, match, model, candidates)
		if err != nil {
			return fmt.Errorf("text search: %w", err)
		}
		textHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.merge(ctx, vectorHits, textHits, opts)
}

// vectorHit pairs a chunk with its cosine similarity to the query
type vectorHit struct {
	chunk *storage.Chunk
	score float64
}

// vectorPhase embeds the query and scans every chunk for the model,
// keeping the top candidates by cosine similarity.
func (s *Searcher) vectorPhase(ctx context.Context, query, model string, candidates int) ([]vectorHit, error) {
	resp, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, err
	}
	queryVec := resp.Vector

	chunks, err := s.store.ChunksByModel(ctx, model)
	if err != nil {
		return nil, err
	}

	hits := make([]vectorHit, 0, len(chunks))
	for _, chunk := range chunks {
		hits = append(hits, vectorHit{
			chunk: chunk,
			score: CosineSimilarity(queryVec, chunk.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].chunk.ID < hits[j].chunk.ID
	})
	if len(hits) > candidates {
		hits = hits[:candidates]
	}
	return hits, nil
}

// merge fuses the two candidate pools into a composite ranking.
func (s *Searcher) merge(ctx context.Context, vectorHits []vectorHit, textHits []storage.TextResult, opts Options) ([]types.SearchResult, error) {
	type candidate struct {
		chunk       *storage.Chunk
		vectorScore *float64
		textScore   *float64
	}
	merged := make(map[string]*candidate)

	for _, hit := range vectorHits {
		score := hit.score
		merged[hit.chunk.ID] = &candidate{chunk: hit.chunk, vectorScore: &score}
	}

	// Text-only hits need their chunk rows loaded
	var missing []string
	for _, hit := range textHits {
		score := textScoreFromRank(hit.Rank)
		if c, ok := merged[hit.ID]; ok {
			c.textScore = &score
		} else {
			merged[hit.ID] = &candidate{textScore: &score}
			missing = append(missing, hit.ID)
		}
	}
	if len(missing) > 0 {
		chunks, err := s.store.GetChunksByIDs(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("load text-only candidates: %w", err)
		}
		for _, chunk := range chunks {
			if c, ok := merged[chunk.ID]; ok {
				c.chunk = chunk
			}
		}
	}

	var results []types.SearchResult
	for id, c := range merged {
		if c.chunk == nil {
			// FTS row with no backing chunk; skip rather than return a
			// result without text.
			continue
		}
		var vec, text float64
		if c.vectorScore != nil {
			vec = *c.vectorScore
		}
		if c.textScore != nil {
			text = *c.textScore
		}
		composite := opts.VectorWeight*vec + opts.TextWeight*text
		if composite < opts.MinScore {
			continue
		}
		results = append(results, types.SearchResult{
			ID:          id,
			Path:        c.chunk.Path,
			StartLine:   c.chunk.StartLine,
			EndLine:     c.chunk.EndLine,
			Text:        c.chunk.Text,
			Score:       composite,
			VectorScore: c.vectorScore,
			TextScore:   c.textScore,
		})
	}

	// Descending by composite, ascending chunk id on exact ties so the
	// ordering is deterministic across runs.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	return results, nil
}

// textScoreFromRank maps a raw bm25 rank (more negative is better) into
// (0, 1]: score = 1 / (1 + max(0, -rank)).
func textScoreFromRank(rank float64) float64 {
	neg := -rank
	if neg < 0 {
		neg = 0
	}
	return 1.0 / (1.0 + neg)
}

var termPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// buildMatchQuery converts free text into a conjunctive FTS5 MATCH
// expression. Each extracted term is double-quoted so FTS5 operators in
// the input are treated as literals. Returns "" when no terms survive.
func buildMatchQuery(query string) string {
	terms := termPattern.FindAllString(query, -1)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + strings.ReplaceAll(term, `"`, ``) + `"`
	}
	return strings.Join(quoted, " AND ")
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths and zero-norm inputs score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
