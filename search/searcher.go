package search

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/lodestone-ai/corpusflow/ai"
	"github.com/lodestone-ai/corpusflow/core"
	"github.com/lodestone-ai/corpusflow/storage"
)

// verbatimBoost is added to the score of chunks containing every query word.
const verbatimBoost = 0.15

// Searcher provides semantic search over ingested document chunks.
type Searcher struct {
	vectors  storage.VectorRepository
	embedder ai.Embedder
	minScore float32
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinScore drops matches scoring below the threshold.
// Default is 0 (no threshold).
func WithMinScore(minScore float32) Option {
	return func(s *Searcher) error {
		s.minScore = minScore
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	vectors storage.VectorRepository,
	embedder ai.Embedder,
	opts ...Option,
) (*Searcher, error) {
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		vectors:  vectors,
		embedder: embedder,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Search returns the chunks most relevant to the query.
// Returns up to maxHits results, ranked by relevance score.
func (s *Searcher) Search(ctx context.Context, query string, maxHits int) ([]*core.ChunkMatch, error) {
	return s.SearchWithMonitor(ctx, query, maxHits, nil)
}

// SearchWithMonitor searches with monitoring. The monitor receives callbacks
// at each stage of the search process.
// Returns up to maxHits results, ranked by relevance score.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, maxHits int, monitor SearchMonitor) ([]*core.ChunkMatch, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query)

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	// Over-fetch so the verbatim boost can promote hits from below the cut.
	matches, err := s.vectors.FindSimilar(ctx, normalize(embedding), maxHits*2)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(matches)

	results := make([]*core.ChunkMatch, 0, len(matches))
	for _, match := range matches {
		if match.Score < s.minScore {
			continue
		}
		if containsAllQueryWords(match.Chunk.Text, query) {
			match.Score += verbatimBoost
			monitor.VerbatimBoost(match.Chunk)
		}
		results = append(results, match)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > maxHits {
		results = results[:maxHits]
	}

	monitor.Finish(results)
	s.logger.Debug("search complete", "query", query, "hits", len(results))
	return results, nil
}

// normalize scales the query vector to unit length so dot products against
// the (normalized) stored vectors behave as cosine similarity.
func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sumSquares))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}
