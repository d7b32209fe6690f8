package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"

	"lexcheck/internal/model"
)

// ErrUnavailable indicates the external similarity service failed or
// is not configured; callers treat it as a transient infrastructure
// fault, never as a verification outcome.
var ErrUnavailable = errors.New("similarity provider unavailable")

// Provider generates vector embeddings for legal text
type Provider interface {
	// Name returns the provider name
	Name() string

	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// IsAvailable checks that the provider is configured and reachable
	IsAvailable(ctx context.Context) bool
}

// Comparer is the single capability the matcher and comparator depend
// on: score semantic agreement of two texts in [0, 1]. Substitutable
// with a deterministic fake in tests.
type Comparer interface {
	Compare(ctx context.Context, a, b string) (float64, error)
}

// Searcher ranks candidate texts against a query, used by the
// matcher's semantic fallback.
type Searcher interface {
	TopK(ctx context.Context, query string, candidates []string, k int) ([]Candidate, error)
}

// Candidate is one ranked semantic-search result
type Candidate struct {
	Index int
	Score float64
}

// Engine implements Comparer and Searcher over a Provider's embeddings.
type Engine struct {
	provider Provider
}

// NewEngine wraps a provider. A nil provider yields a nil engine; the
// callers fall back to lexical-only behavior.
func NewEngine(p Provider) *Engine {
	if p == nil {
		return nil
	}
	return &Engine{provider: p}
}

// Compare embeds both texts and returns their cosine similarity
// rescaled to [0, 1].
func (e *Engine) Compare(ctx context.Context, a, b string) (float64, error) {
	vecs, err := e.provider.EmbedBatch(ctx, []string{a, b})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(vecs) != 2 {
		return 0, fmt.Errorf("%w: expected 2 embeddings, got %d", ErrUnavailable, len(vecs))
	}
	cos, err := Cosine(vecs[0], vecs[1])
	if err != nil {
		return 0, err
	}
	return (cos + 1) / 2, nil
}

// TopK embeds the query and candidates and returns the k best
// candidates by cosine similarity, best first.
func (e *Engine) TopK(ctx context.Context, query string, candidates []string, k int) ([]Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	all := append([]string{query}, candidates...)
	vecs, err := e.provider.EmbedBatch(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(vecs) != len(all) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrUnavailable, len(all), len(vecs))
	}
	ranked := make([]Candidate, 0, len(candidates))
	for i, v := range vecs[1:] {
		cos, err := Cosine(vecs[0], v)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, Candidate{Index: i, Score: (cos + 1) / 2})
	}
	sortCandidates(ranked)
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

func sortCandidates(cs []Candidate) {
	// Insertion sort: candidate sets are small (bounded by top-K and
	// index size).
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j].Score > cs[j-1].Score; j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

// Cosine calculates cosine similarity between two vectors, in [-1, 1].
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// NewProvider creates a provider from configuration. An empty provider
// name disables semantic comparison (lexical tiers still apply).
func NewProvider(cfg model.SimilarityConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg)
	case "gemini", "genai":
		return NewGeminiProvider(cfg)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown similarity provider: %s (supported: openai, gemini)", cfg.Provider)
	}
}
