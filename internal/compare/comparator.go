// Package compare classifies how quoted text in a citing document
// relates to the actual statutory text it cites.
package compare

import (
	"context"
	"fmt"
	"math"

	"lexcheck/internal/model"
	"lexcheck/internal/similarity"
)

// Tolerated token-mismatch ratio for the exact tier; absorbs minor OCR
// noise without admitting real wording changes.
const exactNoiseTolerance = 0.05

// Comparison is the result of comparing citation text with section text
type Comparison struct {
	Score       int               `json:"similarity_score"` // 0-100
	MatchType   model.MatchType   `json:"match_type"`
	Differences []model.Difference `json:"differences,omitempty"`
}

// Comparator classifies citation/section text agreement. With a nil
// engine the semantic tiers degrade to lexical token overlap.
type Comparator struct {
	engine     similarity.Comparer
	paraphrase float64
	semantic   float64
}

// New creates a comparator with the given thresholds
func New(engine similarity.Comparer, cfg model.MatchingConfig) *Comparator {
	return &Comparator{
		engine:     engine,
		paraphrase: cfg.ParaphraseThreshold,
		semantic:   cfg.SemanticThreshold,
	}
}

// Compare evaluates the tiers in order; the first match wins.
//
//	exact      (100):   normalized substring either direction
//	paraphrase (85-99): semantic similarity above the paraphrase threshold
//	semantic   (50-84): partial agreement, manual review advised
//	mismatch   (<50):   meaning differs, or extracted values disagree
//
// Differing parseable amounts or dates force mismatch before any
// semantic scoring.
func (c *Comparator) Compare(ctx context.Context, citationText, sectionText string) (Comparison, error) {
	citTokens := tokenize(citationText)
	actTokens := tokenize(sectionText)

	if containsTokens(actTokens, citTokens, exactNoiseTolerance) ||
		containsTokens(citTokens, actTokens, exactNoiseTolerance) {
		return Comparison{Score: 100, MatchType: model.MatchExact}, nil
	}

	if !valuesAgree(extractAmounts(citationText), extractAmounts(sectionText)) ||
		!valuesAgree(extractDates(citationText), extractDates(sectionText)) {
		return Comparison{
			Score:       scoreBelow(c.semantic),
			MatchType:   model.MatchMismatch,
			Differences: extractDifferences(citationText, sectionText),
		}, nil
	}

	sim, err := c.similarityScore(ctx, citationText, sectionText, citTokens, actTokens)
	if err != nil {
		return Comparison{}, err
	}

	switch {
	case sim >= c.paraphrase:
		return Comparison{Score: clamp(round(sim*100), 85, 99), MatchType: model.MatchParaphrase}, nil
	case sim >= c.semantic:
		return Comparison{Score: clamp(round(sim*100), 50, 84), MatchType: model.MatchSemantic}, nil
	default:
		return Comparison{
			Score:       clamp(round(sim*100), 0, scoreBelow(c.semantic)),
			MatchType:   model.MatchMismatch,
			Differences: extractDifferences(citationText, sectionText),
		}, nil
	}
}

func (c *Comparator) similarityScore(ctx context.Context, a, b string, aTok, bTok []string) (float64, error) {
	if c.engine == nil {
		return jaccard(aTok, bTok), nil
	}
	sim, err := c.engine.Compare(ctx, a, b)
	if err != nil {
		return 0, fmt.Errorf("semantic comparison: %w", err)
	}
	return sim, nil
}

func scoreBelow(threshold float64) int {
	return round(threshold*100) - 1
}

func round(f float64) int { return int(math.Round(f)) }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
