// Package match resolves a requested section number against an act's
// section index.
package match

import (
	"context"
	"fmt"

	"lexcheck/internal/index"
	"lexcheck/internal/model"
	"lexcheck/internal/similarity"
)

// parentPenalty discounts confidence when a parent section stands in
// for a missing subsection.
const parentPenalty = 0.75

// Result is the outcome of resolving one section reference.
// Found=false is an ordinary outcome (section_not_found downstream),
// not an error.
type Result struct {
	Found      bool
	Boundary   index.SectionBoundary
	Confidence float64
	Provenance model.MatchProvenance
	// ParentOf is set on a parent-section fallback: the originally
	// requested key whose subsection could not be located.
	ParentOf string
}

// Matcher resolves section references. The searcher powers the
// semantic fallback; nil disables it (pattern tiers still apply).
type Matcher struct {
	searcher     similarity.Searcher
	topK         int
	floor        float64
	preferLatest bool
}

// New creates a matcher with the given tunables
func New(searcher similarity.Searcher, cfg model.MatchingConfig) *Matcher {
	return &Matcher{
		searcher:     searcher,
		topK:         cfg.TopK,
		floor:        cfg.FallbackFloor,
		preferLatest: cfg.Prefer != "first",
	}
}

// Find resolves a requested section against the index:
//
//  1. normalize the key exactly as the indexer does
//  2. exact lookup (latest boundary wins among amendments)
//  3. relaxed lookup, stripping subsection suffixes progressively
//  4. semantic fallback over the act's segments
//  5. NotFound
//
// An exact key hit never falls through to fuzzier tiers. Unparseable
// references travel the same pipeline as raw keys.
func (m *Matcher) Find(ctx context.Context, ix *index.SectionIndex, requested, actName string) (Result, error) {
	key := index.NormalizeKey(requested)

	if bs := ix.Lookup(key); len(bs) > 0 {
		b := m.pick(bs)
		return Result{Found: true, Boundary: b, Confidence: b.Confidence, Provenance: model.ProvenancePattern}, nil
	}

	for _, parent := range index.ParentKeys(key) {
		if bs := ix.Lookup(parent); len(bs) > 0 {
			b := m.pick(bs)
			return Result{
				Found:      true,
				Boundary:   b,
				Confidence: b.Confidence * parentPenalty,
				Provenance: model.ProvenanceParentFallback,
				ParentOf:   key,
			}, nil
		}
	}

	return m.semanticFallback(ctx, ix, requested, actName)
}

func (m *Matcher) pick(bs []index.SectionBoundary) index.SectionBoundary {
	if m.preferLatest {
		return bs[len(bs)-1]
	}
	return bs[0]
}

// semanticFallback retrieves the top-K segments closest in meaning to
// the section reference and synthesizes a reduced-confidence boundary
// from the best one.
func (m *Matcher) semanticFallback(ctx context.Context, ix *index.SectionIndex, requested, actName string) (Result, error) {
	if m.searcher == nil || len(ix.Segments) == 0 {
		return Result{}, nil
	}

	texts := make([]string, 0, len(ix.Segments))
	positions := make([]int, 0, len(ix.Segments))
	for i, seg := range ix.Segments {
		if seg.Text == "" {
			continue
		}
		texts = append(texts, seg.Text)
		positions = append(positions, i)
	}
	if len(texts) == 0 {
		return Result{}, nil
	}

	query := fmt.Sprintf("Section %s of %s", requested, actName)
	ranked, err := m.searcher.TopK(ctx, query, texts, m.topK)
	if err != nil {
		return Result{}, fmt.Errorf("semantic fallback: %w", err)
	}
	if len(ranked) == 0 || ranked[0].Score < m.floor {
		return Result{}, nil
	}

	best := ranked[0]
	pos := positions[best.Index]
	seg := ix.Segments[pos]
	boundary := index.SectionBoundary{
		Key:        index.NormalizeKey(requested),
		Start:      pos,
		End:        pos,
		PageStart:  seg.Page,
		PageEnd:    seg.Page,
		RegionIDs:  append([]string(nil), seg.RegionIDs...),
		Text:       seg.Text,
		Confidence: best.Score,
		Provenance: model.ProvenanceSemanticFallback,
	}
	return Result{
		Found:      true,
		Boundary:   boundary,
		Confidence: best.Score,
		Provenance: model.ProvenanceSemanticFallback,
	}, nil
}
