package index

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"lexcheck/internal/cache"
	"lexcheck/internal/model"
)

// SegmentLoader supplies an act's ordered text segments on demand
// (the upstream document/OCR pipeline, or a store-backed loader).
type SegmentLoader func() ([]model.Segment, error)

// Store owns the lifecycle of act indexes: get-or-build, cached reuse,
// and explicit invalidation. Rebuilds are never observed half-built by
// readers; the live reference is swapped only after a full build.
type Store struct {
	cache cache.Cache
	ttl   time.Duration

	mu   sync.Mutex
	live map[string]*SectionIndex // actID -> current index
}

// NewStore creates an index store over the given cache tier(s).
func NewStore(c cache.Cache, ttl time.Duration) *Store {
	return &Store{
		cache: c,
		ttl:   ttl,
		live:  make(map[string]*SectionIndex),
	}
}

// GetOrBuild returns the current index for the act, building it from
// the loader when no index with a matching fingerprint exists.
func (s *Store) GetOrBuild(actID, fingerprint string, load SegmentLoader) (*SectionIndex, error) {
	s.mu.Lock()
	if ix, ok := s.live[actID]; ok && (fingerprint == "" || ix.Fingerprint == fingerprint) {
		s.mu.Unlock()
		return ix, nil
	}
	s.mu.Unlock()

	if s.cache != nil && fingerprint != "" {
		if data, ok := s.cache.Get(cache.IndexKey(actID, fingerprint)); ok {
			var ix SectionIndex
			if err := json.Unmarshal(data, &ix); err == nil {
				s.swap(actID, &ix)
				return &ix, nil
			}
			// Corrupt cache entry: fall through to a rebuild.
			_ = s.cache.Delete(cache.IndexKey(actID, fingerprint))
		}
	}

	segments, err := load()
	if err != nil {
		return nil, fmt.Errorf("load act segments: %w", err)
	}
	ix := Build(actID, segments)

	if s.cache != nil {
		if data, err := json.Marshal(ix); err == nil {
			_ = s.cache.Set(cache.IndexKey(actID, ix.Fingerprint), data, s.ttl)
		}
	}
	s.swap(actID, ix)
	return ix, nil
}

// Invalidate drops the live index for an act; the next GetOrBuild
// rebuilds from source. Indexes are rebuilt whole, never patched.
func (s *Store) Invalidate(actID, fingerprint string) {
	s.mu.Lock()
	delete(s.live, actID)
	s.mu.Unlock()
	if s.cache != nil && fingerprint != "" {
		_ = s.cache.Delete(cache.IndexKey(actID, fingerprint))
	}
}

func (s *Store) swap(actID string, ix *SectionIndex) {
	s.mu.Lock()
	s.live[actID] = ix
	s.mu.Unlock()
}
