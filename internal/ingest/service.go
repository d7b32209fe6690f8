package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lexcheck/internal/index"
	"lexcheck/internal/model"
	"lexcheck/internal/store"
)

// Service registers acts and their source text. A segment change marks
// the act stale; the verifier rebuilds its index on next use.
type Service struct {
	repo    store.Repo
	fetcher *Fetcher
	log     zerolog.Logger
}

// NewService creates an ingest service
func NewService(repo store.Repo, fetcher *Fetcher, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		fetcher: fetcher,
		log:     log.With().Str("component", "ingest").Logger(),
	}
}

// IngestSegments stores (or refreshes) an act's source segments.
func (s *Service) IngestSegments(ctx context.Context, actName, documentID string, segments []model.Segment) (model.Act, error) {
	if len(segments) == 0 {
		return model.Act{}, fmt.Errorf("act %q: no segments", actName)
	}

	act, err := s.repo.FindActByName(ctx, actName)
	switch {
	case errors.Is(err, store.ErrNotFound):
		act = model.Act{
			ID:          uuid.NewString(),
			Name:        actName,
			NormKey:     model.NormalizeActName(actName),
			DocumentID:  documentID,
			IndexStatus: model.IndexStatusNotIndexed,
		}
	case err != nil:
		return model.Act{}, err
	}
	if documentID != "" {
		act.DocumentID = documentID
	}

	fingerprint := index.Fingerprint(segments)
	if act.Fingerprint != "" && act.Fingerprint != fingerprint {
		act.IndexStatus = model.IndexStatusStale
		s.log.Info().Str("act", actName).Msg("source text changed, index marked stale")
	}
	act.Fingerprint = fingerprint

	if err := s.repo.UpsertAct(ctx, act); err != nil {
		return model.Act{}, fmt.Errorf("upsert act: %w", err)
	}
	if err := s.repo.ReplaceActSegments(ctx, act.ID, segments); err != nil {
		return model.Act{}, fmt.Errorf("store segments: %w", err)
	}
	s.log.Info().Str("act", actName).Int("segments", len(segments)).Msg("act ingested")
	return act, nil
}

// IngestFile loads an act's segments from a JSONL file.
func (s *Service) IngestFile(ctx context.Context, actName, path string) (model.Act, error) {
	segments, err := ReadSegmentsFile(path)
	if err != nil {
		return model.Act{}, fmt.Errorf("read segments: %w", err)
	}
	return s.IngestSegments(ctx, actName, "", segments)
}

// IngestURL fetches an act page and stores its visible text as
// segments. An empty actName falls back to the page title, then the
// URL slug.
func (s *Service) IngestURL(ctx context.Context, actName, rawURL string) (model.Act, error) {
	if s.fetcher == nil {
		return model.Act{}, errors.New("fetching disabled")
	}
	res, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return model.Act{}, err
	}
	if actName == "" {
		actName = PageTitle(res.HTML)
	}
	if actName == "" {
		actName = res.ActTitle
	}
	segments, err := SegmentsFromHTML(res.FinalURL, res.HTML)
	if err != nil {
		return model.Act{}, fmt.Errorf("parse act page: %w", err)
	}
	return s.IngestSegments(ctx, actName, res.FinalURL, segments)
}

// ImportCitations stores extracted citations.
func (s *Service) ImportCitations(ctx context.Context, citations []model.Citation) (int, error) {
	for i, c := range citations {
		if err := s.repo.InsertCitation(ctx, c); err != nil {
			return i, fmt.Errorf("citation %s: %w", c.ID, err)
		}
	}
	return len(citations), nil
}
