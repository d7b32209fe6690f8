package verify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"lexcheck/internal/model"
	"lexcheck/internal/store"
)

// Supervisor watches for batch runs whose process died mid-flight
// (heartbeat gone stale while status says running) and re-enqueues
// them, up to a bounded number of attempts.
type Supervisor struct {
	repo store.Repo
	orch *Orchestrator
	cfg  model.BatchConfig
	log  zerolog.Logger
}

// NewSupervisor creates a recovery supervisor
func NewSupervisor(repo store.Repo, orch *Orchestrator, cfg model.BatchConfig, log zerolog.Logger) *Supervisor {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 90 * time.Second
	}
	if cfg.MaxResumes <= 0 {
		cfg.MaxResumes = 3
	}
	return &Supervisor{
		repo: repo,
		orch: orch,
		cfg:  cfg,
		log:  log.With().Str("component", "supervisor").Logger(),
	}
}

// Run sweeps periodically until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.Warn().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Sweep performs one pass: every running batch whose heartbeat is
// older than the stale threshold is marked stalled and either resumed
// or, past the retry budget, failed permanently. Exposed for tests and
// for a one-shot CLI invocation.
func (s *Supervisor) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.StaleAfter)
	stalled, err := s.repo.ListStalledBatchRuns(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, run := range stalled {
		s.recover(ctx, run)
	}
	return nil
}

func (s *Supervisor) recover(ctx context.Context, run model.BatchRun) {
	if err := s.repo.SetBatchStatus(ctx, run.ID, model.BatchStalled, run.FailedAt); err != nil {
		s.log.Warn().Err(err).Str("batch_id", run.ID).Msg("mark stalled failed")
		return
	}
	attempts, err := s.repo.IncrementBatchAttempts(ctx, run.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("batch_id", run.ID).Msg("attempt count failed")
		return
	}
	if attempts > s.cfg.MaxResumes {
		// Out of budget. Leave the run failed with its last checkpoint
		// intact; an operator can still resume it explicitly.
		if err := s.repo.SetBatchStatus(ctx, run.ID, model.BatchFailed, run.FailedAt); err != nil {
			s.log.Warn().Err(err).Str("batch_id", run.ID).Msg("mark failed failed")
			return
		}
		s.log.Error().Str("batch_id", run.ID).Int("attempts", attempts).Msg("batch exceeded resume budget")
		s.orch.Bus().PublishBatchFailed(model.ProgressEvent{
			BatchID: run.ID, Verified: run.Completed, Total: run.Total,
		})
		return
	}

	s.log.Info().Str("batch_id", run.ID).Int("attempt", attempts).Msg("re-enqueueing stalled batch")
	if _, err := s.orch.ResumeBatch(ctx, run.ID); err != nil {
		s.log.Warn().Err(err).Str("batch_id", run.ID).Msg("resume failed")
	}
}
