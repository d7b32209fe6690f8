// Package verify drives citation verification: resolving sections,
// comparing quotes, persisting results, and running resumable batches.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lexcheck/internal/compare"
	"lexcheck/internal/index"
	"lexcheck/internal/match"
	"lexcheck/internal/metrics"
	"lexcheck/internal/model"
	"lexcheck/internal/store"
	"lexcheck/internal/worker"
)

// ErrActNotIndexed indicates the target act has no usable text at all.
// The whole batch aborts early with act_unavailable outcomes; this is
// a hard failure, not retried.
var ErrActNotIndexed = errors.New("act has no usable text")

// retrySleep is the backoff sleep between comparison retries,
// injectable for tests.
var retrySleep = time.Sleep

// SectionResolver resolves a section reference against an index
type SectionResolver interface {
	Find(ctx context.Context, ix *index.SectionIndex, requested, actName string) (match.Result, error)
}

// QuoteComparer classifies citation/section text agreement
type QuoteComparer interface {
	Compare(ctx context.Context, citationText, sectionText string) (compare.Comparison, error)
}

// Orchestrator runs verification for single citations and resumable
// batches. Within one run, groups proceed sequentially; citations
// inside a group may run concurrently under the provider rate limit.
type Orchestrator struct {
	repo       store.Repo
	indexes    *index.Store
	matcher    SectionResolver
	comparator QuoteComparer
	limiter    *worker.Limiter
	bus        *Bus
	metrics    *metrics.Metrics
	log        zerolog.Logger

	service  string // rate-limiter key for the comparison service
	batchCfg model.BatchConfig
	matchCfg model.MatchingConfig
}

// Options wires the orchestrator's collaborators
type Options struct {
	Repo       store.Repo
	Indexes    *index.Store
	Matcher    SectionResolver
	Comparator QuoteComparer
	Limiter    *worker.Limiter
	Bus        *Bus
	Metrics    *metrics.Metrics
	Log        zerolog.Logger
	Service    string
	Batch      model.BatchConfig
	Matching   model.MatchingConfig
}

// New creates an orchestrator
func New(opts Options) *Orchestrator {
	if opts.Batch.GroupSize <= 0 {
		opts.Batch.GroupSize = 10
	}
	if opts.Batch.GroupWorkers <= 0 {
		opts.Batch.GroupWorkers = 1
	}
	if opts.Batch.MaxCallRetry <= 0 {
		opts.Batch.MaxCallRetry = 1
	}
	if opts.Bus == nil {
		opts.Bus = NewBus()
	}
	if opts.Service == "" {
		opts.Service = "similarity"
	}
	return &Orchestrator{
		repo:       opts.Repo,
		indexes:    opts.Indexes,
		matcher:    opts.Matcher,
		comparator: opts.Comparator,
		limiter:    opts.Limiter,
		bus:        opts.Bus,
		metrics:    opts.Metrics,
		log:        opts.Log.With().Str("component", "orchestrator").Logger(),
		service:    opts.Service,
		batchCfg:   opts.Batch,
		matchCfg:   opts.Matching,
	}
}

// Bus returns the orchestrator's event bus for listeners.
func (o *Orchestrator) Bus() *Bus { return o.bus }

// VerifyOne runs matching and comparison for a single citation against
// the act and persists the outcome.
func (o *Orchestrator) VerifyOne(ctx context.Context, citationID, actID string) (model.VerificationResult, error) {
	citation, err := o.repo.GetCitation(ctx, citationID)
	if err != nil {
		return model.VerificationResult{}, fmt.Errorf("load citation: %w", err)
	}
	act, err := o.repo.GetAct(ctx, actID)
	if err != nil {
		return model.VerificationResult{}, fmt.Errorf("load act: %w", err)
	}

	ix, err := o.ensureIndex(ctx, &act)
	if errors.Is(err, ErrActNotIndexed) {
		res := actUnavailableResult(citation, act)
		if err := o.repo.UpsertResult(ctx, res); err != nil {
			return model.VerificationResult{}, err
		}
		o.countStatus(res.Status)
		return res, nil
	}
	if err != nil {
		return model.VerificationResult{}, err
	}

	res := o.verifyCitation(ctx, ix, act, citation)
	if err := o.repo.UpsertResult(ctx, res); err != nil {
		return model.VerificationResult{}, err
	}
	o.countStatus(res.Status)
	return res, nil
}

// RunBatch verifies all given citations against the act as one
// resumable run. It returns once the run reaches a terminal or failed
// state.
func (o *Orchestrator) RunBatch(ctx context.Context, actID string, citationIDs []string, caseID string) (model.BatchRun, error) {
	run, act, err := o.createRun(ctx, actID, citationIDs, caseID)
	if err != nil {
		return model.BatchRun{}, err
	}
	return o.runFromStart(ctx, run, act, citationIDs)
}

// StartBatch creates the run record and processes it on a background
// goroutine, returning immediately with the run's identity. API
// callers track progress via the run resource and the event stream.
func (o *Orchestrator) StartBatch(ctx context.Context, actID string, citationIDs []string, caseID string) (model.BatchRun, error) {
	run, act, err := o.createRun(ctx, actID, citationIDs, caseID)
	if err != nil {
		return model.BatchRun{}, err
	}
	go func() {
		if _, err := o.runFromStart(context.Background(), run, act, citationIDs); err != nil {
			o.log.Error().Err(err).Str("batch_id", run.ID).Msg("batch run error")
		}
	}()
	return run, nil
}

func (o *Orchestrator) createRun(ctx context.Context, actID string, citationIDs []string, caseID string) (model.BatchRun, model.Act, error) {
	act, err := o.repo.GetAct(ctx, actID)
	if err != nil {
		return model.BatchRun{}, act, fmt.Errorf("load act: %w", err)
	}
	run := model.BatchRun{
		ID:        uuid.NewString(),
		ActID:     actID,
		CaseID:    caseID,
		Total:     len(citationIDs),
		Heartbeat: time.Now().UTC(),
		Status:    model.BatchRunning,
	}
	if err := o.repo.InsertBatchRun(ctx, run, citationIDs); err != nil {
		return model.BatchRun{}, act, fmt.Errorf("create batch run: %w", err)
	}
	o.log.Info().Str("batch_id", run.ID).Str("act", act.Name).Int("total", run.Total).Msg("batch started")
	return run, act, nil
}

func (o *Orchestrator) runFromStart(ctx context.Context, run model.BatchRun, act model.Act, citationIDs []string) (model.BatchRun, error) {
	ix, err := o.ensureIndex(ctx, &act)
	if errors.Is(err, ErrActNotIndexed) {
		return o.abortActUnavailable(ctx, run, act, citationIDs)
	}
	if err != nil {
		return model.BatchRun{}, err
	}

	citations, err := o.loadCitations(ctx, citationIDs)
	if err != nil {
		return model.BatchRun{}, err
	}
	return o.processFrom(ctx, run, act, ix, citations, 1)
}

// ResumeBatch restarts a failed or stalled run exactly at its failed
// group, re-validating that already-completed citations still have
// results before skipping them.
func (o *Orchestrator) ResumeBatch(ctx context.Context, batchID string) (model.BatchRun, error) {
	run, err := o.repo.GetBatchRun(ctx, batchID)
	if err != nil {
		return model.BatchRun{}, err
	}
	switch run.Status {
	case model.BatchCompleted, model.BatchCancelled:
		return run, nil
	}

	act, err := o.repo.GetAct(ctx, run.ActID)
	if err != nil {
		return model.BatchRun{}, fmt.Errorf("load act: %w", err)
	}
	ids, err := o.repo.BatchCitationIDs(ctx, batchID)
	if err != nil {
		return model.BatchRun{}, err
	}
	citations, err := o.loadCitations(ctx, ids)
	if err != nil {
		return model.BatchRun{}, err
	}

	ix, err := o.ensureIndex(ctx, &act)
	if errors.Is(err, ErrActNotIndexed) {
		return o.abortActUnavailable(ctx, run, act, ids)
	}
	if err != nil {
		return model.BatchRun{}, err
	}

	startGroup := len(o.chunk(citations)) + 1
	if run.FailedAt != nil {
		startGroup = *run.FailedAt
	} else if run.Completed < run.Total {
		startGroup = run.Completed/o.batchCfg.GroupSize + 1
	}
	if g, err := o.firstIncompleteGroup(ctx, citations, startGroup); err != nil {
		return model.BatchRun{}, err
	} else if g < startGroup {
		startGroup = g
	}

	if err := o.repo.SetBatchStatus(ctx, batchID, model.BatchRunning, nil); err != nil {
		return model.BatchRun{}, err
	}
	run.Status = model.BatchRunning
	run.FailedAt = nil
	o.log.Info().Str("batch_id", batchID).Int("start_group", startGroup).Msg("batch resumed")
	return o.processFrom(ctx, run, act, ix, citations, startGroup)
}

// Cancel requests a batch stop. The check happens between groups; an
// in-flight group finishes and its results stay committed.
func (o *Orchestrator) Cancel(ctx context.Context, batchID string) error {
	return o.repo.SetBatchStatus(ctx, batchID, model.BatchCancelled, nil)
}

// ---- batch internals ----

func (o *Orchestrator) processFrom(ctx context.Context, run model.BatchRun, act model.Act, ix *index.SectionIndex, citations []model.Citation, startGroup int) (model.BatchRun, error) {
	groups := o.chunk(citations)
	stopHeartbeat := o.startHeartbeat(ctx, run.ID)
	defer stopHeartbeat()

	for gi := startGroup; gi <= len(groups); gi++ {
		if stopped, err := o.checkStop(ctx, run.ID); err != nil {
			return run, err
		} else if stopped {
			o.log.Info().Str("batch_id", run.ID).Int("group", gi).Msg("batch cancelled")
			if o.metrics != nil {
				o.metrics.BatchRunsTotal.WithLabelValues(string(model.BatchCancelled)).Inc()
			}
			run.Status = model.BatchCancelled
			return run, nil
		}

		started := time.Now()
		outcomes := o.processGroup(ctx, ix, act, groups[gi-1])

		if groupFailed(outcomes) {
			failedAt := gi
			if err := o.repo.SetBatchStatus(ctx, run.ID, model.BatchFailed, &failedAt); err != nil {
				return run, err
			}
			run.Status = model.BatchFailed
			run.FailedAt = &failedAt
			o.log.Warn().Str("batch_id", run.ID).Int("failed_at", gi).Msg("batch failed at group")
			if o.metrics != nil {
				o.metrics.BatchRunsTotal.WithLabelValues(string(model.BatchFailed)).Inc()
			}
			o.bus.PublishBatchFailed(model.ProgressEvent{
				BatchID: run.ID, ActName: act.Name, Verified: run.Completed, Total: run.Total,
			})
			return run, nil
		}

		completed := (gi-1)*o.batchCfg.GroupSize + len(groups[gi-1])
		if err := o.commitGroup(ctx, run, act, outcomes, completed); err != nil {
			failedAt := gi
			_ = o.repo.SetBatchStatus(ctx, run.ID, model.BatchFailed, &failedAt)
			run.Status = model.BatchFailed
			run.FailedAt = &failedAt
			return run, fmt.Errorf("commit group %d: %w", gi, err)
		}
		run.Completed = completed
		run.Heartbeat = time.Now().UTC()
		if o.metrics != nil {
			o.metrics.BatchGroupDuration.Observe(time.Since(started).Seconds())
		}

		// Emit-after-persist: listeners never observe phantom
		// completions, and progress arrives in increasing order.
		for _, oc := range outcomes {
			if oc.result.Status.Terminal() {
				o.bus.PublishCitation(model.CitationEvent{
					BatchID:     run.ID,
					CitationID:  oc.citation.ID,
					Status:      oc.result.Status,
					Explanation: oc.result.Explanation,
				})
			}
		}
		o.bus.PublishProgress(model.ProgressEvent{
			BatchID: run.ID, ActName: act.Name, Verified: completed, Total: run.Total,
		})
	}

	if err := o.repo.SetBatchStatus(ctx, run.ID, model.BatchCompleted, nil); err != nil {
		return run, err
	}
	run.Status = model.BatchCompleted
	o.log.Info().Str("batch_id", run.ID).Int("total", run.Total).Msg("batch completed")
	if o.metrics != nil {
		o.metrics.BatchRunsTotal.WithLabelValues(string(model.BatchCompleted)).Inc()
	}
	o.bus.PublishProgress(model.ProgressEvent{
		BatchID: run.ID, ActName: act.Name, Verified: run.Total, Total: run.Total, Completed: true,
	})
	return run, nil
}

type outcome struct {
	citation   model.Citation
	result     model.VerificationResult
	serviceErr error
}

func (oc *outcome) GetError() error { return oc.serviceErr }

type verifyJob struct {
	o        *Orchestrator
	ix       *index.SectionIndex
	act      model.Act
	citation model.Citation
}

func (j *verifyJob) Execute(ctx context.Context) worker.Result {
	res := j.o.verifyCitation(ctx, j.ix, j.act, j.citation)
	oc := &outcome{citation: j.citation, result: res}
	if res.TransientError != "" {
		oc.serviceErr = errors.New(res.TransientError)
	}
	return oc
}

func (o *Orchestrator) processGroup(ctx context.Context, ix *index.SectionIndex, act model.Act, group []model.Citation) []*outcome {
	pool := worker.NewPool(o.batchCfg.GroupWorkers)
	pool.Start()
	for _, c := range group {
		pool.Submit(&verifyJob{o: o, ix: ix, act: act, citation: c})
	}
	results := pool.Wait()

	outcomes := make([]*outcome, 0, len(results))
	for _, r := range results {
		outcomes = append(outcomes, r.(*outcome))
	}
	return outcomes
}

// groupFailed treats a group where every citation hit a service error
// as an outage: the batch stops here and earlier progress stays
// durable. Isolated per-citation errors remain transient and do not
// abort siblings.
func groupFailed(outcomes []*outcome) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, oc := range outcomes {
		if oc.serviceErr == nil {
			return false
		}
	}
	return true
}

func (o *Orchestrator) commitGroup(ctx context.Context, run model.BatchRun, act model.Act, outcomes []*outcome, completed int) error {
	tx, err := o.repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, oc := range outcomes {
		if err := o.repo.UpsertResultTx(ctx, tx, oc.result); err != nil {
			return err
		}
		if oc.result.Status.Terminal() {
			evt := model.CitationEvent{BatchID: run.ID, CitationID: oc.citation.ID, Status: oc.result.Status, Explanation: oc.result.Explanation}
			if err := o.repo.AppendEventTx(ctx, tx, EventCitationVerified, run.ID, oc.citation.ID, evt); err != nil {
				return err
			}
		}
		o.countStatus(oc.result.Status)
	}
	if err := o.repo.AdvanceBatchTx(ctx, tx, run.ID, completed); err != nil {
		return err
	}
	progress := model.ProgressEvent{BatchID: run.ID, ActName: act.Name, Verified: completed, Total: run.Total}
	if err := o.repo.AppendEventTx(ctx, tx, EventProgress, run.ID, "", progress); err != nil {
		return err
	}
	return tx.Commit()
}

// startHeartbeat refreshes the run's heartbeat while groups are in
// flight, so a slow group is not mistaken for a dead process. Group
// checkpoints also refresh it; this covers the time in between.
func (o *Orchestrator) startHeartbeat(ctx context.Context, batchID string) func() {
	interval := o.batchCfg.StaleAfter / 3
	if interval <= 0 {
		interval = 30 * time.Second
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := o.repo.TouchBatchHeartbeat(ctx, batchID); err != nil {
					o.log.Warn().Err(err).Str("batch_id", batchID).Msg("heartbeat update failed")
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (o *Orchestrator) checkStop(ctx context.Context, batchID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, nil
	}
	run, err := o.repo.GetBatchRun(ctx, batchID)
	if err != nil {
		return false, err
	}
	return run.Status == model.BatchCancelled, nil
}

func (o *Orchestrator) chunk(citations []model.Citation) [][]model.Citation {
	size := o.batchCfg.GroupSize
	var groups [][]model.Citation
	for start := 0; start < len(citations); start += size {
		end := start + size
		if end > len(citations) {
			end = len(citations)
		}
		groups = append(groups, citations[start:end])
	}
	return groups
}

// firstIncompleteGroup re-validates groups before the resume point; a
// citation missing its terminal result pulls the resume point back.
func (o *Orchestrator) firstIncompleteGroup(ctx context.Context, citations []model.Citation, before int) (int, error) {
	groups := o.chunk(citations)
	for gi := 1; gi < before && gi <= len(groups); gi++ {
		for _, c := range groups[gi-1] {
			ok, err := o.repo.HasTerminalResult(ctx, c.ID)
			if err != nil {
				return before, err
			}
			if !ok {
				return gi, nil
			}
		}
	}
	return before, nil
}

func (o *Orchestrator) loadCitations(ctx context.Context, ids []string) ([]model.Citation, error) {
	citations := make([]model.Citation, 0, len(ids))
	for _, id := range ids {
		c, err := o.repo.GetCitation(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load citation %s: %w", id, err)
		}
		citations = append(citations, c)
	}
	return citations, nil
}

func (o *Orchestrator) abortActUnavailable(ctx context.Context, run model.BatchRun, act model.Act, citationIDs []string) (model.BatchRun, error) {
	for _, id := range citationIDs {
		res := actUnavailableResult(model.Citation{ID: id}, act)
		if err := o.repo.UpsertResult(ctx, res); err != nil {
			return run, err
		}
		o.countStatus(res.Status)
	}
	if err := o.repo.SetBatchStatus(ctx, run.ID, model.BatchCompleted, nil); err != nil {
		return run, err
	}
	run.Status = model.BatchCompleted
	o.log.Warn().Str("batch_id", run.ID).Str("act", act.Name).Msg("act unavailable, batch aborted early")
	o.bus.PublishProgress(model.ProgressEvent{
		BatchID: run.ID, ActName: act.Name, Verified: 0, Total: run.Total, Completed: true,
	})
	return run, nil
}

func (o *Orchestrator) countStatus(s model.VerificationStatus) {
	if o.metrics != nil && s.Terminal() {
		o.metrics.VerificationsTotal.WithLabelValues(string(s)).Inc()
	}
}

// ---- single-citation verification ----

// ensureIndex returns the act's current index, building it when
// missing or stale. No usable source text yields ErrActNotIndexed.
func (o *Orchestrator) ensureIndex(ctx context.Context, act *model.Act) (*index.SectionIndex, error) {
	if act.IndexStatus == model.IndexStatusStale {
		o.indexes.Invalidate(act.ID, act.Fingerprint)
	}
	ix, err := o.indexes.GetOrBuild(act.ID, act.Fingerprint, func() ([]model.Segment, error) {
		return o.repo.GetActSegments(ctx, act.ID)
	})
	if err != nil {
		return nil, err
	}
	if len(ix.Segments) == 0 {
		return nil, ErrActNotIndexed
	}
	if o.metrics != nil && act.Fingerprint != ix.Fingerprint {
		o.metrics.IndexBuildsTotal.Inc()
	}
	if act.IndexStatus != model.IndexStatusIndexed || act.Fingerprint != ix.Fingerprint {
		if err := o.repo.SetActIndexStatus(ctx, act.ID, model.IndexStatusIndexed, ix.Fingerprint); err != nil {
			return nil, err
		}
		act.IndexStatus = model.IndexStatusIndexed
		act.Fingerprint = ix.Fingerprint
	}
	return ix, nil
}

// verifyCitation runs the match+compare pipeline without persisting.
// Infrastructure failures come back as a transient (non-terminal)
// result; business outcomes are terminal statuses.
func (o *Orchestrator) verifyCitation(ctx context.Context, ix *index.SectionIndex, act model.Act, citation model.Citation) model.VerificationResult {
	requested := citation.Section
	if citation.Subsection != "" {
		requested = index.JoinKey(citation.Section, citation.Subsection)
	}

	m, err := o.matcher.Find(ctx, ix, requested, act.Name)
	if err != nil {
		return transientResult(citation, err)
	}
	if !m.Found {
		return model.VerificationResult{
			CitationID:  citation.ID,
			Status:      model.StatusSectionNotFound,
			Explanation: fmt.Sprintf("section %s not found in %s", requested, act.Name),
			VerifiedAt:  time.Now().UTC(),
		}
	}

	res := model.VerificationResult{
		CitationID:   citation.ID,
		SectionFound: true,
		MatchedText:  m.Boundary.Text,
		Page:         m.Boundary.PageStart,
		RegionIDs:    m.Boundary.RegionIDs,
		Provenance:   m.Provenance,
		Confidence:   m.Confidence,
		VerifiedAt:   time.Now().UTC(),
	}

	if citation.Quote == "" {
		// Section existence alone verifies a quoteless citation, at a
		// fixed score distinct from any computed similarity.
		res.Status = model.StatusVerified
		res.Similarity = o.matchCfg.SectionOnlyScore
		res.Explanation = fmt.Sprintf("section %s located; citation has no quoted text", requested)
		return res
	}

	cmp, err := o.compareWithRetry(ctx, citation.Quote, m.Boundary.Text)
	if err != nil {
		return transientResult(citation, err)
	}

	res.Similarity = cmp.Score
	switch cmp.MatchType {
	case model.MatchExact:
		res.Status = model.StatusVerified
		res.Explanation = fmt.Sprintf("quoted text matches section %s exactly", requested)
	case model.MatchParaphrase:
		res.Status = model.StatusVerified
		res.Explanation = fmt.Sprintf("quoted text agrees with section %s (paraphrase, score %d)", requested, cmp.Score)
	case model.MatchSemantic:
		res.Status = model.StatusMismatch
		res.Explanation = fmt.Sprintf("partial agreement with section %s requires review (score %d)", requested, cmp.Score)
	default:
		res.Status = model.StatusMismatch
		res.Explanation = fmt.Sprintf("quoted text diverges from section %s (score %d)", requested, cmp.Score)
		res.Diff = &model.DiffDetail{
			CitationText: citation.Quote,
			ActText:      m.Boundary.Text,
			MatchType:    cmp.MatchType,
			Differences:  cmp.Differences,
		}
	}
	if m.Provenance == model.ProvenanceParentFallback {
		res.Explanation += fmt.Sprintf(" (matched parent section %s; subsection not located)", m.Boundary.Key)
	}
	return res
}

// compareWithRetry applies the rate limit, the deliberate inter-call
// delay, and bounded retries with backoff around the external
// comparison.
func (o *Orchestrator) compareWithRetry(ctx context.Context, quote, sectionText string) (compare.Comparison, error) {
	var lastErr error
	for attempt := 0; attempt < o.batchCfg.MaxCallRetry; attempt++ {
		if attempt > 0 {
			retrySleep(time.Duration(attempt) * time.Second)
		}
		if o.limiter != nil {
			if err := o.limiter.WaitWithDelay(ctx, o.service, o.batchCfg.CallDelay); err != nil {
				return compare.Comparison{}, err
			}
		}
		started := time.Now()
		cmp, err := o.comparator.Compare(ctx, quote, sectionText)
		if o.metrics != nil {
			o.metrics.ProviderDuration.Observe(time.Since(started).Seconds())
			outcomeLabel := "ok"
			if err != nil {
				outcomeLabel = "error"
			}
			o.metrics.ProviderCalls.WithLabelValues(o.service, outcomeLabel).Inc()
		}
		if err == nil {
			return cmp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return compare.Comparison{}, lastErr
}

func transientResult(citation model.Citation, err error) model.VerificationResult {
	return model.VerificationResult{
		CitationID:     citation.ID,
		Status:         model.StatusPending,
		TransientError: err.Error(),
		VerifiedAt:     time.Now().UTC(),
	}
}

func actUnavailableResult(citation model.Citation, act model.Act) model.VerificationResult {
	return model.VerificationResult{
		CitationID:  citation.ID,
		Status:      model.StatusActUnavailable,
		Explanation: fmt.Sprintf("act %q has no indexed text", act.Name),
		VerifiedAt:  time.Now().UTC(),
	}
}
