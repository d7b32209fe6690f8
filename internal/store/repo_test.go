package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"lexcheck/internal/model"
)

func openTestRepo(t *testing.T) Repo {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return Repo{DB: db}
}

func insertTestAct(t *testing.T, r Repo, id, name string) model.Act {
	t.Helper()
	a := model.Act{ID: id, Name: name, DocumentID: "doc-" + id, IndexStatus: model.IndexStatusNotIndexed}
	if err := r.UpsertAct(context.Background(), a); err != nil {
		t.Fatalf("UpsertAct: %v", err)
	}
	return a
}

func insertTestCitation(t *testing.T, r Repo, id, actName, section string) model.Citation {
	t.Helper()
	c := model.Citation{
		ID:         id,
		CaseID:     "case-1",
		ActName:    actName,
		Section:    section,
		DocumentID: "doc-case",
		Page:       3,
	}
	if err := r.InsertCitation(context.Background(), c); err != nil {
		t.Fatalf("InsertCitation: %v", err)
	}
	return c
}

func TestActRoundTrip(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()

	insertTestAct(t, r, "act-1", "The Negotiable Instruments Act, 1881")

	got, err := r.GetAct(ctx, "act-1")
	if err != nil {
		t.Fatalf("GetAct: %v", err)
	}
	if got.Name != "The Negotiable Instruments Act, 1881" {
		t.Errorf("Name = %q", got.Name)
	}
	if got.NormKey == "" {
		t.Error("NormKey not derived on insert")
	}
	if got.IndexStatus != model.IndexStatusNotIndexed {
		t.Errorf("IndexStatus = %q", got.IndexStatus)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	// Upsert with the same id replaces, never duplicates.
	if err := r.UpsertAct(ctx, model.Act{ID: "act-1", Name: "Negotiable Instruments Act", IndexStatus: model.IndexStatusIndexed}); err != nil {
		t.Fatalf("UpsertAct update: %v", err)
	}
	var n int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM acts`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("acts rows = %d, want 1", n)
	}

	if _, err := r.GetAct(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAct(missing) = %v, want ErrNotFound", err)
	}
}

func TestFindActByName_NormalizedLookup(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	insertTestAct(t, r, "act-1", "The Negotiable Instruments Act, 1881")

	// Year, "The", and punctuation variants resolve to the same act.
	for _, name := range []string{
		"Negotiable Instruments Act",
		"negotiable instruments act, 1881",
		"The Negotiable Instruments Act",
	} {
		got, err := r.FindActByName(ctx, name)
		if err != nil {
			t.Fatalf("FindActByName(%q): %v", name, err)
		}
		if got.ID != "act-1" {
			t.Errorf("FindActByName(%q) = %q, want act-1", name, got.ID)
		}
	}

	if _, err := r.FindActByName(ctx, "Companies Act"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown act = %v, want ErrNotFound", err)
	}
}

func TestSetActIndexStatus(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	insertTestAct(t, r, "act-1", "Sample Act")

	if err := r.SetActIndexStatus(ctx, "act-1", model.IndexStatusIndexed, "fp-abc"); err != nil {
		t.Fatalf("SetActIndexStatus: %v", err)
	}
	got, err := r.GetAct(ctx, "act-1")
	if err != nil {
		t.Fatalf("GetAct: %v", err)
	}
	if got.IndexStatus != model.IndexStatusIndexed || got.Fingerprint != "fp-abc" {
		t.Errorf("status/fingerprint = %q/%q", got.IndexStatus, got.Fingerprint)
	}

	if err := r.SetActIndexStatus(ctx, "missing", model.IndexStatusIndexed, "fp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing act = %v, want ErrNotFound", err)
	}
}

func TestReplaceActSegments(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	insertTestAct(t, r, "act-1", "Sample Act")

	first := []model.Segment{
		{Page: 1, RegionIDs: []string{"r1"}, Text: "Section 1. Short title."},
		{Page: 1, Text: "This Act may be called the Sample Act."},
	}
	if err := r.ReplaceActSegments(ctx, "act-1", first); err != nil {
		t.Fatalf("ReplaceActSegments: %v", err)
	}

	second := []model.Segment{
		{Page: 1, Text: "Section 1. Short title."},
		{Page: 2, Text: "Section 2. Definitions."},
		{Page: 2, Text: "In this Act, unless the context otherwise requires."},
	}
	if err := r.ReplaceActSegments(ctx, "act-1", second); err != nil {
		t.Fatalf("ReplaceActSegments replace: %v", err)
	}

	got, err := r.GetActSegments(ctx, "act-1")
	if err != nil {
		t.Fatalf("GetActSegments: %v", err)
	}
	if len(got) != len(second) {
		t.Fatalf("segments = %d, want %d (full replacement)", len(got), len(second))
	}
	for i, seg := range got {
		if seg.Text != second[i].Text || seg.Page != second[i].Page {
			t.Errorf("segment %d = %+v, want %+v", i, seg, second[i])
		}
	}
}

func TestCitationRoundTrip(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()

	c := model.Citation{
		ID:         "cit-1",
		CaseID:     "case-1",
		ActName:    "Negotiable Instruments Act, 1881",
		Section:    "138",
		Subsection: "(1)",
		Quote:      "shall be deemed to have committed an offence",
		DocumentID: "doc-case",
		Page:       7,
		RegionIDs:  []string{"r1", "r2"},
	}
	if err := r.InsertCitation(ctx, c); err != nil {
		t.Fatalf("InsertCitation: %v", err)
	}

	got, err := r.GetCitation(ctx, "cit-1")
	if err != nil {
		t.Fatalf("GetCitation: %v", err)
	}
	if got.Section != "138" || got.Subsection != "(1)" || got.Quote != c.Quote {
		t.Errorf("citation = %+v", got)
	}
	if len(got.RegionIDs) != 2 || got.RegionIDs[0] != "r1" {
		t.Errorf("RegionIDs = %v", got.RegionIDs)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	byCase, err := r.ListCitationsByCase(ctx, "case-1")
	if err != nil {
		t.Fatalf("ListCitationsByCase: %v", err)
	}
	if len(byCase) != 1 {
		t.Errorf("case citations = %d, want 1", len(byCase))
	}
}

func TestListPendingCitationsByAct(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()

	actName := "Sample Act, 1990"
	key := model.NormalizeActName(actName)
	insertTestCitation(t, r, "cit-1", actName, "1")
	insertTestCitation(t, r, "cit-2", "The Sample Act", "5") // name variant, same key
	insertTestCitation(t, r, "cit-3", "Companies Act, 2013", "9")

	pending, err := r.ListPendingCitationsByAct(ctx, key)
	if err != nil {
		t.Fatalf("ListPendingCitationsByAct: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	// A terminal result removes the citation from the pending set; a
	// pending (transient) result does not.
	if err := r.UpsertResult(ctx, model.VerificationResult{CitationID: "cit-1", Status: model.StatusVerified, Similarity: 100}); err != nil {
		t.Fatalf("UpsertResult: %v", err)
	}
	if err := r.UpsertResult(ctx, model.VerificationResult{CitationID: "cit-2", Status: model.StatusPending, TransientError: "provider timeout"}); err != nil {
		t.Fatalf("UpsertResult: %v", err)
	}

	pending, err = r.ListPendingCitationsByAct(ctx, key)
	if err != nil {
		t.Fatalf("ListPendingCitationsByAct: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "cit-2" {
		t.Errorf("pending after results = %+v, want only cit-2", pending)
	}
}

func TestResultUpsertOverwrites(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	insertTestCitation(t, r, "cit-1", "Sample Act", "138")

	first := model.VerificationResult{
		CitationID:     "cit-1",
		Status:         model.StatusPending,
		TransientError: "provider timeout",
	}
	if err := r.UpsertResult(ctx, first); err != nil {
		t.Fatalf("UpsertResult: %v", err)
	}

	second := model.VerificationResult{
		CitationID:   "cit-1",
		Status:       model.StatusMismatch,
		SectionFound: true,
		MatchedText:  "the statutory text",
		Page:         4,
		RegionIDs:    []string{"r9"},
		Similarity:   34,
		Explanation:  "quoted text diverges from the section",
		Provenance:   model.ProvenancePattern,
		Confidence:   1.0,
		Diff: &model.DiffDetail{
			CitationText: "a fine of five lakh rupees",
			ActText:      "a fine of eight lakh rupees",
			MatchType:    model.MatchMismatch,
			Differences: []model.Difference{
				{Kind: model.DiffNumericValue, CitationText: "500000", ActText: "800000"},
			},
		},
	}
	if err := r.UpsertResult(ctx, second); err != nil {
		t.Fatalf("UpsertResult overwrite: %v", err)
	}

	got, err := r.GetResult(ctx, "cit-1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.Status != model.StatusMismatch || got.Similarity != 34 {
		t.Errorf("result = %v/%d, want mismatch/34", got.Status, got.Similarity)
	}
	if got.TransientError != "" {
		t.Errorf("stale transient error survived overwrite: %q", got.TransientError)
	}
	if got.Diff == nil || len(got.Diff.Differences) != 1 || got.Diff.Differences[0].Kind != model.DiffNumericValue {
		t.Errorf("diff did not round-trip: %+v", got.Diff)
	}
	if got.VerifiedAt.IsZero() {
		t.Error("VerifiedAt not set")
	}

	var n int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM verification_results`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("result rows = %d, want 1", n)
	}
}

func TestHasTerminalResult(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	insertTestCitation(t, r, "cit-1", "Sample Act", "1")
	insertTestCitation(t, r, "cit-2", "Sample Act", "2")

	got, err := r.HasTerminalResult(ctx, "cit-1")
	if err != nil || got {
		t.Errorf("no result = (%v, %v), want (false, nil)", got, err)
	}

	if err := r.UpsertResult(ctx, model.VerificationResult{CitationID: "cit-1", Status: model.StatusPending}); err != nil {
		t.Fatalf("UpsertResult: %v", err)
	}
	if got, _ = r.HasTerminalResult(ctx, "cit-1"); got {
		t.Error("pending result reported as terminal")
	}

	if err := r.UpsertResult(ctx, model.VerificationResult{CitationID: "cit-2", Status: model.StatusSectionNotFound}); err != nil {
		t.Fatalf("UpsertResult: %v", err)
	}
	if got, _ = r.HasTerminalResult(ctx, "cit-2"); !got {
		t.Error("section_not_found not reported as terminal")
	}
}

func insertTestBatch(t *testing.T, r Repo, id string, citationIDs []string) model.BatchRun {
	t.Helper()
	b := model.BatchRun{
		ID:        id,
		ActID:     "act-1",
		CaseID:    "case-1",
		Total:     len(citationIDs),
		Status:    model.BatchRunning,
		Heartbeat: time.Now(),
	}
	if err := r.InsertBatchRun(context.Background(), b, citationIDs); err != nil {
		t.Fatalf("InsertBatchRun: %v", err)
	}
	return b
}

func batchFixture(t *testing.T, r Repo, n int) []string {
	t.Helper()
	insertTestAct(t, r, "act-1", "Sample Act")
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "cit-" + string(rune('a'+i))
		insertTestCitation(t, r, ids[i], "Sample Act", "1")
	}
	return ids
}

func TestBatchRunRoundTrip(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	ids := batchFixture(t, r, 4)
	insertTestBatch(t, r, "batch-1", ids)

	got, err := r.GetBatchRun(ctx, "batch-1")
	if err != nil {
		t.Fatalf("GetBatchRun: %v", err)
	}
	if got.Total != 4 || got.Completed != 0 || got.Status != model.BatchRunning {
		t.Errorf("batch = %+v", got)
	}
	if got.FailedAt != nil {
		t.Errorf("fresh batch has FailedAt = %d", *got.FailedAt)
	}

	members, err := r.BatchCitationIDs(ctx, "batch-1")
	if err != nil {
		t.Fatalf("BatchCitationIDs: %v", err)
	}
	if len(members) != 4 {
		t.Fatalf("members = %d, want 4", len(members))
	}
	for i, id := range members {
		if id != ids[i] {
			t.Errorf("member %d = %q, want %q (batch order)", i, id, ids[i])
		}
	}
}

func TestAdvanceBatchTx_MonotonicGuard(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	ids := batchFixture(t, r, 10)
	insertTestBatch(t, r, "batch-1", ids)

	advance := func(completed int) {
		t.Helper()
		tx, err := r.DB.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := r.AdvanceBatchTx(ctx, tx, "batch-1", completed); err != nil {
			tx.Rollback()
			t.Fatalf("AdvanceBatchTx(%d): %v", completed, err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	completed := func() int {
		t.Helper()
		b, err := r.GetBatchRun(ctx, "batch-1")
		if err != nil {
			t.Fatalf("GetBatchRun: %v", err)
		}
		return b.Completed
	}

	advance(6)
	if got := completed(); got != 6 {
		t.Fatalf("completed = %d, want 6", got)
	}

	// A replayed checkpoint or a stale writer never moves it backward.
	advance(4)
	if got := completed(); got != 6 {
		t.Errorf("completed regressed to %d", got)
	}
	advance(6)
	if got := completed(); got != 6 {
		t.Errorf("replay double-counted: completed = %d", got)
	}

	// Completed never exceeds total.
	advance(11)
	if got := completed(); got != 6 {
		t.Errorf("completed overshot total: %d", got)
	}

	advance(10)
	if got := completed(); got != 10 {
		t.Errorf("completed = %d, want 10", got)
	}
}

func TestSetBatchStatus(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	ids := batchFixture(t, r, 2)
	insertTestBatch(t, r, "batch-1", ids)

	group := 3
	if err := r.SetBatchStatus(ctx, "batch-1", model.BatchFailed, &group); err != nil {
		t.Fatalf("SetBatchStatus: %v", err)
	}
	got, err := r.GetBatchRun(ctx, "batch-1")
	if err != nil {
		t.Fatalf("GetBatchRun: %v", err)
	}
	if got.Status != model.BatchFailed || got.FailedAt == nil || *got.FailedAt != 3 {
		t.Errorf("batch = %+v, want failed at group 3", got)
	}

	// Re-running clears the failure marker.
	if err := r.SetBatchStatus(ctx, "batch-1", model.BatchRunning, nil); err != nil {
		t.Fatalf("SetBatchStatus resume: %v", err)
	}
	got, _ = r.GetBatchRun(ctx, "batch-1")
	if got.Status != model.BatchRunning || got.FailedAt != nil {
		t.Errorf("batch after resume = %+v", got)
	}

	if err := r.SetBatchStatus(ctx, "missing", model.BatchFailed, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing batch = %v, want ErrNotFound", err)
	}
}

func TestIncrementBatchAttempts(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	ids := batchFixture(t, r, 2)
	insertTestBatch(t, r, "batch-1", ids)

	for want := 1; want <= 3; want++ {
		got, err := r.IncrementBatchAttempts(ctx, "batch-1")
		if err != nil {
			t.Fatalf("IncrementBatchAttempts: %v", err)
		}
		if got != want {
			t.Errorf("attempts = %d, want %d", got, want)
		}
	}
}

func TestListStalledBatchRuns(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	ids := batchFixture(t, r, 2)

	stale := model.BatchRun{
		ID: "batch-stale", ActID: "act-1", Total: 2,
		Status: model.BatchRunning, Heartbeat: time.Now().Add(-5 * time.Minute),
	}
	if err := r.InsertBatchRun(ctx, stale, ids); err != nil {
		t.Fatalf("InsertBatchRun: %v", err)
	}
	fresh := model.BatchRun{
		ID: "batch-fresh", ActID: "act-1", Total: 2,
		Status: model.BatchRunning, Heartbeat: time.Now(),
	}
	if err := r.InsertBatchRun(ctx, fresh, ids); err != nil {
		t.Fatalf("InsertBatchRun: %v", err)
	}
	done := model.BatchRun{
		ID: "batch-done", ActID: "act-1", Total: 2, Completed: 2,
		Status: model.BatchCompleted, Heartbeat: time.Now().Add(-5 * time.Minute),
	}
	if err := r.InsertBatchRun(ctx, done, ids); err != nil {
		t.Fatalf("InsertBatchRun: %v", err)
	}

	got, err := r.ListStalledBatchRuns(ctx, time.Now().Add(-90*time.Second))
	if err != nil {
		t.Fatalf("ListStalledBatchRuns: %v", err)
	}
	if len(got) != 1 || got[0].ID != "batch-stale" {
		t.Errorf("stalled = %+v, want only batch-stale", got)
	}
}

func TestGroupCheckpointTransaction(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	ids := batchFixture(t, r, 2)
	insertTestBatch(t, r, "batch-1", ids)

	// Results, the progress counter, and the event land together.
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, id := range ids {
		res := model.VerificationResult{CitationID: id, Status: model.StatusVerified, SectionFound: true, Similarity: 100}
		if err := r.UpsertResultTx(ctx, tx, res); err != nil {
			tx.Rollback()
			t.Fatalf("UpsertResultTx: %v", err)
		}
	}
	if err := r.AdvanceBatchTx(ctx, tx, "batch-1", 2); err != nil {
		tx.Rollback()
		t.Fatalf("AdvanceBatchTx: %v", err)
	}
	evt := model.ProgressEvent{BatchID: "batch-1", Verified: 2, Total: 2}
	if err := r.AppendEventTx(ctx, tx, "progress", "batch-1", "", evt); err != nil {
		tx.Rollback()
		t.Fatalf("AppendEventTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	b, err := r.GetBatchRun(ctx, "batch-1")
	if err != nil {
		t.Fatalf("GetBatchRun: %v", err)
	}
	if b.Completed != 2 {
		t.Errorf("completed = %d, want 2", b.Completed)
	}
	for _, id := range ids {
		if _, err := r.GetResult(ctx, id); err != nil {
			t.Errorf("GetResult(%s): %v", id, err)
		}
	}

	// A rolled-back checkpoint leaves nothing behind.
	tx, err = r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := r.UpsertResultTx(ctx, tx, model.VerificationResult{CitationID: ids[0], Status: model.StatusMismatch}); err != nil {
		t.Fatalf("UpsertResultTx: %v", err)
	}
	tx.Rollback()

	got, err := r.GetResult(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.Status != model.StatusVerified {
		t.Errorf("rollback leaked: status = %v", got.Status)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()

	err := r.UpsertResult(ctx, model.VerificationResult{CitationID: "ghost", Status: model.StatusVerified})
	if err == nil {
		t.Error("result for unknown citation accepted")
	}

	b := model.BatchRun{ID: "batch-1", ActID: "ghost-act", Total: 0, Status: model.BatchRunning, Heartbeat: time.Now()}
	if err := r.InsertBatchRun(ctx, b, nil); err == nil {
		t.Error("batch for unknown act accepted")
	}
}
