package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"lexcheck/internal/model"
)

// UpsertResult overwrites the citation's verification result in one
// statement: an attempt either fully replaces the row or, on error,
// leaves the prior result untouched.
func (r Repo) UpsertResult(ctx context.Context, res model.VerificationResult) error {
	return upsertResult(ctx, r.DB.ExecContext, res)
}

// UpsertResultTx is the transactional variant used for group
// checkpoints.
func (r Repo) UpsertResultTx(ctx context.Context, tx *sql.Tx, res model.VerificationResult) error {
	return upsertResult(ctx, tx.ExecContext, res)
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func upsertResult(ctx context.Context, exec execFunc, res model.VerificationResult) error {
	var diffJSON any
	if res.Diff != nil {
		data, err := json.Marshal(res.Diff)
		if err != nil {
			return err
		}
		diffJSON = string(data)
	}
	verified := res.VerifiedAt
	if verified.IsZero() {
		verified = time.Now()
	}
	_, err := exec(ctx, `INSERT INTO verification_results
		(citation_id,status,section_found,matched_text,page_number,region_ids,similarity_score,explanation,diff_json,provenance,confidence,transient_error,verified_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(citation_id) DO UPDATE SET
			status=excluded.status, section_found=excluded.section_found,
			matched_text=excluded.matched_text, page_number=excluded.page_number,
			region_ids=excluded.region_ids, similarity_score=excluded.similarity_score,
			explanation=excluded.explanation, diff_json=excluded.diff_json,
			provenance=excluded.provenance, confidence=excluded.confidence,
			transient_error=excluded.transient_error, verified_at=excluded.verified_at`,
		res.CitationID, string(res.Status), boolInt(res.SectionFound), nullable(res.MatchedText),
		res.Page, encodeStrings(res.RegionIDs), res.Similarity, nullable(res.Explanation),
		diffJSON, nullable(string(res.Provenance)), res.Confidence, nullable(res.TransientError),
		encodeTime(verified))
	return err
}

// GetResult returns the latest verification result for a citation.
func (r Repo) GetResult(ctx context.Context, citationID string) (model.VerificationResult, error) {
	var res model.VerificationResult
	var status string
	var found int
	var matched, explanation, diffJSON, provenance, transient, regions sql.NullString
	var confidence sql.NullFloat64
	var page sql.NullInt64
	var verified string
	err := r.DB.QueryRowContext(ctx, `SELECT citation_id,status,section_found,matched_text,page_number,region_ids,
		similarity_score,explanation,diff_json,provenance,confidence,transient_error,verified_at
		FROM verification_results WHERE citation_id=?`, citationID).
		Scan(&res.CitationID, &status, &found, &matched, &page, &regions,
			&res.Similarity, &explanation, &diffJSON, &provenance, &confidence, &transient, &verified)
	if err == sql.ErrNoRows {
		return res, ErrNotFound
	}
	if err != nil {
		return res, err
	}
	res.Status = model.VerificationStatus(status)
	res.SectionFound = found != 0
	res.MatchedText = matched.String
	res.Page = int(page.Int64)
	res.RegionIDs = decodeStrings(regions)
	res.Explanation = explanation.String
	res.Provenance = model.MatchProvenance(provenance.String)
	res.Confidence = confidence.Float64
	res.TransientError = transient.String
	res.VerifiedAt = decodeTime(verified)
	if diffJSON.Valid && diffJSON.String != "" {
		var d model.DiffDetail
		if err := json.Unmarshal([]byte(diffJSON.String), &d); err == nil {
			res.Diff = &d
		}
	}
	return res, nil
}

// HasTerminalResult reports whether the citation already carries a
// terminal status; resume uses it to re-validate skipped work.
func (r Repo) HasTerminalResult(ctx context.Context, citationID string) (bool, error) {
	var status string
	err := r.DB.QueryRowContext(ctx, `SELECT status FROM verification_results WHERE citation_id=?`, citationID).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return model.VerificationStatus(status).Terminal(), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
