package store

import (
	"context"
	"database/sql"
	"time"

	"lexcheck/internal/model"
)

const batchColumns = `id,act_id,COALESCE(case_id,''),total,completed,failed_at,heartbeat,status,attempts,created_at,updated_at`

// InsertBatchRun creates the run record and its citation membership in
// one transaction, so a resume always sees the full ordered set.
func (r Repo) InsertBatchRun(ctx context.Context, b model.BatchRun, citationIDs []string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := encodeTime(time.Now())
	_, err = tx.ExecContext(ctx, `INSERT INTO batch_runs(id,act_id,case_id,total,completed,failed_at,heartbeat,status,attempts,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.ActID, nullable(b.CaseID), b.Total, b.Completed, b.FailedAt,
		encodeTime(b.Heartbeat), string(b.Status), b.Attempts, now, now)
	if err != nil {
		return err
	}
	for i, id := range citationIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO batch_citations(batch_id,position,citation_id) VALUES (?,?,?)`,
			b.ID, i, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func scanBatch(scan func(dest ...any) error) (model.BatchRun, error) {
	var b model.BatchRun
	var failedAt sql.NullInt64
	var heartbeat, status, created, updated string
	err := scan(&b.ID, &b.ActID, &b.CaseID, &b.Total, &b.Completed, &failedAt,
		&heartbeat, &status, &b.Attempts, &created, &updated)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	if failedAt.Valid {
		v := int(failedAt.Int64)
		b.FailedAt = &v
	}
	b.Heartbeat = decodeTime(heartbeat)
	b.Status = model.BatchStatus(status)
	b.CreatedAt = decodeTime(created)
	b.UpdatedAt = decodeTime(updated)
	return b, nil
}

// GetBatchRun fetches a batch run by id.
func (r Repo) GetBatchRun(ctx context.Context, id string) (model.BatchRun, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batch_runs WHERE id=?`, id)
	return scanBatch(row.Scan)
}

// BatchCitationIDs returns the run's citation ids in batch order.
func (r Repo) BatchCitationIDs(ctx context.Context, batchID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT citation_id FROM batch_citations WHERE batch_id=? ORDER BY position`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AdvanceBatchTx moves the completed counter forward inside a group
// checkpoint transaction. Completed never decreases; the guard also
// keeps a replayed checkpoint from double-counting.
func (r Repo) AdvanceBatchTx(ctx context.Context, tx *sql.Tx, batchID string, completed int) error {
	_, err := tx.ExecContext(ctx, `UPDATE batch_runs SET completed=?, heartbeat=?, updated_at=?
		WHERE id=? AND completed < ? AND ? <= total`,
		completed, encodeTime(time.Now()), encodeTime(time.Now()), batchID, completed, completed)
	return err
}

// TouchBatchHeartbeat refreshes liveness for stall detection.
func (r Repo) TouchBatchHeartbeat(ctx context.Context, batchID string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE batch_runs SET heartbeat=?, updated_at=? WHERE id=?`,
		encodeTime(time.Now()), encodeTime(time.Now()), batchID)
	return err
}

// SetBatchStatus transitions the run's lifecycle state. failedAt is
// recorded only for failed; completed runs clear it.
func (r Repo) SetBatchStatus(ctx context.Context, batchID string, status model.BatchStatus, failedAt *int) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE batch_runs SET status=?, failed_at=?, updated_at=? WHERE id=?`,
		string(status), failedAt, encodeTime(time.Now()), batchID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementBatchAttempts bumps the resume counter and returns the new
// value so the supervisor can enforce the retry budget.
func (r Repo) IncrementBatchAttempts(ctx context.Context, batchID string) (int, error) {
	_, err := r.DB.ExecContext(ctx, `UPDATE batch_runs SET attempts=attempts+1, updated_at=? WHERE id=?`,
		encodeTime(time.Now()), batchID)
	if err != nil {
		return 0, err
	}
	var attempts int
	err = r.DB.QueryRowContext(ctx, `SELECT attempts FROM batch_runs WHERE id=?`, batchID).Scan(&attempts)
	return attempts, err
}

// ListStalledBatchRuns returns running batches whose heartbeat is
// older than the threshold.
func (r Repo) ListStalledBatchRuns(ctx context.Context, olderThan time.Time) ([]model.BatchRun, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+batchColumns+` FROM batch_runs WHERE status=? AND heartbeat < ?`,
		string(model.BatchRunning), encodeTime(olderThan))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BatchRun
	for rows.Next() {
		b, err := scanBatch(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
