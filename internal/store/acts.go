package store

import (
	"context"
	"database/sql"
	"time"

	"lexcheck/internal/model"
)

// UpsertAct inserts or replaces an act record.
func (r Repo) UpsertAct(ctx context.Context, a model.Act) error {
	if a.NormKey == "" {
		a.NormKey = model.NormalizeActName(a.Name)
	}
	now := encodeTime(time.Now())
	created := now
	if !a.CreatedAt.IsZero() {
		created = encodeTime(a.CreatedAt)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO acts(id,name,norm_key,document_id,fingerprint,index_status,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, norm_key=excluded.norm_key,
			document_id=excluded.document_id, fingerprint=excluded.fingerprint,
			index_status=excluded.index_status, updated_at=excluded.updated_at`,
		a.ID, a.Name, a.NormKey, a.DocumentID, a.Fingerprint, string(a.IndexStatus), created, now)
	return err
}

func scanAct(row *sql.Row) (model.Act, error) {
	var a model.Act
	var status, created, updated string
	err := row.Scan(&a.ID, &a.Name, &a.NormKey, &a.DocumentID, &a.Fingerprint, &status, &created, &updated)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.IndexStatus = model.IndexStatus(status)
	a.CreatedAt = decodeTime(created)
	a.UpdatedAt = decodeTime(updated)
	return a, nil
}

const actColumns = `id,name,norm_key,document_id,fingerprint,index_status,created_at,updated_at`

// GetAct fetches an act by id.
func (r Repo) GetAct(ctx context.Context, id string) (model.Act, error) {
	return scanAct(r.DB.QueryRowContext(ctx, `SELECT `+actColumns+` FROM acts WHERE id=?`, id))
}

// FindActByName resolves an act by its normalized display name.
func (r Repo) FindActByName(ctx context.Context, name string) (model.Act, error) {
	key := model.NormalizeActName(name)
	return scanAct(r.DB.QueryRowContext(ctx, `SELECT `+actColumns+` FROM acts WHERE norm_key=? ORDER BY updated_at DESC LIMIT 1`, key))
}

// SetActIndexStatus records the indexing outcome and fingerprint.
func (r Repo) SetActIndexStatus(ctx context.Context, id string, status model.IndexStatus, fingerprint string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE acts SET index_status=?, fingerprint=?, updated_at=? WHERE id=?`,
		string(status), fingerprint, encodeTime(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceActSegments swaps the cached source segments for an act in
// one transaction: the previous set is fully replaced, never patched.
func (r Repo) ReplaceActSegments(ctx context.Context, actID string, segments []model.Segment) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM act_segments WHERE act_id=?`, actID); err != nil {
		return err
	}
	for i, seg := range segments {
		if _, err := tx.ExecContext(ctx, `INSERT INTO act_segments(act_id,position,page_number,region_ids,text) VALUES (?,?,?,?,?)`,
			actID, i, seg.Page, encodeStrings(seg.RegionIDs), seg.Text); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetActSegments returns the act's source segments in page order.
func (r Repo) GetActSegments(ctx context.Context, actID string) ([]model.Segment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT page_number,region_ids,text FROM act_segments WHERE act_id=? ORDER BY position`, actID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var segments []model.Segment
	for rows.Next() {
		var seg model.Segment
		var regions sql.NullString
		if err := rows.Scan(&seg.Page, &regions, &seg.Text); err != nil {
			return nil, err
		}
		seg.RegionIDs = decodeStrings(regions)
		seg.DocumentID = actID
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}
