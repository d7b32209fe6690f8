package store

import (
	"context"
	"database/sql"
	"time"

	"lexcheck/internal/model"
)

const citationColumns = `id,case_id,act_name,act_key,section,COALESCE(subsection,''),COALESCE(quote,''),document_id,page_number,region_ids,created_at`

// InsertCitation stores one extracted citation.
func (r Repo) InsertCitation(ctx context.Context, c model.Citation) error {
	created := encodeTime(time.Now())
	if !c.CreatedAt.IsZero() {
		created = encodeTime(c.CreatedAt)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO citations(id,case_id,act_name,act_key,section,subsection,quote,document_id,page_number,region_ids,created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.CaseID, c.ActName, model.NormalizeActName(c.ActName), c.Section, nullable(c.Subsection), nullable(c.Quote),
		c.DocumentID, c.Page, encodeStrings(c.RegionIDs), created)
	return err
}

func scanCitation(scan func(dest ...any) error) (model.Citation, error) {
	var c model.Citation
	var regions sql.NullString
	var created string
	var actKey string
	err := scan(&c.ID, &c.CaseID, &c.ActName, &actKey, &c.Section, &c.Subsection, &c.Quote,
		&c.DocumentID, &c.Page, &regions, &created)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.RegionIDs = decodeStrings(regions)
	c.CreatedAt = decodeTime(created)
	return c, nil
}

// GetCitation fetches a citation by id.
func (r Repo) GetCitation(ctx context.Context, id string) (model.Citation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+citationColumns+` FROM citations WHERE id=?`, id)
	return scanCitation(row.Scan)
}

func (r Repo) queryCitations(ctx context.Context, query string, args ...any) ([]model.Citation, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Citation
	for rows.Next() {
		c, err := scanCitation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCitationsByCase returns all citations for a case/matter.
func (r Repo) ListCitationsByCase(ctx context.Context, caseID string) ([]model.Citation, error) {
	return r.queryCitations(ctx, `SELECT `+citationColumns+` FROM citations WHERE case_id=? ORDER BY created_at`, caseID)
}

// ListPendingCitationsByAct returns citations naming the act that have
// no terminal verification result yet, in creation order.
func (r Repo) ListPendingCitationsByAct(ctx context.Context, normActKey string) ([]model.Citation, error) {
	return r.queryCitations(ctx, `
		SELECT `+citationColumns+` FROM citations c
		WHERE c.act_key = ?
		  AND NOT EXISTS (
			SELECT 1 FROM verification_results vr
			WHERE vr.citation_id = c.id AND vr.status != 'pending'
		  )
		ORDER BY c.created_at`, normActKey)
}
