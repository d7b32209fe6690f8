package server

import (
	"time"

	"lexcheck/internal/model"
)

// IngestActRequest registers an act from inline segments or a URL.
type IngestActRequest struct {
	Name       string          `json:"name,omitempty"`
	DocumentID string          `json:"document_id,omitempty"`
	URL        string          `json:"url,omitempty"`
	Segments   []model.Segment `json:"segments,omitempty"`
}

// ActResponse is the act resource
type ActResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DocumentID  string `json:"document_id,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	IndexStatus string `json:"index_status"`
	UpdatedAt   string `json:"updated_at"`
}

// StartBatchRequest selects the citations to verify. An empty list
// means every pending citation naming the act.
type StartBatchRequest struct {
	CitationIDs []string `json:"citation_ids,omitempty"`
	CaseID      string   `json:"case_id,omitempty"`
}

// BatchStartedResponse acknowledges an accepted batch run
type BatchStartedResponse struct {
	BatchID string `json:"batch_id"`
	Total   int    `json:"total"`
}

// ImportCitationsRequest carries extracted citations
type ImportCitationsRequest struct {
	Citations []model.Citation `json:"citations"`
}

// ImportCitationsResponse reports the import count
type ImportCitationsResponse struct {
	Imported int `json:"imported"`
}

// VerifySingleRequest optionally pins the act; when omitted, the act
// is resolved from the citation's act name.
type VerifySingleRequest struct {
	ActID string `json:"act_id,omitempty"`
}

// ResultResponse is a verification result resource
type ResultResponse struct {
	CitationID   string            `json:"citation_id"`
	Status       string            `json:"status"`
	SectionFound bool              `json:"section_found"`
	MatchedText  string            `json:"matched_text,omitempty"`
	Page         int               `json:"page_number,omitempty"`
	RegionIDs    []string          `json:"region_ids,omitempty"`
	Similarity   int               `json:"similarity_score"`
	Explanation  string            `json:"explanation,omitempty"`
	Diff         *model.DiffDetail `json:"diff,omitempty"`
	Provenance   string            `json:"provenance,omitempty"`
	Confidence   float64           `json:"confidence,omitempty"`
	VerifiedAt   string            `json:"verified_at"`
}

// BatchResponse is a batch run resource
type BatchResponse struct {
	ID        string `json:"id"`
	ActID     string `json:"act_id"`
	CaseID    string `json:"case_id,omitempty"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	FailedAt  *int   `json:"failed_at,omitempty"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	Heartbeat string `json:"heartbeat"`
	UpdatedAt string `json:"updated_at"`
}

func actResponse(a model.Act) ActResponse {
	return ActResponse{
		ID:          a.ID,
		Name:        a.Name,
		DocumentID:  a.DocumentID,
		Fingerprint: a.Fingerprint,
		IndexStatus: string(a.IndexStatus),
		UpdatedAt:   a.UpdatedAt.Format(time.RFC3339),
	}
}

func resultResponse(r model.VerificationResult) ResultResponse {
	return ResultResponse{
		CitationID:   r.CitationID,
		Status:       string(r.Status),
		SectionFound: r.SectionFound,
		MatchedText:  r.MatchedText,
		Page:         r.Page,
		RegionIDs:    r.RegionIDs,
		Similarity:   r.Similarity,
		Explanation:  r.Explanation,
		Diff:         r.Diff,
		Provenance:   string(r.Provenance),
		Confidence:   r.Confidence,
		VerifiedAt:   r.VerifiedAt.Format(time.RFC3339),
	}
}

func batchResponse(b model.BatchRun) BatchResponse {
	return BatchResponse{
		ID:        b.ID,
		ActID:     b.ActID,
		CaseID:    b.CaseID,
		Total:     b.Total,
		Completed: b.Completed,
		FailedAt:  b.FailedAt,
		Status:    string(b.Status),
		Attempts:  b.Attempts,
		Heartbeat: b.Heartbeat.Format(time.RFC3339),
		UpdatedAt: b.UpdatedAt.Format(time.RFC3339),
	}
}
