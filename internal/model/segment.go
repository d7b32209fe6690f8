package model

// Segment is one page-ordered text span produced by the upstream
// document/OCR pipeline. Segments arrive already ordered by page and
// position; this subsystem never reorders them.
type Segment struct {
	DocumentID string   `json:"document_id"`
	Page       int      `json:"page_number"`
	RegionIDs  []string `json:"region_ids,omitempty"`
	Text       string   `json:"text"`
}
