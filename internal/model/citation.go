package model

import "time"

// Citation is a reference inside a case document to an Act's section,
// optionally carrying quoted text. Citations are created by the
// upstream extraction pipeline; this subsystem reads them and attaches
// a VerificationResult, never deletes them.
type Citation struct {
	ID         string    `json:"id"`
	CaseID     string    `json:"case_id"`
	ActName    string    `json:"act_name"`
	Section    string    `json:"section"`
	Subsection string    `json:"subsection,omitempty"` // e.g. "(1)(a)"
	Quote      string    `json:"quote,omitempty"`
	DocumentID string    `json:"document_id"`
	Page       int       `json:"page_number"`
	RegionIDs  []string  `json:"region_ids,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// VerificationStatus is the outcome of one verification attempt.
// section_not_found and act_unavailable are ordinary outcomes, not
// faults; only infrastructure failures travel on the error channel.
type VerificationStatus string

const (
	StatusPending         VerificationStatus = "pending"
	StatusVerified        VerificationStatus = "verified"
	StatusMismatch        VerificationStatus = "mismatch"
	StatusSectionNotFound VerificationStatus = "section_not_found"
	StatusActUnavailable  VerificationStatus = "act_unavailable"
)

// Terminal reports whether the status ends the citation's state machine.
func (s VerificationStatus) Terminal() bool {
	switch s {
	case StatusVerified, StatusMismatch, StatusSectionNotFound, StatusActUnavailable:
		return true
	}
	return false
}

// MatchType classifies how quoted text relates to the statutory text
type MatchType string

const (
	MatchExact      MatchType = "exact"
	MatchParaphrase MatchType = "paraphrase"
	MatchSemantic   MatchType = "semantic" // partial agreement, manual review advised
	MatchMismatch   MatchType = "mismatch"
)

// DifferenceKind classifies one extracted textual difference
type DifferenceKind string

const (
	DiffMissingPhrase DifferenceKind = "missing_phrase" // in the act, absent from the citation
	DiffAddedPhrase   DifferenceKind = "added_phrase"   // in the citation, absent from the act
	DiffNumericValue  DifferenceKind = "numeric_value"
	DiffDateValue     DifferenceKind = "date_value"
)

// Difference is one specific divergence between citation and act text
type Difference struct {
	Kind         DifferenceKind `json:"kind"`
	CitationText string         `json:"citation_text,omitempty"`
	ActText      string         `json:"act_text,omitempty"`
}

// DiffDetail accompanies a mismatch result for display
type DiffDetail struct {
	CitationText string       `json:"citation_text"`
	ActText      string       `json:"act_text"`
	MatchType    MatchType    `json:"match_type"`
	Differences  []Difference `json:"differences,omitempty"`
}

// MatchProvenance records how the section boundary was resolved
type MatchProvenance string

const (
	ProvenancePattern          MatchProvenance = "pattern"
	ProvenanceParentFallback   MatchProvenance = "parent_fallback"   // subsection missing, parent section returned
	ProvenanceSemanticFallback MatchProvenance = "semantic_fallback" // similarity search, reduced confidence
)

// VerificationResult is the one-to-one outcome attached to a Citation.
// A verification attempt either fully overwrites the row or leaves the
// prior result untouched.
type VerificationResult struct {
	CitationID   string             `json:"citation_id"`
	Status       VerificationStatus `json:"status"`
	SectionFound bool               `json:"section_found"`
	MatchedText  string             `json:"matched_text,omitempty"`
	Page         int                `json:"page_number,omitempty"`
	RegionIDs    []string           `json:"region_ids,omitempty"`
	Similarity   int                `json:"similarity_score"` // 0-100
	Explanation  string             `json:"explanation,omitempty"`
	Diff         *DiffDetail        `json:"diff,omitempty"`
	Provenance   MatchProvenance    `json:"provenance,omitempty"`
	Confidence   float64            `json:"confidence,omitempty"`
	// TransientError is set when matching/comparison failed for reasons
	// unrelated to the citation itself; status stays pending and the
	// citation is eligible for a later retry.
	TransientError string    `json:"transient_error,omitempty"`
	VerifiedAt     time.Time `json:"verified_at"`
}
