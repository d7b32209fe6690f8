package model

import (
	"regexp"
	"strings"
	"time"
)

// IndexStatus tracks whether an Act's section index is usable
type IndexStatus string

const (
	IndexStatusNotIndexed IndexStatus = "not_indexed"
	IndexStatusIndexed    IndexStatus = "indexed"
	IndexStatusStale      IndexStatus = "stale" // source text changed, rebuild required
)

// Act is a statutory reference document containing numbered sections
type Act struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`                  // Display name, e.g. "Negotiable Instruments Act, 1881"
	NormKey     string      `json:"norm_key"`              // Normalized name for fuzzy lookup
	DocumentID  string      `json:"document_id"`           // Source document in the upload pipeline
	Fingerprint string      `json:"fingerprint,omitempty"` // Hash of source segments; a change marks the index stale
	IndexStatus IndexStatus `json:"index_status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

var actNameNoise = regexp.MustCompile(`[^a-z0-9 ]+`)

// NormalizeActName produces the lookup key for fuzzy act-name matching:
// lowercase, punctuation stripped, "the"/"act" noise words and years
// removed, whitespace collapsed.
func NormalizeActName(name string) string {
	s := strings.ToLower(name)
	s = actNameNoise.ReplaceAllString(s, " ")
	var kept []string
	for _, w := range strings.Fields(s) {
		switch w {
		case "the", "act", "of":
			continue
		}
		if len(w) == 4 && w >= "1500" && w <= "2999" {
			continue // year
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
