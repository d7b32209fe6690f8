package index

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"lexcheck/internal/model"
)

// PreambleKey collects segments appearing before the first section
// header so no input text is ever dropped.
const PreambleKey = "_preamble"

// headerPatterns are tried in priority order against the leading text
// of each segment. Group 1 captures the section token.
var headerPatterns = []*regexp.Regexp{
	// "Section 138(1)", "[Section 138]", "Sec. 138", "S. 138."
	regexp.MustCompile(`^\s*\[?\s*(?:Section|SECTION|Sec\.?|S\.)\s+(\d+[A-Za-z]{0,2}(?:\s*\([0-9a-zA-Z]+\))*)\s*\]?\s*[.:\-]?`),
	// "138. Dishonour of cheque ..." — bare numbered heading.
	regexp.MustCompile(`^\s*(\d+[A-Za-z]{0,2}(?:\([0-9a-zA-Z]+\))*)\.\s+\S`),
}

// SectionBoundary is one located section inside an indexed act.
// Start/End are ordinal segment identifiers within the act's stream.
type SectionBoundary struct {
	Key        string                `json:"key"`
	Heading    string                `json:"heading"`       // raw token as it appeared
	Start      int                   `json:"start_segment"` // inclusive
	End        int                   `json:"end_segment"`   // inclusive
	PageStart  int                   `json:"page_start"`
	PageEnd    int                   `json:"page_end"`
	RegionIDs  []string              `json:"region_ids,omitempty"`
	Text       string                `json:"text"`
	Confidence float64               `json:"confidence"` // 1.0 for pattern match, lower for fallbacks
	Provenance model.MatchProvenance `json:"provenance"`
}

// SectionIndex maps normalized section keys to their boundaries,
// ordered by first occurrence. Segments are retained for the semantic
// fallback path.
type SectionIndex struct {
	ActID       string                       `json:"act_id"`
	Fingerprint string                       `json:"fingerprint"`
	Keys        []string                     `json:"keys"` // insertion order
	Boundaries  map[string][]SectionBoundary `json:"boundaries"`
	Segments    []model.Segment              `json:"segments"`
	BuiltAt     time.Time                    `json:"built_at"`
}

// Empty reports whether pattern matching found no sections at all.
// Not an error: the matcher's semantic fallback compensates.
func (ix *SectionIndex) Empty() bool {
	for _, k := range ix.Keys {
		if k != PreambleKey {
			return false
		}
	}
	return true
}

// Lookup returns all boundaries for a normalized key.
func (ix *SectionIndex) Lookup(key string) []SectionBoundary {
	return ix.Boundaries[key]
}

// Fingerprint hashes the ordered segment text so index staleness can
// be detected when a source document changes.
func Fingerprint(segments []model.Segment) string {
	h := sha256.New()
	for _, seg := range segments {
		h.Write([]byte(seg.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MatchHeader tests the prioritized header patterns against a
// segment's leading text, returning the raw section token.
func MatchHeader(text string) (token string, ok bool) {
	head := text
	if len(head) > 200 {
		head = head[:200]
	}
	for _, pat := range headerPatterns {
		if m := pat.FindStringSubmatch(head); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

// Build scans segments in page order and produces the section index.
// Deterministic for identical input; every segment is attributed to
// exactly one boundary (the preamble if no header has matched yet).
func Build(actID string, segments []model.Segment) *SectionIndex {
	ix := &SectionIndex{
		ActID:       actID,
		Fingerprint: Fingerprint(segments),
		Boundaries:  make(map[string][]SectionBoundary),
		Segments:    segments,
		BuiltAt:     time.Now().UTC(),
	}

	var open *boundaryDraft
	for i, seg := range segments {
		if token, ok := MatchHeader(seg.Text); ok {
			if open != nil {
				ix.append(open.close())
			}
			open = newDraft(NormalizeKey(token), token, i, seg)
			continue
		}
		if open == nil {
			open = newDraft(PreambleKey, "", i, seg)
			continue
		}
		open.extend(i, seg)
	}
	if open != nil {
		ix.append(open.close())
	}
	return ix
}

func (ix *SectionIndex) append(b SectionBoundary) {
	if _, seen := ix.Boundaries[b.Key]; !seen {
		ix.Keys = append(ix.Keys, b.Key)
	}
	// Repeated keys (amendments, repeated headers) accumulate rather
	// than overwrite, ordered by first occurrence.
	ix.Boundaries[b.Key] = append(ix.Boundaries[b.Key], b)
}

type boundaryDraft struct {
	b     SectionBoundary
	texts []string
}

func newDraft(key, heading string, pos int, seg model.Segment) *boundaryDraft {
	return &boundaryDraft{
		b: SectionBoundary{
			Key:        key,
			Heading:    heading,
			Start:      pos,
			End:        pos,
			PageStart:  seg.Page,
			PageEnd:    seg.Page,
			RegionIDs:  append([]string(nil), seg.RegionIDs...),
			Confidence: 1.0,
			Provenance: model.ProvenancePattern,
		},
		texts: []string{seg.Text},
	}
}

func (d *boundaryDraft) extend(pos int, seg model.Segment) {
	d.b.End = pos
	if seg.Page > d.b.PageEnd {
		d.b.PageEnd = seg.Page
	}
	d.b.RegionIDs = append(d.b.RegionIDs, seg.RegionIDs...)
	d.texts = append(d.texts, seg.Text)
}

func (d *boundaryDraft) close() SectionBoundary {
	d.b.Text = strings.Join(d.texts, "\n")
	return d.b
}
