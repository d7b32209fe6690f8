package compare

import (
	"strings"
	"unicode"
)

// normalizeText lowercases, strips punctuation, and collapses
// whitespace so surface noise (quotes, OCR artifacts, line breaks)
// does not defeat the exact tier. Digits and currency marks survive:
// they are legally decisive.
func normalizeText(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '₹' || r == '$' || r == '%':
			b.WriteRune(r)
			lastSpace = false
		case r == ',' && !lastSpace:
			// Keep commas inside numbers ("5,00,000"); handled during
			// tokenization for everything else.
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// tokenize splits normalized text into comparison tokens, trimming
// stray commas that survived normalization.
func tokenize(s string) []string {
	fields := strings.Fields(normalizeText(s))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ",")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// containsTokens reports whether needle occurs as a contiguous token
// run inside haystack, allowing a small mismatch budget for OCR noise.
func containsTokens(haystack, needle []string, tolerance float64) bool {
	if len(needle) == 0 {
		return false
	}
	if len(needle) > len(haystack) {
		return false
	}
	budget := int(float64(len(needle)) * tolerance)
	for start := 0; start+len(needle) <= len(haystack); start++ {
		misses := 0
		for i, tok := range needle {
			if haystack[start+i] != tok {
				misses++
				if misses > budget {
					break
				}
			}
		}
		if misses <= budget {
			return true
		}
	}
	return false
}

// jaccard is the lexical fallback similarity when no embedding
// provider is configured.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	inter := 0
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if set[t] && !seen[t] {
			inter++
			seen[t] = true
		}
	}
	union := len(set)
	for _, t := range b {
		if !set[t] && !seen[t] {
			union++
			seen[t] = true
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
