package compare

import (
	"regexp"
	"strings"
)

// A single-digit difference in an amount or date often leaves two
// texts 95%+ similar while being legally decisive, so extracted
// values get an exact check that overrides any similarity score.

var (
	amountPattern = regexp.MustCompile(`[₹$]\s*[\d,]+(?:\.\d+)?|\b\d{1,3}(?:,\d{2,3})+(?:\.\d+)?\b|\b\d+(?:\.\d+)?\s*(?:rupees|lakh|lakhs|crore|crores|percent|%)\b`)
	datePattern   = regexp.MustCompile(`\b\d{1,2}[./-]\d{1,2}[./-]\d{2,4}\b|\b\d{1,2}(?:st|nd|rd|th)?\s+(?:january|february|march|april|may|june|july|august|september|october|november|december)\s*,?\s*\d{4}\b|\b(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}\s*,?\s*\d{4}\b`)
)

// extractAmounts returns canonical numeric values found in the text
// (digit-grouping commas and currency marks stripped).
func extractAmounts(s string) []string {
	var out []string
	for _, m := range amountPattern.FindAllString(strings.ToLower(s), -1) {
		canon := strings.NewReplacer("₹", "", "$", "", ",", "", " ", "").Replace(m)
		canon = strings.TrimSuffix(canon, "rupees")
		out = append(out, canon)
	}
	return out
}

// extractDates returns canonical date strings (lowercased, separators
// and ordinal suffixes normalized).
func extractDates(s string) []string {
	var out []string
	for _, m := range datePattern.FindAllString(strings.ToLower(s), -1) {
		canon := strings.NewReplacer("/", "-", ".", "-", ",", "", "st ", " ", "nd ", " ", "rd ", " ", "th ", " ").Replace(m)
		out = append(out, strings.Join(strings.Fields(canon), " "))
	}
	return out
}

// valuesAgree reports whether two extracted value sets are compatible:
// one side's values must all appear on the other side. Symmetric under
// argument swap. Empty on either side is vacuously compatible (no
// exact-value check applies).
func valuesAgree(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	return subset(a, b) || subset(b, a)
}

func subset(inner, outer []string) bool {
	set := make(map[string]int, len(outer))
	for _, v := range outer {
		set[v]++
	}
	for _, v := range inner {
		if set[v] == 0 {
			return false
		}
		set[v]--
	}
	return true
}
