package index

import (
	"regexp"
	"strings"
)

// Section references arrive in many surface forms: "Section 138(1)",
// "Sec. 138", "138. ", "[Section 138]", "s. 138(1)(a)", "138.1(a)".
// They all normalize to a dotted path: "138", "138.1", "138.1.a".

var (
	sectionPrefix = regexp.MustCompile(`(?i)^\s*\[?\s*(?:section|sec\.?|s\.)\s*`)
	sectionToken  = regexp.MustCompile(`^(\d+[A-Za-z]{0,2})((?:\s*[\(\.][^\s\)]*\)?)*)`)
	suffixPart    = regexp.MustCompile(`[\(\.]\s*([0-9a-zA-Z]+)\s*\)?`)
)

// NormalizeKey canonicalizes a section reference into a dotted path.
// Unparseable input is lowercased and trimmed as a raw key so it still
// travels the same lookup pipeline.
func NormalizeKey(ref string) string {
	s := strings.TrimSpace(ref)
	s = sectionPrefix.ReplaceAllString(s, "")
	s = strings.TrimSpace(strings.TrimSuffix(s, "]"))

	m := sectionToken.FindStringSubmatch(s)
	if m == nil {
		return strings.ToLower(s)
	}

	parts := []string{strings.ToUpper(m[1])}
	for _, sub := range suffixPart.FindAllStringSubmatch(m[2], -1) {
		parts = append(parts, strings.ToLower(sub[1]))
	}
	return strings.Join(parts, ".")
}

// ParentKeys returns progressively broader keys for relaxed matching:
// "138.1.a" -> ["138.1", "138"]. An undotted key has no parents.
func ParentKeys(key string) []string {
	var parents []string
	for {
		i := strings.LastIndex(key, ".")
		if i < 0 {
			return parents
		}
		key = key[:i]
		parents = append(parents, key)
	}
}

// JoinKey combines a section number with an optional subsection/clause
// suffix, e.g. ("138", "(1)(a)") -> "138.1.a".
func JoinKey(section, subsection string) string {
	if strings.TrimSpace(subsection) == "" {
		return NormalizeKey(section)
	}
	return NormalizeKey(section + subsection)
}
