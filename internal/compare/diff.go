package compare

import (
	"strings"

	"lexcheck/internal/model"
)

// extractDifferences computes the minimal phrase-level divergences for
// a mismatch: token runs present in only one text, plus any numeric or
// date discrepancies. Token alignment uses a plain LCS; quotes are
// short so the quadratic table is cheap.
func extractDifferences(citationText, actText string) []model.Difference {
	var diffs []model.Difference

	citAmounts, actAmounts := extractAmounts(citationText), extractAmounts(actText)
	if !valuesAgree(citAmounts, actAmounts) {
		diffs = append(diffs, model.Difference{
			Kind:         model.DiffNumericValue,
			CitationText: strings.Join(citAmounts, ", "),
			ActText:      strings.Join(actAmounts, ", "),
		})
	}
	citDates, actDates := extractDates(citationText), extractDates(actText)
	if !valuesAgree(citDates, actDates) {
		diffs = append(diffs, model.Difference{
			Kind:         model.DiffDateValue,
			CitationText: strings.Join(citDates, ", "),
			ActText:      strings.Join(actDates, ", "),
		})
	}

	cit, act := tokenize(citationText), tokenize(actText)
	for _, run := range diffRuns(cit, act) {
		if run.added {
			diffs = append(diffs, model.Difference{
				Kind:         model.DiffAddedPhrase,
				CitationText: strings.Join(run.tokens, " "),
			})
		} else {
			diffs = append(diffs, model.Difference{
				Kind:    model.DiffMissingPhrase,
				ActText: strings.Join(run.tokens, " "),
			})
		}
	}
	return diffs
}

type tokenRun struct {
	added  bool // present in the citation only; otherwise act only
	tokens []string
}

func diffRuns(cit, act []string) []tokenRun {
	n, m := len(cit), len(act)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if cit[i] == act[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var runs []tokenRun
	flush := func(added bool, tokens []string) {
		if len(tokens) == 0 {
			return
		}
		// Single stray tokens are noise; phrases of two or more are
		// worth surfacing. Numbers always surface.
		if len(tokens) == 1 && !strings.ContainsAny(tokens[0], "0123456789") {
			return
		}
		runs = append(runs, tokenRun{added: added, tokens: tokens})
	}

	i, j := 0, 0
	var pendingAdded, pendingMissing []string
	for i < n && j < m {
		switch {
		case cit[i] == act[j]:
			flush(true, pendingAdded)
			flush(false, pendingMissing)
			pendingAdded, pendingMissing = nil, nil
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			pendingAdded = append(pendingAdded, cit[i])
			i++
		default:
			pendingMissing = append(pendingMissing, act[j])
			j++
		}
	}
	pendingAdded = append(pendingAdded, cit[i:]...)
	pendingMissing = append(pendingMissing, act[j:]...)
	flush(true, pendingAdded)
	flush(false, pendingMissing)
	return runs
}
