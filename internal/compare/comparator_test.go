package compare

import (
	"context"
	"errors"
	"testing"

	"lexcheck/internal/model"
)

func testConfig() model.MatchingConfig {
	return model.MatchingConfig{
		ParaphraseThreshold: 0.85,
		SemanticThreshold:   0.50,
	}
}

// fakeComparer returns a fixed similarity, standing in for the
// embedding engine.
type fakeComparer struct {
	sim float64
	err error
}

func (f fakeComparer) Compare(_ context.Context, _, _ string) (float64, error) {
	return f.sim, f.err
}

const sectionText = "Where any cheque drawn by a person on an account maintained by him " +
	"is returned by the bank unpaid, such person shall be deemed to have committed an offence."

func TestCompare_ExactQuote(t *testing.T) {
	c := New(nil, testConfig())

	quote := "such person shall be deemed to have committed an offence"
	got, err := c.Compare(context.Background(), quote, sectionText)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got.MatchType != model.MatchExact || got.Score != 100 {
		t.Errorf("got %v/%d, want exact/100", got.MatchType, got.Score)
	}
}

func TestCompare_ExactSurvivesPunctuationAndCase(t *testing.T) {
	c := New(nil, testConfig())

	quote := `"Such person SHALL be deemed, to have committed an offence."`
	got, err := c.Compare(context.Background(), quote, sectionText)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got.MatchType != model.MatchExact {
		t.Errorf("punctuation/case variation broke the exact tier: %v", got.MatchType)
	}
}

func TestCompare_NumericValueOverride(t *testing.T) {
	// High wording similarity must not mask a different amount.
	c := New(fakeComparer{sim: 0.99}, testConfig())

	quote := "the penalty shall be ₹5,00,000 payable forthwith"
	section := "the penalty shall be ₹8,00,000 payable forthwith"
	got, err := c.Compare(context.Background(), quote, section)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got.MatchType != model.MatchMismatch {
		t.Fatalf("amount difference classified as %v, want mismatch", got.MatchType)
	}
	if got.Score >= 50 {
		t.Errorf("mismatch score %d, want below the semantic band", got.Score)
	}
	foundNumeric := false
	for _, d := range got.Differences {
		if d.Kind == model.DiffNumericValue {
			foundNumeric = true
		}
	}
	if !foundNumeric {
		t.Errorf("differences %v missing numeric_value entry", got.Differences)
	}
}

func TestCompare_DateValueOverride(t *testing.T) {
	c := New(fakeComparer{sim: 0.99}, testConfig())

	quote := "this act comes into force on 1st April 1990"
	section := "this act comes into force on 1st April 1991"
	got, err := c.Compare(context.Background(), quote, section)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got.MatchType != model.MatchMismatch {
		t.Errorf("date difference classified as %v, want mismatch", got.MatchType)
	}
}

func TestCompare_ParaphraseBand(t *testing.T) {
	c := New(fakeComparer{sim: 0.90}, testConfig())

	got, err := c.Compare(context.Background(),
		"a dishonoured cheque is treated as an offence by the drawer",
		sectionText)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got.MatchType != model.MatchParaphrase {
		t.Fatalf("got %v, want paraphrase", got.MatchType)
	}
	if got.Score < 85 || got.Score > 99 {
		t.Errorf("paraphrase score %d outside 85-99", got.Score)
	}
}

func TestCompare_SemanticBand(t *testing.T) {
	c := New(fakeComparer{sim: 0.60}, testConfig())

	got, err := c.Compare(context.Background(),
		"banks may refuse payment in some situations",
		sectionText)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got.MatchType != model.MatchSemantic {
		t.Fatalf("got %v, want semantic", got.MatchType)
	}
	if got.Score < 50 || got.Score > 84 {
		t.Errorf("semantic score %d outside 50-84", got.Score)
	}
}

func TestCompare_MismatchCarriesDifferences(t *testing.T) {
	c := New(fakeComparer{sim: 0.10}, testConfig())

	got, err := c.Compare(context.Background(),
		"the registrar shall maintain a public register of all licensed vendors",
		sectionText)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got.MatchType != model.MatchMismatch {
		t.Fatalf("got %v, want mismatch", got.MatchType)
	}
	if got.Score >= 50 {
		t.Errorf("mismatch score %d, want below 50", got.Score)
	}
	if len(got.Differences) == 0 {
		t.Error("mismatch result carries no differences")
	}
}

// Exact and mismatch outcomes must not depend on argument order.
func TestCompare_SymmetricTiers(t *testing.T) {
	exact := New(nil, testConfig())
	quote := "such person shall be deemed to have committed an offence"

	a, _ := exact.Compare(context.Background(), quote, sectionText)
	b, _ := exact.Compare(context.Background(), sectionText, quote)
	if a.MatchType != b.MatchType {
		t.Errorf("exact tier asymmetric: %v vs %v", a.MatchType, b.MatchType)
	}

	mism := New(fakeComparer{sim: 0.99}, testConfig())
	c1, _ := mism.Compare(context.Background(), "a fine of ₹5,00,000 applies", "a fine of ₹8,00,000 applies")
	c2, _ := mism.Compare(context.Background(), "a fine of ₹8,00,000 applies", "a fine of ₹5,00,000 applies")
	if c1.MatchType != model.MatchMismatch || c2.MatchType != model.MatchMismatch {
		t.Errorf("value override asymmetric: %v vs %v", c1.MatchType, c2.MatchType)
	}
}

func TestCompare_EngineErrorPropagates(t *testing.T) {
	wantErr := errors.New("provider down")
	c := New(fakeComparer{err: wantErr}, testConfig())

	_, err := c.Compare(context.Background(), "completely unrelated words here", sectionText)
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped provider error", err)
	}
}

func TestCompare_LexicalFallbackWithoutEngine(t *testing.T) {
	c := New(nil, testConfig())

	// Near-total token overlap but not contiguous: the jaccard
	// fallback should land above mismatch.
	got, err := c.Compare(context.Background(),
		"any cheque drawn by a person on an account maintained by him is returned unpaid by the bank",
		sectionText)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got.MatchType == model.MatchExact {
		t.Fatalf("reordered text should not be exact")
	}
	if got.Score < 50 {
		t.Errorf("high-overlap fallback score %d, want at least semantic band", got.Score)
	}
}

func TestValuesAgree(t *testing.T) {
	cases := []struct {
		a, b []string
		want bool
	}{
		{nil, []string{"500000"}, true}, // vacuous
		{[]string{"500000"}, []string{"500000"}, true},
		{[]string{"500000"}, []string{"800000"}, false},
		{[]string{"500000"}, []string{"500000", "100"}, true}, // subset
	}
	for _, tc := range cases {
		if got := valuesAgree(tc.a, tc.b); got != tc.want {
			t.Errorf("valuesAgree(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
		if got := valuesAgree(tc.b, tc.a); got != tc.want {
			t.Errorf("valuesAgree(%v, %v) = %v, want %v (swapped)", tc.b, tc.a, got, tc.want)
		}
	}
}

func TestExtractAmounts_IndianGrouping(t *testing.T) {
	amounts := extractAmounts("a fine which may extend to ₹5,00,000 or 2 lakhs")
	if len(amounts) < 2 {
		t.Fatalf("amounts = %v, want currency and lakh values", amounts)
	}
	if amounts[0] != "500000" {
		t.Errorf("canonical amount = %q, want 500000", amounts[0])
	}
}
