package cleaning

import (
	"strings"
	"testing"
)

func TestCleanDropsRepeatedHeadersAndPageNumbers(t *testing.T) {
	raw := strings.Join([]string{
		"ACME Insurance Policy\nDeductible: $500 per incident.\n1",
		"ACME Insurance Policy\nCoverage limit is $5,000.\nPage 2 of 2",
	}, PageSeparator)

	got := New().Clean(raw)
	want := "Deductible: $500 per incident.\nCoverage limit is $5,000."
	if got != want {
		t.Fatalf("Clean() = %q, want %q", got, want)
	}
}

func TestCleanKeepsFirstCopyOfLongRepeatedLine(t *testing.T) {
	long := "This paragraph was captured twice because the scanner overlapped two consecutive pages of the policy booklet."
	raw := long + PageSeparator + long + "\nEnd of policy."

	got := New().Clean(raw)
	if strings.Count(got, "scanner overlapped") != 1 {
		t.Fatalf("expected a single copy of the repeated line, got %q", got)
	}
}

func TestCleanMergesBrokenSentences(t *testing.T) {
	raw := "The insured must notify the\ncompany within thirty days.\n\nClaims are paid monthly."
	got := New().Clean(raw)
	want := "The insured must notify the company within thirty days.\n\nClaims are paid monthly."
	if got != want {
		t.Fatalf("Clean() = %q, want %q", got, want)
	}
}

func TestCleanJoinsHyphenatedLineBreak(t *testing.T) {
	got := New().Clean("Water damage is not cov-\nered by this policy.")
	if got != "Water damage is not covered by this policy." {
		t.Fatalf("unexpected hyphen repair: %q", got)
	}
}

func TestCleanNormalizesPunctuationSpacing(t *testing.T) {
	got := New().Clean("Total  cost ,including tax ;is   \u201cfixed\u201d .")
	want := `Total cost, including tax; is "fixed".`
	if got != want {
		t.Fatalf("Clean() = %q, want %q", got, want)
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"   \n\n  ",
		"Page\n3\nsomething without end",
		"Header\nBody line one\nbody line two.\fHeader\n- 2 -\nMore text ,here",
		"A ,,b\n\n\nC\u00a0\u00a0d -\nx\fA ,,b",
		"Section 1\nPage\n4\n\nThe \ufb01nal clause applies.\f12\nThe \ufb01nal clause applies.",
	}
	c := New()
	for _, in := range inputs {
		once := c.Clean(in)
		twice := c.Clean(once)
		if once != twice {
			t.Fatalf("Clean not idempotent for %q:\nonce=%q\ntwice=%q", in, once, twice)
		}
	}
}

func TestCleanWithReportCountsPasses(t *testing.T) {
	raw := "Header\nFirst sentence\ncontinues here.\fHeader\n7\nSecond page."
	_, report := New().CleanWithReport(raw)

	if report.InputLines != 6 {
		t.Fatalf("expected 6 input lines, got %d", report.InputLines)
	}
	if report.DuplicateLines != 1 {
		t.Fatalf("expected 1 duplicate line, got %d", report.DuplicateLines)
	}
	if report.BoilerplateLines != 2 {
		t.Fatalf("expected 2 boilerplate lines, got %d", report.BoilerplateLines)
	}
	if report.MergedLines != 1 {
		t.Fatalf("expected 1 merged line, got %d", report.MergedLines)
	}
}

func TestCleanWarnsWhenMostLinesRemoved(t *testing.T) {
	raw := "Header\n1\fHeader\n2\fHeader\n3\nOnly content."
	_, report := New().CleanWithReport(raw)
	if len(report.Warnings) == 0 {
		t.Fatalf("expected cleaning warning")
	}
}

func TestIsPageNumber(t *testing.T) {
	cases := map[string]bool{
		"12":          true,
		"page 3":      true,
		"page 3 of 9": true,
		"3/9":         true,
		"- 4 -":       true,
		"$500":        false,
		"section 2":   false,
		"deductible":  false,
	}
	for in, want := range cases {
		if got := isPageNumber(in); got != want {
			t.Fatalf("isPageNumber(%q) = %v, want %v", in, got, want)
		}
	}
}
