package cleaning

import (
	"strings"

	"github.com/kirillkom/policy-query/internal/core/domain"
)

// PageSeparator delimits pages in raw extractor output.
const PageSeparator = "\f"

const maxPasses = 32

type line struct {
	text  string
	page  int
	pages int
	blank bool
}

type pass struct {
	name string
	fn   func([]line, *domain.CleaningReport) []line
}

// Cleaner runs the line passes in order. The zero value is not usable; use New.
type Cleaner struct {
	passes []pass
}

func New() *Cleaner {
	return &Cleaner{
		passes: []pass{
			{name: "dedup_cross_page", fn: dedupCrossPage},
			{name: "drop_boilerplate", fn: dropBoilerplate},
			{name: "normalize_spacing", fn: normalizeSpacing},
			{name: "repair_reading_order", fn: repairReadingOrder},
		},
	}
}

func (c *Cleaner) Clean(raw string) string {
	out, _ := c.CleanWithReport(raw)
	return out
}

// CleanWithReport applies the passes until the text reaches a fixed point,
// so Clean(Clean(x)) == Clean(x).
func (c *Cleaner) CleanWithReport(raw string) (string, domain.CleaningReport) {
	var report domain.CleaningReport
	current := raw
	for i := 0; i < maxPasses; i++ {
		lines := parse(current)
		if i == 0 {
			report.InputLines = countNonBlank(lines)
		}
		for _, p := range c.passes {
			lines = p.fn(lines, &report)
		}
		next := render(lines)
		if next == current {
			break
		}
		current = next
	}
	report.Warnings = warningsFor(report, current)
	return current, report
}

func parse(text string) []line {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	pages := strings.Split(text, PageSeparator)

	out := make([]line, 0, strings.Count(text, "\n")+len(pages))
	for pageIdx, page := range pages {
		for _, raw := range strings.Split(page, "\n") {
			trimmed := strings.TrimSpace(raw)
			out = append(out, line{
				text:  trimmed,
				page:  pageIdx,
				pages: 1,
				blank: trimmed == "",
			})
		}
	}
	return out
}

// render joins lines inside a paragraph with '\n' and paragraphs with a blank line.
func render(lines []line) string {
	var b strings.Builder
	pendingBreak := false
	for _, l := range lines {
		if l.blank {
			pendingBreak = b.Len() > 0
			continue
		}
		if b.Len() > 0 {
			if pendingBreak {
				b.WriteString("\n\n")
			} else {
				b.WriteString("\n")
			}
		}
		pendingBreak = false
		b.WriteString(l.text)
	}
	return b.String()
}

func countNonBlank(lines []line) int {
	n := 0
	for _, l := range lines {
		if !l.blank {
			n++
		}
	}
	return n
}

func warningsFor(report domain.CleaningReport, cleaned string) []domain.CleaningWarning {
	var warnings []domain.CleaningWarning
	removed := report.DuplicateLines + report.BoilerplateLines
	if report.InputLines > 0 && removed*2 > report.InputLines {
		warnings = append(warnings, domain.CleaningWarning{
			Pass:    "drop_boilerplate",
			Message: "more than half of the lines were removed as duplicates or boilerplate",
		})
	}
	if report.InputLines > 0 && cleaned == "" {
		warnings = append(warnings, domain.CleaningWarning{
			Pass:    "render",
			Message: "cleaning produced empty text",
		})
	}
	return warnings
}
