package cleaning

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/policy-query/internal/core/domain"
)

// maxBoilerplateRunes bounds how long a repeated header or footer may be.
const maxBoilerplateRunes = 80

var (
	pageNumberPattern   = regexp.MustCompile(`^(page|pg\.?|p\.)?\s*\d{1,4}(\s*(of|/)\s*\d{1,4})?$`)
	dashedNumberPattern = regexp.MustCompile(`^[-_\s]*\d{1,4}[-_\s]*$`)
	numericOnlyPattern  = regexp.MustCompile(`^[\d\s.,/-]{1,12}$`)

	spaceBeforePunct = regexp.MustCompile(`\s+([,.;:!?])`)
	missingSpace     = regexp.MustCompile(`([,;!?])(\pL)`)

	glyphReplacer = strings.NewReplacer(
		"\ufb01", "fi",
		"\ufb02", "fl",
		"\ufb00", "ff",
		"\ufb03", "ffi",
		"\ufb04", "ffl",
		"\u2018", "'",
		"\u2019", "'",
		"\u201c", `"`,
		"\u201d", `"`,
		"\u2013", "-",
		"\u2014", "-",
		"\u00a0", " ",
		"\t", " ",
	)
)

func dedupCrossPage(lines []line, report *domain.CleaningReport) []line {
	pagesByKey := make(map[string]map[int]struct{}, len(lines))
	for _, l := range lines {
		if l.blank {
			continue
		}
		key := lineKey(l.text)
		set, ok := pagesByKey[key]
		if !ok {
			set = make(map[int]struct{}, 1)
			pagesByKey[key] = set
		}
		set[l.page] = struct{}{}
	}

	firstPage := make(map[string]int, len(pagesByKey))
	out := make([]line, 0, len(lines))
	for _, l := range lines {
		if l.blank {
			out = append(out, l)
			continue
		}
		key := lineKey(l.text)
		if page, seen := firstPage[key]; seen && page != l.page {
			report.DuplicateLines++
			continue
		}
		if _, seen := firstPage[key]; !seen {
			firstPage[key] = l.page
		}
		l.pages = len(pagesByKey[key])
		out = append(out, l)
	}
	return out
}

func dropBoilerplate(lines []line, report *domain.CleaningReport) []line {
	out := make([]line, 0, len(lines))
	for _, l := range lines {
		if !l.blank && isBoilerplate(l) {
			report.BoilerplateLines++
			continue
		}
		out = append(out, l)
	}
	return out
}

func isBoilerplate(l line) bool {
	normalized := strings.ToLower(normalizeLine(l.text))
	if isPageNumber(normalized) {
		return true
	}
	return l.pages >= 2 && utf8.RuneCountInString(normalized) <= maxBoilerplateRunes
}

func isPageNumber(normalized string) bool {
	return pageNumberPattern.MatchString(normalized) ||
		dashedNumberPattern.MatchString(normalized) ||
		numericOnlyPattern.MatchString(normalized)
}

func normalizeSpacing(lines []line, _ *domain.CleaningReport) []line {
	out := make([]line, 0, len(lines))
	for _, l := range lines {
		if l.blank {
			out = append(out, l)
			continue
		}
		l.text = normalizeLine(l.text)
		if l.text == "" {
			l.blank = true
		}
		out = append(out, l)
	}
	return out
}

func normalizeLine(s string) string {
	s = glyphReplacer.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = spaceBeforePunct.ReplaceAllString(s, "$1")
	return missingSpace.ReplaceAllString(s, "$1 $2")
}

// repairReadingOrder joins lines broken mid-sentence by columns or OCR.
func repairReadingOrder(lines []line, report *domain.CleaningReport) []line {
	out := make([]line, 0, len(lines))
	for _, l := range lines {
		if l.blank {
			out = append(out, l)
			continue
		}
		last := len(out) - 1
		if last >= 0 && !out[last].blank && !endsSentence(out[last].text) {
			out[last].text = normalizeLine(joinLines(out[last].text, l.text))
			report.MergedLines++
			continue
		}
		out = append(out, l)
	}
	return out
}

func joinLines(prev, next string) string {
	if strings.HasSuffix(prev, "-") && len(prev) > 1 {
		before, _ := utf8.DecodeLastRuneInString(prev[:len(prev)-1])
		first, _ := utf8.DecodeRuneInString(next)
		if unicode.IsLetter(before) && unicode.IsLower(first) {
			return prev[:len(prev)-1] + next
		}
	}
	return prev + " " + next
}

func endsSentence(s string) bool {
	s = strings.TrimRight(s, `"')]`)
	if s == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	switch r {
	case '.', '!', '?', ':', ';':
		return true
	default:
		return false
	}
}

func lineKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
