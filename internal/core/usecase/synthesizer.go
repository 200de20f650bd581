package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/core/lexical"
	"github.com/kirillkom/policy-query/internal/core/ports"
)

const (
	answerMarker      = "Answer:"
	explanationMarker = "Explanation:"
	crossMarker       = "Cross-Document Analysis:"

	maxExcerptRunes = 240
)

// Synthesizer turns retrieved chunks into a grounded answer using the
// language model. Confidence comes from retrieval, never from the model.
type Synthesizer struct {
	model ports.LanguageModel
}

func NewSynthesizer(model ports.LanguageModel) *Synthesizer {
	return &Synthesizer{model: model}
}

func (s *Synthesizer) Synthesize(ctx context.Context, qctx domain.QueryContext, result domain.RetrievalResult) (domain.AnswerResult, error) {
	if result.Empty() {
		return NotFoundAnswer(qctx.Mode), nil
	}

	sources := result.Sources()
	raw, err := s.model.Generate(ctx, buildAnswerPrompt(qctx.Text, result, len(sources) > 1))
	if err != nil {
		return domain.AnswerResult{}, domain.WrapError(domain.ErrModel, "synthesize answer", err)
	}

	parsed := parseModelResponse(raw, qctx.Text, len(sources))
	answer := domain.AnswerResult{
		Answer:      parsed.answer,
		Explanation: parsed.explanation,
		Sources:     sources,
		Confidence:  confidenceFor(result),
		Mode:        qctx.Mode,
	}
	if len(sources) > 1 {
		answer.CrossDocumentAnalysis = parsed.cross
		if answer.CrossDocumentAnalysis == "" {
			answer.CrossDocumentAnalysis = compareSources(qctx.Text, result)
		}
	}
	return answer, nil
}

func buildAnswerPrompt(query string, result domain.RetrievalResult, crossDocument bool) string {
	var content strings.Builder
	for _, c := range result.Chunks {
		fmt.Fprintf(&content, "From %s: %s\n\n", c.Filename, strings.TrimSpace(c.Chunk.Text))
	}

	if crossDocument {
		return fmt.Sprintf(`Based on content from multiple documents, answer the user's question by analyzing information across all sources.
Use only the document content below. If it does not contain the answer, say so plainly.
Write in simple, non-technical language.

Documents and Content:
%s
User Question: %s

Please provide:
1. A short answer that considers information from all relevant documents
2. A clear explanation highlighting any differences, similarities, or complementary information across documents
3. If documents conflict, mention it clearly

Format your response exactly like this:
%s [your short answer here]
%s [your detailed explanation here]
%s [how the information relates across documents]
`, content.String(), query, answerMarker, explanationMarker, crossMarker)
	}

	return fmt.Sprintf(`Based on this document content, answer the user's question in simple, clear language.
Use only the document content below. If it does not contain the answer, say so plainly.

Document Content:
%s
User Question: %s

Please provide:
1. A direct, simple answer
2. A clear explanation in everyday language

Format your response exactly like this:
%s [your direct answer here]
%s [your simple explanation here]
`, content.String(), query, answerMarker, explanationMarker)
}

type parsedResponse struct {
	answer      string
	explanation string
	cross       string
}

// parseModelResponse splits on the section markers, falls back to
// line prefixes and finally to generic wording.
func parseModelResponse(raw, query string, sourceCount int) parsedResponse {
	text := strings.TrimSpace(raw)
	var out parsedResponse

	if _, rest, ok := strings.Cut(text, answerMarker); ok {
		if answer, remaining, ok := strings.Cut(rest, explanationMarker); ok {
			out.answer = strings.TrimSpace(answer)
			if explanation, cross, ok := strings.Cut(remaining, crossMarker); ok {
				out.explanation = strings.TrimSpace(explanation)
				out.cross = strings.TrimSpace(cross)
			} else {
				out.explanation = strings.TrimSpace(remaining)
			}
		} else {
			out.answer = strings.TrimSpace(rest)
		}
	}

	if out.answer == "" || out.explanation == "" {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, answerMarker) && out.answer == "":
				out.answer = strings.TrimSpace(strings.TrimPrefix(line, answerMarker))
			case strings.HasPrefix(line, explanationMarker) && out.explanation == "":
				out.explanation = strings.TrimSpace(strings.TrimPrefix(line, explanationMarker))
			case strings.HasPrefix(line, crossMarker) && out.cross == "":
				out.cross = strings.TrimSpace(strings.TrimPrefix(line, crossMarker))
			}
		}
	}

	if out.answer == "" && !strings.Contains(text, answerMarker) && text != "" {
		out.answer = text
	}
	if out.answer == "" {
		out.answer = "Based on your document(s), here's what I found about your question."
	}
	if out.explanation == "" {
		out.explanation = fmt.Sprintf("Found relevant information in %d document(s) that relates to your question about '%s'.", sourceCount, query)
	}
	return out
}

// confidenceFor grades retrieval strength: corroboration across documents or
// query term coverage of the best chunk.
func confidenceFor(result domain.RetrievalResult) domain.Confidence {
	if result.Empty() {
		return domain.ConfidenceNone
	}
	if len(result.Sources()) >= 2 {
		return domain.ConfidenceHigh
	}
	best := result.Chunks[0]
	if best.QueryTerms == 0 {
		return domain.ConfidenceLow
	}
	coverage := float64(best.MatchedTerms) / float64(best.QueryTerms)
	switch {
	case coverage >= 0.8:
		return domain.ConfidenceHigh
	case coverage >= 0.4:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// compareSources lines up the most relevant sentence of each document.
func compareSources(query string, result domain.RetrievalResult) string {
	terms := lexical.QueryTerms(query)
	seen := make(map[string]struct{})
	var b strings.Builder
	fmt.Fprintf(&b, "%d documents address this question.", len(result.Sources()))
	for _, c := range result.Chunks {
		if _, ok := seen[c.Filename]; ok {
			continue
		}
		seen[c.Filename] = struct{}{}
		fmt.Fprintf(&b, " %s says: %q.", c.Filename, bestSentence(c.Chunk.Text, terms))
	}
	b.WriteString(" Compare these passages for differences in the details.")
	return b.String()
}

func bestSentence(text string, terms []string) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	want := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		want[t] = struct{}{}
	}

	best, bestHits := sentences[0], -1
	for _, s := range sentences {
		hits := 0
		for _, tok := range lexical.Terms(s) {
			if _, ok := want[tok]; ok {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = s, hits
		}
	}
	return truncateRunes(best, maxExcerptRunes)
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		end := r == '\n' || ((r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])))
		if !end {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := limit
	for cut > limit/2 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	return strings.TrimSpace(string(runes[:cut])) + "..."
}

func NotFoundAnswer(mode domain.QueryMode) domain.AnswerResult {
	return domain.AnswerResult{
		Answer:      "The answer was not found in the provided documents.",
		Explanation: "I couldn't find any information in your uploaded documents that relates to your question. Try rephrasing it with words the documents are likely to use.",
		Sources:     []string{},
		Confidence:  domain.ConfidenceNone,
		Mode:        mode,
	}
}

func NoDocumentsAnswer(mode domain.QueryMode) domain.AnswerResult {
	return domain.AnswerResult{
		Answer:      "No documents have been uploaded yet.",
		Explanation: fmt.Sprintf("Upload up to %d PDF documents and ask your question again.", domain.MaxLiveDocuments),
		Sources:     []string{},
		Confidence:  domain.ConfidenceNone,
		Mode:        mode,
	}
}

func TemporarilyUnavailableAnswer(mode domain.QueryMode) domain.AnswerResult {
	return domain.AnswerResult{
		Answer:      "I'm temporarily unable to answer.",
		Explanation: "The document index could not be reached. Please try again in a moment.",
		Sources:     []string{},
		Confidence:  domain.ConfidenceNone,
		Mode:        mode,
		Degraded:    true,
	}
}

// DegradedAnswer is returned when retrieval matched but the model failed.
// Sources and the best excerpt are preserved.
func DegradedAnswer(qctx domain.QueryContext, result domain.RetrievalResult) domain.AnswerResult {
	sources := result.Sources()
	best := result.Chunks[0]
	answer := domain.AnswerResult{
		Answer: "Found relevant information",
		Explanation: fmt.Sprintf("I found information in %d document(s) that relates to your question. The most relevant passage in %s reads: %q",
			len(sources), best.Filename, bestSentence(best.Chunk.Text, lexical.QueryTerms(qctx.Text))),
		Sources:    sources,
		Confidence: confidenceFor(result),
		Mode:       qctx.Mode,
		Degraded:   true,
	}
	if len(sources) > 1 {
		answer.CrossDocumentAnalysis = compareSources(qctx.Text, result)
	}
	return answer
}
