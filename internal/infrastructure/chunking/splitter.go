package chunking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/policy-query/internal/core/domain"
)

const (
	DefaultTargetSize = 600
	DefaultOverlap    = 100
	DefaultMinLength  = 50
)

// Splitter cuts cleaned text into chunks of at most TargetSize runes that
// overlap by exactly Overlap runes. A tail shorter than MinLength is merged
// into the previous chunk. The zero value chunks with the default size and
// no overlap.
type Splitter struct {
	TargetSize int
	Overlap    int
	MinLength  int
}

func NewSplitter(targetSize, overlap, minLength int) *Splitter {
	s := Splitter{TargetSize: targetSize, Overlap: overlap, MinLength: minLength}.withDefaults()
	return &s
}

func (s Splitter) withDefaults() Splitter {
	if s.TargetSize <= 0 {
		s.TargetSize = DefaultTargetSize
	}
	if s.Overlap < 0 {
		s.Overlap = 0
	}
	if s.MinLength <= 0 {
		s.MinLength = DefaultMinLength
	}
	if s.Overlap+s.MinLength > s.TargetSize {
		s.Overlap = s.TargetSize / 6
		s.MinLength = max(s.TargetSize/12, 1)
	}
	return s
}

func (s *Splitter) Chunk(documentID, text string) ([]domain.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrChunking, "chunk document", errors.New("cleaned text is empty"))
	}

	sp := s.withDefaults()
	runes := []rune(text)
	n := len(runes)
	boundaries := sp.unitBoundaries(runes)

	out := make([]domain.Chunk, 0, n/(sp.TargetSize-sp.Overlap)+1)
	start := 0
	for {
		end := n
		if n-start > sp.TargetSize {
			end = sp.pickEnd(runes, boundaries, start)
			if n-end < sp.MinLength {
				end = n
			}
		}

		idx := len(out)
		out = append(out, domain.Chunk{
			ID:         fmt.Sprintf("%s:%d", documentID, idx),
			DocumentID: documentID,
			Text:       string(runes[start:end]),
			Start:      start,
			End:        end,
			Index:      idx,
		})
		if end == n {
			break
		}
		start = end - sp.Overlap
	}
	return out, nil
}

// pickEnd prefers the furthest unit boundary that keeps the chunk within
// TargetSize while still adding MinLength runes past the overlap.
func (s *Splitter) pickEnd(runes []rune, boundaries []int, start int) int {
	minEnd := start + s.Overlap + s.MinLength
	maxEnd := start + s.TargetSize

	i := sort.SearchInts(boundaries, maxEnd+1) - 1
	if i >= 0 && boundaries[i] >= minEnd {
		return boundaries[i]
	}

	for j := maxEnd - 1; j >= minEnd-1; j-- {
		if unicode.IsSpace(runes[j]) {
			return j + 1
		}
	}
	return maxEnd
}

// unitBoundaries returns ascending end offsets of paragraphs, of sentences
// inside oversized paragraphs and of hard cuts inside oversized sentences.
func (s *Splitter) unitBoundaries(runes []rune) []int {
	var out []int
	for _, para := range splitSpans(runes, 0, len(runes), paragraphEnd) {
		if para[1]-para[0] <= s.TargetSize {
			out = append(out, para[1])
			continue
		}
		for _, sentence := range splitSpans(runes, para[0], para[1], sentenceEnd) {
			for cut := sentence[0] + s.TargetSize; cut < sentence[1]; cut += s.TargetSize {
				out = append(out, cut)
			}
			out = append(out, sentence[1])
		}
	}
	return out
}

// splitSpans tiles [from, to) into spans; endAt reports where a span ending
// at position i should stop (or -1).
func splitSpans(runes []rune, from, to int, endAt func([]rune, int, int) int) [][2]int {
	var spans [][2]int
	spanStart := from
	for i := from; i < to; i++ {
		end := endAt(runes, i, to)
		if end < 0 {
			continue
		}
		spans = append(spans, [2]int{spanStart, end})
		spanStart = end
		i = end - 1
	}
	if spanStart < to {
		spans = append(spans, [2]int{spanStart, to})
	}
	return spans
}

// paragraphEnd matches a blank line; the separator stays with the preceding paragraph.
func paragraphEnd(runes []rune, i, to int) int {
	if runes[i] != '\n' || i+1 >= to || runes[i+1] != '\n' {
		return -1
	}
	j := i + 2
	for j < to && runes[j] == '\n' {
		j++
	}
	if j >= to {
		return -1
	}
	return j
}

// sentenceEnd matches terminal punctuation followed by whitespace.
func sentenceEnd(runes []rune, i, to int) int {
	switch runes[i] {
	case '.', '!', '?':
	default:
		return -1
	}
	if i+1 >= to || !unicode.IsSpace(runes[i+1]) {
		return -1
	}
	if i+2 >= to {
		return -1
	}
	return i + 2
}
