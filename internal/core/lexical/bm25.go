package lexical

import "math"

const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Corpus holds term statistics for Okapi BM25 over a fixed set of texts.
type Corpus struct {
	K1 float64
	B  float64

	termFreqs []map[string]int
	lengths   []int
	docFreq   map[string]int
	avgLength float64
}

func NewCorpus(texts []string) *Corpus {
	c := &Corpus{
		K1:        DefaultK1,
		B:         DefaultB,
		termFreqs: make([]map[string]int, len(texts)),
		lengths:   make([]int, len(texts)),
		docFreq:   make(map[string]int),
	}
	total := 0
	for i, text := range texts {
		terms := Terms(text)
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		for t := range tf {
			c.docFreq[t]++
		}
		c.termFreqs[i] = tf
		c.lengths[i] = len(terms)
		total += len(terms)
	}
	if len(texts) > 0 {
		c.avgLength = float64(total) / float64(len(texts))
	}
	return c
}

func (c *Corpus) Len() int {
	return len(c.termFreqs)
}

// IDF is the non-negative BM25 inverse document frequency.
func (c *Corpus) IDF(term string) float64 {
	n := float64(c.docFreq[term])
	total := float64(len(c.termFreqs))
	return math.Log(1 + (total-n+0.5)/(n+0.5))
}

// Score returns the BM25 score of text i for the given distinct query terms
// and how many of them occur in it.
func (c *Corpus) Score(i int, queryTerms []string) (score float64, matched int) {
	if i < 0 || i >= len(c.termFreqs) || c.avgLength == 0 {
		return 0, 0
	}
	tf := c.termFreqs[i]
	norm := 1 - c.B + c.B*float64(c.lengths[i])/c.avgLength
	for _, term := range queryTerms {
		f := float64(tf[term])
		if f == 0 {
			continue
		}
		matched++
		score += c.IDF(term) * f * (c.K1 + 1) / (f + c.K1*norm)
	}
	return score, matched
}

// Relevance scales the BM25 score of text i into [0, 1]. The first factor
// is the score over the ideal of every matched term saturated, the second
// the share of query terms matched. It does not shrink with corpus size,
// so a term that occurs in every chunk still clears a small floor.
func (c *Corpus) Relevance(i int, queryTerms []string) float64 {
	score, matched := c.Score(i, queryTerms)
	if matched == 0 {
		return 0
	}
	ideal := 0.0
	tf := c.termFreqs[i]
	for _, term := range queryTerms {
		if tf[term] > 0 {
			ideal += c.IDF(term) * (c.K1 + 1)
		}
	}
	if ideal == 0 {
		return 0
	}
	return score / ideal * float64(matched) / float64(len(queryTerms))
}
