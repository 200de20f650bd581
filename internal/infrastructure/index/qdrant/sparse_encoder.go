package qdrant

import (
	"cmp"
	"hash/fnv"
	"maps"
	"slices"

	"github.com/kirillkom/policy-query/internal/core/lexical"
)

type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	docBM25K1      = 1.2
	maxSparseTerms = 512
)

// encodeSparseDocument stores the BM25 term-frequency component per term.
// Qdrant supplies IDF through the collection's idf modifier.
func encodeSparseDocument(text string) sparseVector {
	counts := make(map[uint32]int, 64)
	for _, term := range lexical.Terms(text) {
		counts[hashToken(term)]++
	}
	if len(counts) == 0 {
		return sparseVector{}
	}

	ids := slices.Collect(maps.Keys(counts))
	if len(ids) > maxSparseTerms {
		// Keep the most frequent terms, lowest hash first on ties.
		slices.SortFunc(ids, func(a, b uint32) int {
			if c := cmp.Compare(counts[b], counts[a]); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		ids = ids[:maxSparseTerms]
	}
	slices.Sort(ids)

	v := sparseVector{Indices: ids, Values: make([]float32, len(ids))}
	for i, id := range ids {
		tf := float64(counts[id])
		v.Values[i] = float32(tf * (docBM25K1 + 1) / (tf + docBM25K1))
	}
	return v
}

// encodeSparseQuery gives each distinct query term weight 1.
func encodeSparseQuery(query string) sparseVector {
	terms := lexical.QueryTerms(query)
	if len(terms) == 0 {
		return sparseVector{}
	}
	ids := make([]uint32, 0, len(terms))
	for _, term := range terms {
		ids = append(ids, hashToken(term))
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	values := make([]float32, len(ids))
	for i := range values {
		values[i] = 1
	}
	return sparseVector{Indices: ids, Values: values}
}

// hashToken maps a term to a sparse dimension. Zero is reserved.
func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return max(h.Sum32(), 1)
}
