package qdrant

import (
	"fmt"
	"slices"
	"testing"
)

func TestEncodeSparseQueryDeterministic(t *testing.T) {
	v1 := encodeSparseQuery("Remote work days per week")
	v2 := encodeSparseQuery("Remote work days per week")
	if len(v1.Indices) != len(v2.Indices) || len(v1.Values) != len(v2.Values) {
		t.Fatalf("vector sizes mismatch: v1=%d/%d v2=%d/%d", len(v1.Indices), len(v1.Values), len(v2.Indices), len(v2.Values))
	}
	for i := range v1.Indices {
		if v1.Indices[i] != v2.Indices[i] || v1.Values[i] != v2.Values[i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}
}

func TestEncodeSparseQuerySortsIndices(t *testing.T) {
	v := encodeSparseQuery("zulu alpha beta gamma")
	if len(v.Indices) != 4 {
		t.Fatalf("expected 4 terms, got %d", len(v.Indices))
	}
	for i := 1; i < len(v.Indices); i++ {
		if v.Indices[i-1] > v.Indices[i] {
			t.Fatalf("indices not sorted at %d: %d > %d", i, v.Indices[i-1], v.Indices[i])
		}
	}
}

func TestEncodeSparseQueryEmptyNoiseInput(t *testing.T) {
	for _, q := range []string{"___---!!!", "what is the"} {
		v := encodeSparseQuery(q)
		if len(v.Indices) != 0 || len(v.Values) != 0 {
			t.Fatalf("expected empty sparse vector for %q, got %+v", q, v)
		}
	}
}

func TestEncodeSparseDocumentSaturatesRepeats(t *testing.T) {
	v := encodeSparseDocument("leave leave leave policy")
	if len(v.Indices) != 2 {
		t.Fatalf("expected 2 distinct terms, got %d", len(v.Indices))
	}
	var leave, policy float32
	for i, idx := range v.Indices {
		switch idx {
		case hashToken("leave"):
			leave = v.Values[i]
		case hashToken("policy"):
			policy = v.Values[i]
		}
	}
	if policy != 1 {
		t.Fatalf("single occurrence should weigh 1, got %f", policy)
	}
	if leave <= policy || leave >= float32(docBM25K1+1) {
		t.Fatalf("repeated term weight must saturate, got %f", leave)
	}
}

func TestEncodeSparseDocumentCapsTerms(t *testing.T) {
	var text []byte
	for i := range maxSparseTerms + 40 {
		text = append(text, fmt.Sprintf("term%d ", i)...)
	}
	text = append(text, "frequent frequent frequent"...)

	v := encodeSparseDocument(string(text))
	if len(v.Indices) != maxSparseTerms {
		t.Fatalf("expected %d terms, got %d", maxSparseTerms, len(v.Indices))
	}
	if !slices.Contains(v.Indices, hashToken("frequent")) {
		t.Fatal("most frequent term must survive the cap")
	}
	if !slices.IsSorted(v.Indices) {
		t.Fatal("indices must be sorted")
	}
}
