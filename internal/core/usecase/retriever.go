package usecase

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/core/lexical"
	"github.com/kirillkom/policy-query/internal/core/ports"
)

const (
	DefaultCandidateLimit = 50
	// DefaultMinScore is a floor on lexical.Corpus.Relevance, not on raw BM25.
	DefaultMinScore  = 0.05
	DefaultCrossTopK = 1
)

type RetrieverOptions struct {
	CandidateLimit int
	MinScore       float64
	IndexTimeout   time.Duration
}

// Retriever takes candidates from the external index and ranks them with
// BM25 using statistics over every live chunk.
type Retriever struct {
	index ports.ChunkIndex
	store *DocumentStore
	opts  RetrieverOptions
}

func NewRetriever(index ports.ChunkIndex, store *DocumentStore, opts RetrieverOptions) *Retriever {
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = DefaultCandidateLimit
	}
	if opts.MinScore < 0 || opts.MinScore >= 1 {
		opts.MinScore = DefaultMinScore
	}
	if opts.IndexTimeout <= 0 {
		opts.IndexTimeout = defaultIndexTimeout
	}
	return &Retriever{index: index, store: store, opts: opts}
}

// RetrieveSingle returns the single best chunk across all live documents,
// or an empty result when nothing clears the relevance floor.
func (r *Retriever) RetrieveSingle(ctx context.Context, query string) (domain.RetrievalResult, error) {
	result := domain.RetrievalResult{Mode: domain.QueryModeSingle}
	terms := lexical.QueryTerms(query)
	snapshot := r.store.Snapshot()
	if len(terms) == 0 || len(snapshot) == 0 {
		return result, nil
	}

	hits, err := r.search(ctx, query, domain.SearchFilter{})
	if err != nil {
		return result, err
	}
	ranked := newRanking(snapshot).score(hits, terms, r.opts.MinScore)
	if len(ranked) > 0 {
		result.Chunks = ranked[:1]
	}
	return result, nil
}

// RetrieveCrossDocument returns the top k chunks of every live document that
// has a match. Documents are ordered by their best chunk.
func (r *Retriever) RetrieveCrossDocument(ctx context.Context, query string, k int) (domain.RetrievalResult, error) {
	result := domain.RetrievalResult{Mode: domain.QueryModeCross}
	if k <= 0 {
		k = DefaultCrossTopK
	}
	terms := lexical.QueryTerms(query)
	snapshot := r.store.Snapshot()
	if len(terms) == 0 || len(snapshot) == 0 {
		return result, nil
	}

	perDocument := make([][]domain.IndexHit, len(snapshot))
	g, gctx := errgroup.WithContext(ctx)
	for i, stored := range snapshot {
		g.Go(func() error {
			hits, err := r.search(gctx, query, domain.SearchFilter{DocumentID: stored.Document.ID})
			if err != nil {
				return err
			}
			perDocument[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	ranking := newRanking(snapshot)
	var groups [][]domain.ScoredChunk
	for _, hits := range perDocument {
		ranked := ranking.score(hits, terms, r.opts.MinScore)
		if len(ranked) == 0 {
			continue
		}
		if len(ranked) > k {
			ranked = ranked[:k]
		}
		groups = append(groups, ranked)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return rankedBefore(groups[i][0], groups[j][0])
	})
	for _, g := range groups {
		result.Chunks = append(result.Chunks, g...)
	}
	return result, nil
}

func (r *Retriever) search(ctx context.Context, query string, filter domain.SearchFilter) ([]domain.IndexHit, error) {
	searchCtx, cancel := context.WithTimeout(ctx, r.opts.IndexTimeout)
	defer cancel()
	hits, err := r.index.Search(searchCtx, query, r.opts.CandidateLimit, filter)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndex, "search index", err)
	}
	return hits, nil
}

type chunkRef struct {
	position int
	chunk    domain.Chunk
	document domain.Document
}

// ranking joins index hits with the live snapshot and scores them.
type ranking struct {
	corpus *lexical.Corpus
	chunks map[string]chunkRef
}

func newRanking(snapshot []StoredDocument) *ranking {
	var texts []string
	chunks := make(map[string]chunkRef)
	for _, stored := range snapshot {
		for _, c := range stored.Chunks {
			chunks[c.ID] = chunkRef{position: len(texts), chunk: c, document: stored.Document}
			texts = append(texts, c.Text)
		}
	}
	return &ranking{corpus: lexical.NewCorpus(texts), chunks: chunks}
}

// score drops hits that no longer belong to a live document and those whose
// relevance is at or below minScore, and returns the rest in rank order.
func (rk *ranking) score(hits []domain.IndexHit, terms []string, minScore float64) []domain.ScoredChunk {
	seen := make(map[string]struct{}, len(hits))
	out := make([]domain.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		ref, ok := rk.chunks[hit.ChunkID]
		if !ok || ref.chunk.DocumentID != hit.DocumentID {
			continue
		}
		if _, dup := seen[hit.ChunkID]; dup {
			continue
		}
		seen[hit.ChunkID] = struct{}{}

		score, matched := rk.corpus.Score(ref.position, terms)
		if matched == 0 || rk.corpus.Relevance(ref.position, terms) <= minScore {
			continue
		}
		out = append(out, domain.ScoredChunk{
			Chunk:        ref.chunk,
			Filename:     ref.document.Filename,
			DocumentSeq:  ref.document.Seq,
			Score:        score,
			MatchedTerms: matched,
			QueryTerms:   len(terms),
		})
	}
	sort.Slice(out, func(i, j int) bool { return rankedBefore(out[i], out[j]) })
	return out
}

// rankedBefore is a total order: score, then most recent document, then
// earliest chunk.
func rankedBefore(a, b domain.ScoredChunk) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.DocumentSeq != b.DocumentSeq {
		return a.DocumentSeq > b.DocumentSeq
	}
	if a.Chunk.Index != b.Chunk.Index {
		return a.Chunk.Index < b.Chunk.Index
	}
	return a.Chunk.ID < b.Chunk.ID
}
