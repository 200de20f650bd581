// Package memory is the in-process ChunkIndex. It ranks candidates with BM25
// over everything it holds.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/core/lexical"
)

type Index struct {
	mu     sync.RWMutex
	chunks map[string]domain.Chunk
}

func New() *Index {
	return &Index{chunks: make(map[string]domain.Chunk)}
}

func (i *Index) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, c := range chunks {
		i.chunks[c.ID] = c
	}
	return nil
}

func (i *Index) DeleteDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for id, c := range i.chunks {
		if c.DocumentID == documentID {
			delete(i.chunks, id)
		}
	}
	return nil
}

func (i *Index) Search(ctx context.Context, queryText string, limit int, filter domain.SearchFilter) ([]domain.IndexHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := lexical.QueryTerms(queryText)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	i.mu.RLock()
	all := make([]domain.Chunk, 0, len(i.chunks))
	for _, c := range i.chunks {
		all = append(all, c)
	}
	i.mu.RUnlock()

	texts := make([]string, len(all))
	for n, c := range all {
		texts[n] = c.Text
	}
	corpus := lexical.NewCorpus(texts)

	hits := make([]domain.IndexHit, 0, limit)
	for n, c := range all {
		if filter.DocumentID != "" && c.DocumentID != filter.DocumentID {
			continue
		}
		score, matched := corpus.Score(n, terms)
		if matched == 0 {
			continue
		}
		hits = append(hits, domain.IndexHit{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Score:      score,
		})
	}
	// Ties keep document order and then numeric chunk order, so x:2 stays
	// ahead of x:10 when the limit cuts between them.
	sort.Slice(hits, func(a, b int) bool {
		ha, hb := hits[a], hits[b]
		switch {
		case ha.Score != hb.Score:
			return ha.Score > hb.Score
		case ha.DocumentID != hb.DocumentID:
			return ha.DocumentID < hb.DocumentID
		case ha.ChunkIndex != hb.ChunkIndex:
			return ha.ChunkIndex < hb.ChunkIndex
		default:
			return ha.ChunkID < hb.ChunkID
		}
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (i *Index) Count(ctx context.Context, filter domain.SearchFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if filter.DocumentID == "" {
		return len(i.chunks), nil
	}
	n := 0
	for _, c := range i.chunks {
		if c.DocumentID == filter.DocumentID {
			n++
		}
	}
	return n, nil
}
