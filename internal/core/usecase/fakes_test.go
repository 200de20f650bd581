package usecase

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/core/lexical"
)

type indexFake struct {
	mu        sync.Mutex
	chunks    map[string]domain.Chunk
	upsertErr error
	deleteErr map[string]error
	searchErr error
	extraHits []domain.IndexHit
	deleted   []string
	searches  int
}

func newIndexFake() *indexFake {
	return &indexFake{chunks: make(map[string]domain.Chunk), deleteErr: make(map[string]error)}
}

func (f *indexFake) Upsert(_ context.Context, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		// Simulate a partial write before the failure.
		if len(chunks) > 0 {
			f.chunks[chunks[0].ID] = chunks[0]
		}
		return f.upsertErr
	}
	for _, c := range chunks {
		f.chunks[c.ID] = c
	}
	return nil
}

func (f *indexFake) DeleteDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, documentID)
	if err := f.deleteErr[documentID]; err != nil {
		return err
	}
	for id, c := range f.chunks {
		if c.DocumentID == documentID {
			delete(f.chunks, id)
		}
	}
	return nil
}

func (f *indexFake) Search(_ context.Context, queryText string, limit int, filter domain.SearchFilter) ([]domain.IndexHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	terms := lexical.QueryTerms(queryText)
	var hits []domain.IndexHit
	for _, c := range f.chunks {
		if filter.DocumentID != "" && c.DocumentID != filter.DocumentID {
			continue
		}
		matched := 0
		tokens := strings.Join(lexical.Terms(c.Text), " ")
		for _, t := range terms {
			if strings.Contains(" "+tokens+" ", " "+t+" ") {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, domain.IndexHit{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Score:      float64(matched),
		})
	}
	for _, h := range f.extraHits {
		if filter.DocumentID == "" || h.DocumentID == filter.DocumentID {
			hits = append(hits, h)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ChunkID < hits[j].ChunkID })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *indexFake) Count(_ context.Context, filter domain.SearchFilter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.chunks {
		if filter.DocumentID == "" || c.DocumentID == filter.DocumentID {
			n++
		}
	}
	return n, nil
}

type modelFake struct {
	response string
	err      error
	prompts  []string
}

func (f *modelFake) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type extractorFake struct {
	pages []domain.PageText
	err   error
	calls int
}

func (f *extractorFake) Extract(context.Context, []byte) ([]domain.PageText, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

// cleanerFake trims and turns page breaks into paragraph breaks.
type cleanerFake struct {
	warnings []domain.CleaningWarning
}

func (f cleanerFake) Clean(raw string) string {
	out, _ := f.CleanWithReport(raw)
	return out
}

func (f cleanerFake) CleanWithReport(raw string) (string, domain.CleaningReport) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, "\f", "\n\n"))
	return cleaned, domain.CleaningReport{Warnings: f.warnings}
}

// paragraphChunker makes one chunk per paragraph.
type paragraphChunker struct{}

func (paragraphChunker) Chunk(documentID, text string) ([]domain.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrChunking, "chunk", errors.New("empty text"))
	}
	var chunks []domain.Chunk
	offset := 0
	for i, para := range strings.Split(text, "\n\n") {
		n := len([]rune(para))
		chunks = append(chunks, domain.Chunk{
			ID:         documentID + ":" + strconv.Itoa(i),
			DocumentID: documentID,
			Text:       para,
			Start:      offset,
			End:        offset + n,
			Index:      i,
		})
		offset += n + 2
	}
	return chunks, nil
}

type publisherFake struct {
	mu     sync.Mutex
	events []domain.DocumentEvent
	err    error
}

func (f *publisherFake) PublishDocumentEvent(_ context.Context, event domain.DocumentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type observedQuery struct {
	mode    domain.QueryMode
	outcome string
}

type observerFake struct {
	uploads    []error
	uploadPage []int
	queries    []observedQuery
}

func (f *observerFake) ObserveUpload(_ time.Duration, pages []domain.PageText, err error) {
	f.uploads = append(f.uploads, err)
	f.uploadPage = append(f.uploadPage, len(pages))
}

func (f *observerFake) ObserveQuery(mode domain.QueryMode, outcome string, _ time.Duration) {
	f.queries = append(f.queries, observedQuery{mode: mode, outcome: outcome})
}

// addDocument registers a document whose paragraphs become chunks.
func addDocument(t testing.TB, store *DocumentStore, id, filename, text string) domain.Document {
	t.Helper()
	chunks, err := paragraphChunker{}.Chunk(id, text)
	if err != nil {
		t.Fatalf("chunk %s: %v", id, err)
	}
	doc, err := store.Add(context.Background(), domain.Document{ID: id, Filename: filename, CleanedText: text}, chunks)
	if err != nil {
		t.Fatalf("add %s: %v", id, err)
	}
	return doc
}
