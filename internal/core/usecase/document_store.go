package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/core/ports"
)

const defaultIndexTimeout = 30 * time.Second

// StoredDocument is a live document together with its chunks.
type StoredDocument struct {
	Document domain.Document
	Chunks   []domain.Chunk
}

// DocumentStore owns the live document set and keeps the external index in
// step with it. Mutations hold the write lock across the index call, so a
// document is visible to readers only once its chunks are indexed.
type DocumentStore struct {
	index        ports.ChunkIndex
	capacity     int
	indexTimeout time.Duration

	mu      sync.RWMutex
	docs    map[string]*StoredDocument
	nextSeq uint64
}

type StoreOptions struct {
	Capacity     int
	IndexTimeout time.Duration
}

func NewDocumentStore(index ports.ChunkIndex, opts StoreOptions) *DocumentStore {
	if opts.Capacity <= 0 {
		opts.Capacity = domain.MaxLiveDocuments
	}
	if opts.IndexTimeout <= 0 {
		opts.IndexTimeout = defaultIndexTimeout
	}
	return &DocumentStore{
		index:        index,
		capacity:     opts.Capacity,
		indexTimeout: opts.IndexTimeout,
		docs:         make(map[string]*StoredDocument),
	}
}

// Add registers doc and indexes its chunks. On index failure the
// registration is rolled back and partial index writes are removed.
func (s *DocumentStore) Add(ctx context.Context, doc domain.Document, chunks []domain.Chunk) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.docs) >= s.capacity {
		return domain.Document{}, domain.WrapError(domain.ErrCapacity, "add document",
			fmt.Errorf("%d documents already loaded, limit is %d", len(s.docs), s.capacity))
	}
	if _, exists := s.docs[doc.ID]; exists {
		return domain.Document{}, domain.WrapError(domain.ErrInvalidInput, "add document",
			fmt.Errorf("document %s already registered", doc.ID))
	}

	s.nextSeq++
	doc.Seq = s.nextSeq
	s.docs[doc.ID] = &StoredDocument{Document: doc, Chunks: chunks}

	indexCtx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()
	if err := s.index.Upsert(indexCtx, chunks); err != nil {
		delete(s.docs, doc.ID)
		s.cleanupPartialWrite(ctx, doc.ID)
		return domain.Document{}, domain.WrapError(domain.ErrIndex, "index document chunks", err)
	}
	return doc, nil
}

// cleanupPartialWrite runs on a context detached from the caller, which may
// already be cancelled.
func (s *DocumentStore) cleanupPartialWrite(ctx context.Context, documentID string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.indexTimeout)
	defer cancel()
	if err := s.index.DeleteDocument(cleanupCtx, documentID); err != nil {
		slog.Warn("index_rollback_failed", "document_id", documentID, "error", err)
	}
}

// Remove deletes the document from the index first and forgets it only once
// that succeeded.
func (s *DocumentStore) Remove(ctx context.Context, documentID string) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.docs[documentID]
	if !ok {
		return domain.Document{}, domain.WrapError(domain.ErrDocumentNotFound, "remove document", fmt.Errorf("id %s", documentID))
	}

	indexCtx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()
	if err := s.index.DeleteDocument(indexCtx, documentID); err != nil {
		return domain.Document{}, domain.WrapError(domain.ErrIndex, "delete document chunks", err)
	}
	delete(s.docs, documentID)
	return stored.Document, nil
}

// ClearAll removes every live document. Documents whose index entries could
// not be deleted stay live and the combined failure is returned.
func (s *DocumentStore) ClearAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	indexCtx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()

	removed := 0
	var errs []error
	for _, stored := range s.sortedLocked() {
		id := stored.Document.ID
		if err := s.index.DeleteDocument(indexCtx, id); err != nil {
			errs = append(errs, fmt.Errorf("document %s: %w", id, err))
			continue
		}
		delete(s.docs, id)
		removed++
	}
	if len(errs) > 0 {
		return removed, domain.WrapError(domain.ErrIndex, "clear documents", errors.Join(errs...))
	}
	return removed, nil
}

func (s *DocumentStore) List() []domain.DocumentSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.sortedLocked()
	out := make([]domain.DocumentSummary, 0, len(stored))
	for _, sd := range stored {
		out = append(out, domain.DocumentSummary{
			ID:         sd.Document.ID,
			Filename:   sd.Document.Filename,
			PageCount:  sd.Document.PageCount,
			OCRPages:   sd.Document.OCRPages,
			ChunkCount: len(sd.Chunks),
			TextLength: len([]rune(sd.Document.CleanedText)),
			UploadedAt: sd.Document.UploadedAt,
		})
	}
	return out
}

func (s *DocumentStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *DocumentStore) HasCapacity() bool {
	return s.Count() < s.capacity
}

// Snapshot returns live documents ordered by registration. The chunk slices
// are shared and must not be modified.
func (s *DocumentStore) Snapshot() []StoredDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.sortedLocked()
	out := make([]StoredDocument, len(stored))
	for i, sd := range stored {
		out[i] = *sd
	}
	return out
}

func (s *DocumentStore) sortedLocked() []*StoredDocument {
	out := make([]*StoredDocument, 0, len(s.docs))
	for _, sd := range s.docs {
		out = append(out, sd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Document.Seq < out[j].Document.Seq })
	return out
}
