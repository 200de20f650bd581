package ports

import (
	"context"
	"time"

	"github.com/kirillkom/policy-query/internal/core/domain"
)

// TextExtractor turns raw PDF bytes into per-page text in original page order.
type TextExtractor interface {
	Extract(ctx context.Context, pdf []byte) ([]domain.PageText, error)
}

// TextCleaner normalizes extracted text. Pages are separated by '\f'.
type TextCleaner interface {
	Clean(raw string) string
	CleanWithReport(raw string) (string, domain.CleaningReport)
}

// Chunker splits cleaned text into overlapping chunks.
type Chunker interface {
	Chunk(documentID, text string) ([]domain.Chunk, error)
}

// PageRenderer rasterizes a single page (1-based) for OCR.
type PageRenderer interface {
	RenderPage(ctx context.Context, pdf []byte, pageNumber int, scale float64) ([]byte, error)
}

// OCREngine recognizes text in an encoded image.
type OCREngine interface {
	ImageToText(ctx context.Context, image []byte) (string, error)
}

// ChunkIndex is the external lexical store holding chunks of live documents.
type ChunkIndex interface {
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	DeleteDocument(ctx context.Context, documentID string) error
	Search(ctx context.Context, queryText string, limit int, filter domain.SearchFilter) ([]domain.IndexHit, error)
	Count(ctx context.Context, filter domain.SearchFilter) (int, error)
}

// LanguageModel generates text for a prompt.
type LanguageModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EventPublisher announces document lifecycle changes.
type EventPublisher interface {
	PublishDocumentEvent(ctx context.Context, event domain.DocumentEvent) error
}

// PipelineObserver receives ingestion and query outcomes for metrics.
type PipelineObserver interface {
	ObserveUpload(duration time.Duration, pages []domain.PageText, err error)
	ObserveQuery(mode domain.QueryMode, outcome string, duration time.Duration)
}
