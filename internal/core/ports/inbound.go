package ports

import (
	"context"

	"github.com/kirillkom/policy-query/internal/core/domain"
)

// DocumentIngestor is the inbound contract for PDF upload processing.
type DocumentIngestor interface {
	ProcessUpload(ctx context.Context, pdf []byte, filename string) (domain.UploadResult, error)
}

// QueryService answers questions against live documents. It always returns
// a well-formed result for a valid query.
type QueryService interface {
	ProcessQuery(ctx context.Context, text string, mode domain.QueryMode) (domain.AnswerResult, error)
}

// DocumentAdmin manages the live document set.
type DocumentAdmin interface {
	ListDocuments() []domain.DocumentSummary
	RemoveDocument(ctx context.Context, documentID string) error
	ClearAllDocuments(ctx context.Context) error
}
