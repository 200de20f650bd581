package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/core/ports"
)

type AdminUseCase struct {
	store  *DocumentStore
	events ports.EventPublisher
}

func NewAdminUseCase(store *DocumentStore, events ports.EventPublisher) *AdminUseCase {
	return &AdminUseCase{store: store, events: events}
}

func (uc *AdminUseCase) ListDocuments() []domain.DocumentSummary {
	return uc.store.List()
}

func (uc *AdminUseCase) RemoveDocument(ctx context.Context, documentID string) error {
	doc, err := uc.store.Remove(ctx, documentID)
	if err != nil {
		return err
	}
	slog.Info("document_removed", "document_id", doc.ID, "filename", doc.Filename)
	publishEvent(ctx, uc.events, domain.DocumentEvent{
		Type:       domain.EventDocumentRemoved,
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		At:         time.Now().UTC(),
	})
	return nil
}

// ClearAllDocuments reports success only after the index holds no entries
// for any previously live document.
func (uc *AdminUseCase) ClearAllDocuments(ctx context.Context) error {
	removed, err := uc.store.ClearAll(ctx)
	if removed > 0 || err == nil {
		publishEvent(ctx, uc.events, domain.DocumentEvent{
			Type: domain.EventDocumentsCleared,
			At:   time.Now().UTC(),
		})
	}
	if err != nil {
		slog.Error("documents_clear_failed", "removed", removed, "error", err)
		return err
	}
	slog.Info("documents_cleared", "removed", removed)
	return nil
}
