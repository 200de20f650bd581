package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/core/ports"
)

const defaultExtractTimeout = 5 * time.Minute

type IngestOptions struct {
	ExtractTimeout time.Duration
}

// IngestUseCase runs extract, clean, chunk and register for one PDF.
type IngestUseCase struct {
	extractor ports.TextExtractor
	cleaner   ports.TextCleaner
	chunker   ports.Chunker
	store     *DocumentStore
	events    ports.EventPublisher
	observer  ports.PipelineObserver
	opts      IngestOptions
	now       func() time.Time
}

func NewIngestUseCase(
	extractor ports.TextExtractor,
	cleaner ports.TextCleaner,
	chunker ports.Chunker,
	store *DocumentStore,
	events ports.EventPublisher,
	observer ports.PipelineObserver,
	opts IngestOptions,
) *IngestUseCase {
	if opts.ExtractTimeout <= 0 {
		opts.ExtractTimeout = defaultExtractTimeout
	}
	return &IngestUseCase{
		extractor: extractor,
		cleaner:   cleaner,
		chunker:   chunker,
		store:     store,
		events:    events,
		observer:  observer,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (uc *IngestUseCase) ProcessUpload(ctx context.Context, pdf []byte, filename string) (result domain.UploadResult, err error) {
	started := time.Now()
	var pages []domain.PageText
	defer func() {
		if uc.observer != nil {
			uc.observer.ObserveUpload(time.Since(started), pages, err)
		}
	}()

	filename = sanitizeFilename(filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return result, domain.WrapError(domain.ErrInvalidInput, "process upload", fmt.Errorf("%q is not a PDF file", filename))
	}
	if len(pdf) == 0 {
		return result, domain.WrapError(domain.ErrInvalidInput, "process upload", errors.New("empty file"))
	}
	if !uc.store.HasCapacity() {
		return result, domain.WrapError(domain.ErrCapacity, "process upload",
			fmt.Errorf("only %d documents can be loaded at once; clear documents first", domain.MaxLiveDocuments))
	}

	extractCtx, cancel := context.WithTimeout(ctx, uc.opts.ExtractTimeout)
	pages, err = uc.extractor.Extract(extractCtx, pdf)
	cancel()
	if err != nil {
		return result, fmt.Errorf("extract %s: %w", filename, err)
	}

	rawPages := make([]string, len(pages))
	ocrPages := 0
	for i, p := range pages {
		rawPages[i] = p.Text
		if p.Source == domain.PageSourceOCR {
			ocrPages++
		}
	}

	cleaned, report := uc.cleaner.CleanWithReport(strings.Join(rawPages, "\f"))
	for _, w := range report.Warnings {
		slog.Warn("cleaning_warning", "filename", filename, "pass", w.Pass, "message", w.Message)
	}

	id := uuid.NewString()
	chunks, err := uc.chunker.Chunk(id, cleaned)
	if err != nil {
		return result, fmt.Errorf("chunk %s: %w", filename, err)
	}

	doc, err := uc.store.Add(ctx, domain.Document{
		ID:          id,
		Filename:    filename,
		PageCount:   len(pages),
		OCRPages:    ocrPages,
		RawPages:    rawPages,
		CleanedText: cleaned,
		UploadedAt:  uc.now(),
	}, chunks)
	if err != nil {
		return result, fmt.Errorf("register %s: %w", filename, err)
	}

	uc.publish(ctx, domain.DocumentEvent{
		Type:       domain.EventDocumentAdded,
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Chunks:     len(chunks),
		At:         doc.UploadedAt,
	})

	result = domain.UploadResult{
		DocumentID:    doc.ID,
		Filename:      doc.Filename,
		ChunksCreated: len(chunks),
		TextLength:    len([]rune(cleaned)),
		PageCount:     doc.PageCount,
		OCRPages:      ocrPages,
	}
	slog.Info("upload_processed",
		"document_id", doc.ID,
		"filename", doc.Filename,
		"pages", doc.PageCount,
		"ocr_pages", ocrPages,
		"chunks", len(chunks),
		"duplicate_lines", report.DuplicateLines,
		"boilerplate_lines", report.BoilerplateLines,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return result, nil
}

func (uc *IngestUseCase) publish(ctx context.Context, event domain.DocumentEvent) {
	publishEvent(ctx, uc.events, event)
}

func publishEvent(ctx context.Context, events ports.EventPublisher, event domain.DocumentEvent) {
	if events == nil {
		return
	}
	if err := events.PublishDocumentEvent(ctx, event); err != nil {
		slog.Warn("document_event_publish_failed", "type", event.Type, "document_id", event.DocumentID, "error", err)
	}
}

// sanitizeFilename keeps the display name of an upload but strips any
// client supplied directories and control characters.
func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	base = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, base)
	if base == "." || base == "/" {
		return ""
	}
	return base
}
