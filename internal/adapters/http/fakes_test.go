package httpadapter

import (
	"context"
	"net/http"
	"sync"

	"github.com/kirillkom/policy-query/internal/config"
	"github.com/kirillkom/policy-query/internal/core/domain"
)

type ingestFake struct {
	mu        sync.Mutex
	filenames []string
	errFor    map[string]error
}

func (f *ingestFake) ProcessUpload(_ context.Context, pdf []byte, filename string) (domain.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errFor[filename]; err != nil {
		return domain.UploadResult{}, err
	}
	f.filenames = append(f.filenames, filename)
	return domain.UploadResult{
		DocumentID:    "doc-" + filename,
		Filename:      filename,
		ChunksCreated: 1,
		TextLength:    len(pdf),
		PageCount:     1,
	}, nil
}

type queryFake struct {
	err     error
	gotText string
	gotMode domain.QueryMode
}

func (f *queryFake) ProcessQuery(_ context.Context, text string, mode domain.QueryMode) (domain.AnswerResult, error) {
	f.gotText, f.gotMode = text, mode
	if f.err != nil {
		return domain.AnswerResult{}, f.err
	}
	return domain.AnswerResult{
		Answer:     "$500 per incident",
		Sources:    []string{"policy.pdf"},
		Confidence: domain.ConfidenceHigh,
		Mode:       domain.QueryModeSingle,
	}, nil
}

type adminFake struct {
	docs      []domain.DocumentSummary
	removeErr error
	clearErr  error
	removed   []string
	cleared   int
}

func (f *adminFake) ListDocuments() []domain.DocumentSummary { return f.docs }

func (f *adminFake) RemoveDocument(_ context.Context, id string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *adminFake) ClearAllDocuments(context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared++
	return nil
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.RateLimitRPS = 0
	cfg.MaxInflight = 0
	return cfg
}

func newTestHandler(cfg config.Config) http.Handler {
	return NewRouter(cfg, &ingestFake{}, &queryFake{}, &adminFake{}).Handler()
}
