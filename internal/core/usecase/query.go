package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/core/ports"
)

const (
	OutcomeAnswered    = "answered"
	OutcomeNotFound    = "not_found"
	OutcomeNoDocuments = "no_documents"
	OutcomeIndexError  = "index_unavailable"
	OutcomeDegraded    = "degraded"
)

type QueryOptions struct {
	CrossTopK int
}

// QueryUseCase resolves the query mode once, retrieves and synthesizes.
// Every valid query produces a well-formed AnswerResult.
type QueryUseCase struct {
	store       *DocumentStore
	retriever   *Retriever
	synthesizer *Synthesizer
	observer    ports.PipelineObserver
	opts        QueryOptions
}

func NewQueryUseCase(
	store *DocumentStore,
	retriever *Retriever,
	synthesizer *Synthesizer,
	observer ports.PipelineObserver,
	opts QueryOptions,
) *QueryUseCase {
	if opts.CrossTopK <= 0 {
		opts.CrossTopK = DefaultCrossTopK
	}
	return &QueryUseCase{
		store:       store,
		retriever:   retriever,
		synthesizer: synthesizer,
		observer:    observer,
		opts:        opts,
	}
}

func (uc *QueryUseCase) ProcessQuery(ctx context.Context, text string, mode domain.QueryMode) (domain.AnswerResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.AnswerResult{}, domain.WrapError(domain.ErrInvalidInput, "process query", errors.New("query is empty"))
	}
	parsed, ok := domain.ParseQueryMode(string(mode))
	if !ok {
		return domain.AnswerResult{}, domain.WrapError(domain.ErrInvalidInput, "process query", errors.New("unknown query mode "+string(mode)))
	}

	started := time.Now()
	qctx := ResolveQueryContext(text, parsed, uc.store.Count())
	answer, outcome := uc.answer(ctx, qctx)
	if uc.observer != nil {
		uc.observer.ObserveQuery(qctx.Mode, outcome, time.Since(started))
	}
	slog.Info("query_processed",
		"mode", qctx.Mode,
		"live_documents", qctx.LiveDocuments,
		"outcome", outcome,
		"sources", len(answer.Sources),
		"confidence", answer.Confidence,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return answer, nil
}

func (uc *QueryUseCase) answer(ctx context.Context, qctx domain.QueryContext) (domain.AnswerResult, string) {
	if qctx.LiveDocuments == 0 {
		return NoDocumentsAnswer(qctx.Mode), OutcomeNoDocuments
	}

	var (
		result domain.RetrievalResult
		err    error
	)
	if qctx.Mode == domain.QueryModeCross {
		result, err = uc.retriever.RetrieveCrossDocument(ctx, qctx.Text, uc.opts.CrossTopK)
	} else {
		result, err = uc.retriever.RetrieveSingle(ctx, qctx.Text)
	}
	if err != nil {
		slog.Error("query_retrieval_failed", "mode", qctx.Mode, "error", err)
		return TemporarilyUnavailableAnswer(qctx.Mode), OutcomeIndexError
	}
	if result.Empty() {
		return NotFoundAnswer(qctx.Mode), OutcomeNotFound
	}

	answer, err := uc.synthesizer.Synthesize(ctx, qctx, result)
	if err != nil {
		slog.Warn("query_synthesis_failed", "mode", qctx.Mode, "sources", len(result.Sources()), "error", err)
		return DegradedAnswer(qctx, result), OutcomeDegraded
	}
	return answer, OutcomeAnswered
}

// ResolveQueryContext fixes the retrieval mode for one query: auto means
// cross-document when more than one document is live, and cross falls back
// to single when there is nothing to compare.
func ResolveQueryContext(text string, mode domain.QueryMode, liveDocuments int) domain.QueryContext {
	resolved := mode
	switch mode {
	case domain.QueryModeAuto, "":
		resolved = domain.QueryModeSingle
		if liveDocuments > 1 {
			resolved = domain.QueryModeCross
		}
	case domain.QueryModeCross:
		if liveDocuments <= 1 {
			resolved = domain.QueryModeSingle
		}
	}
	return domain.QueryContext{Text: text, Mode: resolved, LiveDocuments: liveDocuments}
}
