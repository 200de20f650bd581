package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/policy-query/internal/config"
	"github.com/kirillkom/policy-query/internal/core/ports"
	"github.com/kirillkom/policy-query/internal/core/usecase"
	"github.com/kirillkom/policy-query/internal/infrastructure/chunking"
	"github.com/kirillkom/policy-query/internal/infrastructure/cleaning"
	"github.com/kirillkom/policy-query/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/policy-query/internal/infrastructure/index/memory"
	"github.com/kirillkom/policy-query/internal/infrastructure/index/postgres"
	"github.com/kirillkom/policy-query/internal/infrastructure/index/qdrant"
	"github.com/kirillkom/policy-query/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/policy-query/internal/infrastructure/ocr/httpocr"
	"github.com/kirillkom/policy-query/internal/infrastructure/ocr/tesseract"
	"github.com/kirillkom/policy-query/internal/infrastructure/queue/nats"
	"github.com/kirillkom/policy-query/internal/infrastructure/queue/nop"
	"github.com/kirillkom/policy-query/internal/infrastructure/render/mupdf"
	"github.com/kirillkom/policy-query/internal/infrastructure/render/xobject"
	"github.com/kirillkom/policy-query/internal/infrastructure/resilience"
	"github.com/kirillkom/policy-query/internal/observability/metrics"
)

const shutdownClearTimeout = 15 * time.Second

type App struct {
	Config  config.Config
	Session string

	Index     ports.ChunkIndex
	Extractor ports.TextExtractor
	Cleaner   ports.TextCleaner
	Chunker   ports.Chunker
	Store     *usecase.DocumentStore
	IngestUC  *usecase.IngestUseCase
	QueryUC   *usecase.QueryUseCase
	AdminUC   *usecase.AdminUseCase
	Metrics   *metrics.HTTPServerMetrics
	Events    *nats.Publisher

	closeFns []func()
}

// Options replace adapters that are otherwise built from config.
type Options struct {
	Model ports.LanguageModel
}

func New(ctx context.Context, cfg config.Config, service string, opts Options) (*App, error) {
	app := &App{Config: cfg, Session: cfg.IndexSession}
	if app.Session == "" {
		app.Session = uuid.NewString()
	}

	index, err := app.buildIndex(ctx)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	app.Index = index

	events, err := app.buildEvents()
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	renderer, ocr, err := buildOCR(cfg)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	model := opts.Model
	if model == nil {
		model = ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, ollama.Options{
			Timeout:     cfg.ModelTimeout(),
			Temperature: cfg.ModelTemperature,
			Resilience:  withAttemptTimeout(cfg.Resilience(), cfg.ModelTimeout()),
		})
	}

	app.Metrics = metrics.NewHTTPServerMetrics(service)
	observer := metrics.NewPipelineMetrics(service, app.Metrics.Registerer())

	extractor := pdf.NewExtractor(renderer, ocr, pdf.Options{
		Density: pdf.DensityThreshold{
			MinChars:              cfg.TextMinChars,
			MinCharsPerSquareInch: cfg.TextMinCharsPerSqInch,
		},
		OCRWorkers:  cfg.OCRWorkers,
		OCRTimeout:  cfg.OCRTimeout(),
		RenderScale: cfg.RenderScale,
	})
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkMinLength)
	cleaner := cleaning.New()
	app.Extractor, app.Cleaner, app.Chunker = extractor, cleaner, chunker

	app.Store = usecase.NewDocumentStore(index, usecase.StoreOptions{IndexTimeout: cfg.IndexTimeout()})
	retriever := usecase.NewRetriever(index, app.Store, usecase.RetrieverOptions{
		CandidateLimit: cfg.RetrievalCandidates,
		MinScore:       cfg.RetrievalMinScore,
		IndexTimeout:   cfg.IndexTimeout(),
	})
	app.IngestUC = usecase.NewIngestUseCase(extractor, cleaner, chunker, app.Store, events, observer,
		usecase.IngestOptions{ExtractTimeout: cfg.ExtractTimeout()})
	app.QueryUC = usecase.NewQueryUseCase(app.Store, retriever, usecase.NewSynthesizer(model), observer,
		usecase.QueryOptions{CrossTopK: cfg.CrossTopK})
	app.AdminUC = usecase.NewAdminUseCase(app.Store, events)

	slog.Info("app_initialized",
		"index_backend", cfg.IndexBackend,
		"index_session", app.Session,
		"ocr_backend", cfg.OCRBackend,
		"render_backend", cfg.RenderBackend,
		"events_backend", cfg.EventsBackend,
		"model", cfg.OllamaGenModel,
	)
	return app, nil
}

func (a *App) buildIndex(ctx context.Context) (ports.ChunkIndex, error) {
	cfg := a.Config
	switch cfg.IndexBackend {
	case config.IndexBackendQdrant:
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, a.Session, qdrant.Options{
			Timeout:    cfg.IndexTimeout(),
			Resilience: cfg.Resilience(),
		}), nil
	case config.IndexBackendPostgres:
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { _ = db.Close() })
		index := postgres.NewIndex(db, a.Session)
		if err := index.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return index, nil
	default:
		return memory.New(), nil
	}
}

func (a *App) buildEvents() (ports.EventPublisher, error) {
	if a.Config.EventsBackend != config.EventsBackendNATS {
		return nop.Publisher{}, nil
	}
	publisher, err := nats.NewWithOptions(a.Config.NATSURL, a.Config.NATSSubjectPrefix, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(a.Config.Resilience()),
	})
	if err != nil {
		return nil, fmt.Errorf("init event publisher: %w", err)
	}
	a.Events = publisher
	a.closeFns = append(a.closeFns, publisher.Close)
	return publisher, nil
}

// buildOCR returns nil interfaces when OCR is off so the extractor keeps
// only text-layer pages.
func buildOCR(cfg config.Config) (ports.PageRenderer, ports.OCREngine, error) {
	var engine ports.OCREngine
	switch cfg.OCRBackend {
	case config.OCRBackendHTTP:
		engine = httpocr.New(cfg.OCRURL, httpocr.Options{
			Language:   cfg.OCRLanguage,
			Timeout:    cfg.OCRTimeout(),
			Resilience: withAttemptTimeout(cfg.Resilience(), cfg.OCRTimeout()),
		})
	case config.OCRBackendTesseract:
		t, err := tesseract.New(cfg.OCRLanguage)
		if err != nil {
			return nil, nil, fmt.Errorf("init tesseract: %w", err)
		}
		engine = t
	default:
		return nil, nil, nil
	}

	if cfg.RenderBackend == config.RenderBackendMuPDF {
		r, err := mupdf.New()
		if err != nil {
			if errors.Is(err, mupdf.ErrRenderNotEnabled) {
				slog.Warn("mupdf_unavailable_fallback_xobject", "error", err)
				return xobject.New(), engine, nil
			}
			return nil, nil, fmt.Errorf("init mupdf renderer: %w", err)
		}
		return r, engine, nil
	}
	return xobject.New(), engine, nil
}

func withAttemptTimeout(cfg resilience.Config, timeout time.Duration) resilience.Config {
	cfg.Retry.AttemptTimeout = timeout
	return cfg
}

// Close removes this session's chunks from the external index and releases
// connections.
func (a *App) Close(ctx context.Context) {
	if a.Store != nil && a.Store.Count() > 0 {
		clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownClearTimeout)
		if removed, err := a.Store.ClearAll(clearCtx); err != nil {
			slog.Warn("shutdown_clear_failed", "removed", removed, "error", err)
		}
		cancel()
	}
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
