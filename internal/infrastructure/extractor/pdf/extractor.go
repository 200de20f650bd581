package pdf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/core/ports"
)

const (
	DefaultOCRWorkers = 4
	DefaultOCRTimeout = 60 * time.Second
	// DefaultRenderScale renders at 144 DPI.
	DefaultRenderScale = 2.0
)

type Options struct {
	Density     DensityThreshold
	OCRWorkers  int
	OCRTimeout  time.Duration
	RenderScale float64
}

func DefaultOptions() Options {
	return Options{
		Density:     DefaultDensityThreshold(),
		OCRWorkers:  DefaultOCRWorkers,
		OCRTimeout:  DefaultOCRTimeout,
		RenderScale: DefaultRenderScale,
	}
}

// Extractor reads the embedded text layer of each page and falls back to
// rendering plus OCR for pages whose layer is missing or too sparse.
type Extractor struct {
	renderer ports.PageRenderer
	ocr      ports.OCREngine
	opts     Options
	open     openFunc
}

func NewExtractor(renderer ports.PageRenderer, ocr ports.OCREngine, opts Options) *Extractor {
	defaults := DefaultOptions()
	if opts.Density.MinChars <= 0 {
		opts.Density.MinChars = defaults.Density.MinChars
	}
	if opts.Density.MinCharsPerSquareInch < 0 {
		opts.Density.MinCharsPerSquareInch = defaults.Density.MinCharsPerSquareInch
	}
	if opts.OCRWorkers <= 0 {
		opts.OCRWorkers = defaults.OCRWorkers
	}
	if opts.OCRTimeout <= 0 {
		opts.OCRTimeout = defaults.OCRTimeout
	}
	if opts.RenderScale <= 0 {
		opts.RenderScale = defaults.RenderScale
	}
	return &Extractor{
		renderer: renderer,
		ocr:      ocr,
		opts:     opts,
		open:     openLedongthuc,
	}
}

func (e *Extractor) Extract(ctx context.Context, data []byte) ([]domain.PageText, error) {
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrExtraction, "extract pdf", errors.New("empty pdf content"))
	}

	doc, err := e.open(data)
	if err != nil {
		return nil, domain.WrapError(domain.ErrExtraction, "extract pdf", err)
	}
	numPages := doc.NumPages()
	if numPages <= 0 {
		return nil, domain.WrapError(domain.ErrExtraction, "extract pdf", errors.New("pdf has no pages"))
	}

	pages := make([]domain.PageText, numPages)
	var needOCR []int
	for i := range pages {
		number := i + 1
		pages[i] = domain.PageText{Number: number, Source: domain.PageSourceEmpty}

		text, err := doc.PageText(number)
		if err != nil {
			slog.Warn("pdf_page_text_failed", "page", number, "error", err)
		}
		width, height, _ := doc.PageSize(number)
		if err == nil && e.opts.Density.TextLayerUsable(text, width, height) {
			pages[i].Text = strings.TrimSpace(text)
			pages[i].Source = domain.PageSourceText
			continue
		}
		needOCR = append(needOCR, i)
	}

	if len(needOCR) > 0 {
		if err := e.ocrPages(ctx, data, pages, needOCR); err != nil {
			return nil, domain.WrapError(domain.ErrExtraction, "extract pdf", err)
		}
	}

	for _, page := range pages {
		if page.Source != domain.PageSourceEmpty {
			return pages, nil
		}
	}
	return nil, domain.WrapError(domain.ErrExtraction, "extract pdf", errors.New("no text could be extracted from any page"))
}

// ocrPages fills pages[idx] for each index concurrently. Per-page failures
// leave the page empty; only cancellation of ctx aborts the batch.
func (e *Extractor) ocrPages(ctx context.Context, data []byte, pages []domain.PageText, indexes []int) error {
	if e.renderer == nil || e.ocr == nil {
		slog.Warn("ocr_unavailable", "pages", len(indexes))
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.OCRWorkers)
	for _, idx := range indexes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			number := idx + 1
			text, err := e.ocrPage(gctx, data, number)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Warn("ocr_page_failed", "page", number, "error", err)
				return nil
			}
			if text != "" {
				pages[idx].Text = text
				pages[idx].Source = domain.PageSourceOCR
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Extractor) ocrPage(ctx context.Context, data []byte, number int) (string, error) {
	pageCtx, cancel := context.WithTimeout(ctx, e.opts.OCRTimeout)
	defer cancel()

	image, err := e.renderer.RenderPage(pageCtx, data, number, e.opts.RenderScale)
	if err != nil {
		return "", domain.WrapError(domain.ErrOCRFailure, fmt.Sprintf("render page %d", number), err)
	}
	text, err := e.ocr.ImageToText(pageCtx, image)
	if err != nil {
		return "", domain.WrapError(domain.ErrOCRFailure, fmt.Sprintf("ocr page %d", number), err)
	}
	return strings.TrimSpace(text), nil
}
