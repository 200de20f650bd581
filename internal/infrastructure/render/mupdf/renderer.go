//go:build ocr

// Package mupdf rasterizes PDF pages with MuPDF through go-fitz.
//
// It requires cgo and the MuPDF libraries bundled by go-fitz. Build with:
//
//	go build -tags ocr
package mupdf

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"
)

const baseDPI = 72.0

type Renderer struct{}

func New() (*Renderer, error) {
	return &Renderer{}, nil
}

// RenderPage renders a 1-based page as PNG at scale × 72 DPI.
func (r *Renderer) RenderPage(ctx context.Context, data []byte, pageNumber int, scale float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if pageNumber < 1 || pageNumber > doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range", pageNumber)
	}
	if scale <= 0 {
		scale = 1
	}
	out, err := doc.ImagePNG(pageNumber-1, baseDPI*scale)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", pageNumber, err)
	}
	return out, nil
}
