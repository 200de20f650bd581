//go:build !ocr

// Package mupdf rasterizes PDF pages with MuPDF through go-fitz.
//
// This is the stub used when the "ocr" build tag is not set.
package mupdf

import "context"

type Renderer struct{}

func New() (*Renderer, error) {
	return nil, ErrRenderNotEnabled
}

func (r *Renderer) RenderPage(context.Context, []byte, int, float64) ([]byte, error) {
	return nil, ErrRenderNotEnabled
}
