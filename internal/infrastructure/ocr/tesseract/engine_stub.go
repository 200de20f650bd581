//go:build !ocr

// Package tesseract recognizes page images with the Tesseract engine via
// gosseract.
//
// This is the stub used when the "ocr" build tag is not set. Rebuild with
// -tags ocr to enable it.
package tesseract

import (
	"context"
	"errors"
)

const DefaultLanguage = "eng"

// ErrOCRNotEnabled is returned when Tesseract support was not compiled in.
var ErrOCRNotEnabled = errors.New("tesseract OCR not enabled; rebuild with -tags ocr")

type Engine struct{}

func New(string) (*Engine, error) {
	return nil, ErrOCRNotEnabled
}

func (e *Engine) ImageToText(context.Context, []byte) (string, error) {
	return "", ErrOCRNotEnabled
}
