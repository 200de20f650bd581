//go:build ocr

// Package tesseract recognizes page images with the Tesseract engine via
// gosseract. It requires Tesseract and its language data on the host:
//
//	apt-get install tesseract-ocr tesseract-ocr-eng
//
// and the "ocr" build tag.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

const DefaultLanguage = "eng"

// Engine creates one Tesseract client per call; clients are not safe for
// concurrent use and pages are recognized in parallel.
type Engine struct {
	language string
}

func New(language string) (*Engine, error) {
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultLanguage
	}
	return &Engine{language: language}, nil
}

func (e *Engine) ImageToText(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := e.recognize(image)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func (e *Engine) recognize(image []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.language); err != nil {
		return "", fmt.Errorf("set tesseract language %q: %w", e.language, err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set tesseract image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract recognize: %w", err)
	}
	return strings.TrimSpace(text), nil
}
