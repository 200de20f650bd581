//go:build !ocr

package tesseract

import (
	"context"
	"errors"
	"testing"
)

func TestNewReturnsError(t *testing.T) {
	engine, err := New("eng")
	if !errors.Is(err, ErrOCRNotEnabled) {
		t.Fatalf("expected ErrOCRNotEnabled, got %v", err)
	}
	if engine != nil {
		t.Fatalf("expected nil engine when OCR is disabled")
	}
}

func TestImageToTextOnStub(t *testing.T) {
	var engine Engine
	if _, err := engine.ImageToText(context.Background(), []byte("png")); !errors.Is(err, ErrOCRNotEnabled) {
		t.Fatalf("expected ErrOCRNotEnabled, got %v", err)
	}
}
