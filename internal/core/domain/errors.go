package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")

	// ErrExtraction marks a corrupt PDF or one without any usable page text.
	ErrExtraction = errors.New("extraction failed")
	// ErrOCRFailure is page level and never fatal to an upload.
	ErrOCRFailure = errors.New("ocr failed")
	ErrChunking   = errors.New("chunking failed")
	ErrCapacity   = errors.New("document capacity exceeded")
	ErrIndex      = errors.New("index unavailable")
	ErrModel      = errors.New("language model failed")
	ErrConfig     = errors.New("invalid configuration")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// CleaningWarning reports a suspicious cleaning outcome. It is informational only.
type CleaningWarning struct {
	Pass    string `json:"pass"`
	Message string `json:"message"`
}

// CleaningReport summarizes what the cleaning passes removed or merged.
type CleaningReport struct {
	InputLines       int               `json:"input_lines"`
	DuplicateLines   int               `json:"duplicate_lines"`
	BoilerplateLines int               `json:"boilerplate_lines"`
	MergedLines      int               `json:"merged_lines"`
	Warnings         []CleaningWarning `json:"warnings,omitempty"`
}
