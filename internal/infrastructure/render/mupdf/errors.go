package mupdf

import "errors"

// ErrRenderNotEnabled is returned when MuPDF support was not compiled in.
var ErrRenderNotEnabled = errors.New("mupdf rendering not enabled; rebuild with -tags ocr")
