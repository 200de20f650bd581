package pdf

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

const pointsPerInch = 72.0

// document is the per-page view the extractor needs from a parsed PDF.
type document interface {
	NumPages() int
	PageText(number int) (string, error)
	PageSize(number int) (width, height float64, ok bool)
}

type openFunc func(data []byte) (document, error)

type ledongthucDocument struct {
	reader *pdf.Reader
}

func openLedongthuc(data []byte) (doc document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &ledongthucDocument{reader: reader}, nil
}

func (d *ledongthucDocument) NumPages() int {
	return d.reader.NumPage()
}

func (d *ledongthucDocument) PageText(number int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("read page %d: %v", number, r)
		}
	}()

	page := d.reader.Page(number)
	if page.V.IsNull() {
		return "", errors.New("page object is missing")
	}
	return page.GetPlainText(nil)
}

// PageSize reports the MediaBox in points, following inherited attributes.
func (d *ledongthucDocument) PageSize(number int) (width, height float64, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			width, height, ok = 0, 0, false
		}
	}()

	page := d.reader.Page(number)
	return MediaBox(page.V)
}

// MediaBox resolves the MediaBox of a page dictionary, walking Parent links.
func MediaBox(node pdf.Value) (width, height float64, ok bool) {
	for depth := 0; depth < 32 && !node.IsNull(); depth++ {
		box := node.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			width = box.Index(2).Float64() - box.Index(0).Float64()
			height = box.Index(3).Float64() - box.Index(1).Float64()
			if width < 0 {
				width = -width
			}
			if height < 0 {
				height = -height
			}
			return width, height, width > 0 && height > 0
		}
		node = node.Key("Parent")
	}
	return 0, 0, false
}
