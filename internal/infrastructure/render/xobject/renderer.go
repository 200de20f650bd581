// Package xobject renders a scanned page by lifting its largest embedded
// image. It needs no cgo and handles the common scanner output of one
// uncompressed or Flate-compressed 8-bit gray or RGB image per page.
package xobject

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/ledongthuc/pdf"
	"golang.org/x/image/draw"
)

// DefaultMaxPixels bounds the scaled output to keep OCR memory predictable.
const DefaultMaxPixels = 40_000_000

var ErrNoImage = errors.New("page has no decodable image")

type Renderer struct {
	MaxPixels int
}

func New() *Renderer {
	return &Renderer{MaxPixels: DefaultMaxPixels}
}

func (r *Renderer) RenderPage(ctx context.Context, data []byte, pageNumber int, scale float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scale <= 0 {
		scale = 1
	}

	src, err := pageImage(data, pageNumber)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	w := int(float64(bounds.Dx()) * scale)
	h := int(float64(bounds.Dy()) * scale)
	if r.MaxPixels > 0 && w*h > r.MaxPixels {
		w, h = bounds.Dx(), bounds.Dy()
	}

	var dst draw.Image
	if _, gray := src.(*image.Gray); gray {
		dst = image.NewGray(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func pageImage(data []byte, pageNumber int) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = fmt.Errorf("read page %d image: %v", pageNumber, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	if pageNumber < 1 || pageNumber > reader.NumPage() {
		return nil, fmt.Errorf("page %d out of range", pageNumber)
	}
	page := reader.Page(pageNumber)
	if page.V.IsNull() {
		return nil, fmt.Errorf("page %d missing", pageNumber)
	}

	x, ok := largestImage(page.Resources().Key("XObject"))
	if !ok {
		return nil, ErrNoImage
	}
	return decodeImage(x)
}

func largestImage(xobjects pdf.Value) (pdf.Value, bool) {
	var (
		best     pdf.Value
		bestArea int64
	)
	for _, name := range xobjects.Keys() {
		x := xobjects.Key(name)
		if x.Kind() != pdf.Stream || x.Key("Subtype").Name() != "Image" {
			continue
		}
		if !supported(x) {
			continue
		}
		area := x.Key("Width").Int64() * x.Key("Height").Int64()
		if area > bestArea {
			best, bestArea = x, area
		}
	}
	return best, bestArea > 0
}

func supported(x pdf.Value) bool {
	if x.Key("BitsPerComponent").Int64() != 8 {
		return false
	}
	if components(x) == 0 {
		return false
	}
	filter := x.Key("Filter")
	switch filter.Kind() {
	case pdf.Null:
		return true
	case pdf.Name:
		return filter.Name() == "FlateDecode"
	case pdf.Array:
		return filter.Len() == 1 && filter.Index(0).Name() == "FlateDecode"
	default:
		return false
	}
}

func components(x pdf.Value) int {
	switch x.Key("ColorSpace").Name() {
	case "DeviceGray":
		return 1
	case "DeviceRGB":
		return 3
	default:
		return 0
	}
}

func decodeImage(x pdf.Value) (image.Image, error) {
	width := int(x.Key("Width").Int64())
	height := int(x.Key("Height").Int64())
	comps := components(x)
	if width <= 0 || height <= 0 {
		return nil, ErrNoImage
	}

	stream := x.Reader()
	defer stream.Close()
	pixels, err := io.ReadAll(io.LimitReader(stream, int64(width*height*comps)))
	if err != nil {
		return nil, fmt.Errorf("read image stream: %w", err)
	}
	if len(pixels) < width*height*comps {
		return nil, fmt.Errorf("image stream truncated: %d of %d bytes", len(pixels), width*height*comps)
	}

	rect := image.Rect(0, 0, width, height)
	if comps == 1 {
		return &image.Gray{Pix: pixels, Stride: width, Rect: rect}, nil
	}

	rgba := image.NewRGBA(rect)
	for i, j := 0, 0; i < len(pixels); i, j = i+3, j+4 {
		rgba.Pix[j] = pixels[i]
		rgba.Pix[j+1] = pixels[i+1]
		rgba.Pix[j+2] = pixels[i+2]
		rgba.Pix[j+3] = 0xff
	}
	return rgba, nil
}
