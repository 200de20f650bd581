package pdf

import "unicode"

// DensityThreshold decides whether a page's embedded text layer is good
// enough to skip OCR.
type DensityThreshold struct {
	MinChars              int
	MinCharsPerSquareInch float64
}

func DefaultDensityThreshold() DensityThreshold {
	return DensityThreshold{
		MinChars:              20,
		MinCharsPerSquareInch: 0.5,
	}
}

// TextLayerUsable reports whether text carries enough non-space runes in
// total and per square inch of the page. Width and height are in points;
// zero values skip the area check.
func (d DensityThreshold) TextLayerUsable(text string, width, height float64) bool {
	count := 0
	for _, r := range text {
		if !unicode.IsSpace(r) && unicode.IsPrint(r) {
			count++
		}
	}
	if count < d.MinChars {
		return false
	}
	if width <= 0 || height <= 0 || d.MinCharsPerSquareInch <= 0 {
		return true
	}
	area := (width / pointsPerInch) * (height / pointsPerInch)
	return float64(count)/area >= d.MinCharsPerSquareInch
}
