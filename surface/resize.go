package surface

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// ScaledSize returns round(w*factor) x round(h*factor), never below 1x1.
func ScaledSize(w, h int, factor float64) (int, int) {
	sw := int(math.Round(float64(w) * factor))
	sh := int(math.Round(float64(h) * factor))
	return max(sw, 1), max(sh, 1)
}

// Resize resamples img to w x h with bilinear interpolation. A request for
// the current size returns a copy.
func Resize(img *image.NRGBA, w, h int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return CropNRGBA(img, b)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// ResizeMask resamples a binary mask with nearest-neighbour lookup so the
// result stays binary.
func ResizeMask(m *image.Gray, w, h int) *image.Gray {
	b := m.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return CropMask(m, image.Rect(0, 0, w, h))
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), m, b, draw.Src, nil)
	return dst
}
