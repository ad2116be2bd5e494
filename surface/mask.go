package surface

import (
	"image"
)

// MaskFromAlpha builds a binary mask (0 or 255) of the pixels whose alpha is
// strictly greater than threshold.
func MaskFromAlpha(img *image.NRGBA, threshold float64) *image.Gray {
	b := img.Bounds()
	m := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for x := 0; x < b.Dx(); x++ {
			if float64(row[x*4+3]) > threshold {
				m.Pix[y*m.Stride+x] = 0xff
			}
		}
	}
	return m
}

// MaskFromGray builds a binary mask of the samples of g that are greater than
// or equal to threshold.
func MaskFromGray(g *Float, threshold float64) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, g.W, g.H))
	for i, v := range g.Pix {
		if v >= threshold {
			m.Pix[i] = 0xff
		}
	}
	return m
}

// FullMask returns a w x h mask with every pixel set.
func FullMask(w, h int) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for i := range m.Pix {
		m.Pix[i] = 0xff
	}
	return m
}

// MaskCount returns the number of nonzero mask pixels.
func MaskCount(m *image.Gray) int {
	b := m.Bounds()
	n := 0
	for y := 0; y < b.Dy(); y++ {
		for _, v := range m.Pix[y*m.Stride : y*m.Stride+b.Dx()] {
			if v != 0 {
				n++
			}
		}
	}
	return n
}

// MaskBounds returns the bounding box of the nonzero pixels of m in
// zero-origin coordinates. The rectangle is empty when m has no nonzero
// pixel.
func MaskBounds(m *image.Gray) image.Rectangle {
	b := m.Bounds()
	minX, minY := b.Dx(), b.Dy()
	maxX, maxY := -1, -1
	for y := 0; y < b.Dy(); y++ {
		row := m.Pix[y*m.Stride : y*m.Stride+b.Dx()]
		for x, v := range row {
			if v == 0 {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}
	if maxX < 0 {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// CropMask copies the part of m inside r into a zero-origin mask.
func CropMask(m *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(image.Rect(0, 0, m.Bounds().Dx(), m.Bounds().Dy()))
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		src := (r.Min.Y+y)*m.Stride + r.Min.X
		copy(out.Pix[y*out.Stride:y*out.Stride+r.Dx()], m.Pix[src:src+r.Dx()])
	}
	return out
}
