// Package surface holds the pixel containers shared by the detection,
// removal and extraction code: float feature/score surfaces, NRGBA helpers
// and single-channel masks.
package surface

import (
	"fmt"
	"image"
	"math"
)

// Float is a dense row-major grid of float64 samples. It backs grayscale
// feature maps (luminance, gradient, high-pass) as well as correlation score
// surfaces.
type Float struct {
	W, H int
	Pix  []float64
}

// Stats summarises the values of a surface.
type Stats struct {
	Mean, Min, Max float64
}

// NewFloat allocates a zeroed w x h surface. Negative dimensions are a
// programming error and panic.
func NewFloat(w, h int) *Float {
	if w < 0 || h < 0 {
		panic(fmt.Sprintf("surface: invalid dimensions %dx%d", w, h))
	}
	return &Float{W: w, H: h, Pix: make([]float64, w*h)}
}

// Empty reports whether the surface has no samples.
func (f *Float) Empty() bool {
	return f == nil || f.W == 0 || f.H == 0
}

// Bounds returns the zero-origin rectangle covered by the surface.
func (f *Float) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.W, f.H)
}

func (f *Float) At(x, y int) float64 {
	return f.Pix[y*f.W+x]
}

func (f *Float) Set(x, y int, v float64) {
	f.Pix[y*f.W+x] = v
}

// Clamped reads (x, y) with out-of-range coordinates replicated from the
// nearest border sample.
func (f *Float) Clamped(x, y int) float64 {
	if x < 0 {
		x = 0
	} else if x >= f.W {
		x = f.W - 1
	}
	if y < 0 {
		y = 0
	} else if y >= f.H {
		y = f.H - 1
	}
	return f.Pix[y*f.W+x]
}

func (f *Float) Clone() *Float {
	out := &Float{W: f.W, H: f.H, Pix: make([]float64, len(f.Pix))}
	copy(out.Pix, f.Pix)
	return out
}

// Crop copies the part of the surface inside r. r is intersected with the
// surface bounds; the result is zero-origin.
func (f *Float) Crop(r image.Rectangle) *Float {
	r = r.Intersect(f.Bounds())
	out := NewFloat(r.Dx(), r.Dy())
	for y := 0; y < out.H; y++ {
		src := (r.Min.Y+y)*f.W + r.Min.X
		copy(out.Pix[y*out.W:(y+1)*out.W], f.Pix[src:src+out.W])
	}
	return out
}

// Map returns a new surface with fn applied to every sample.
func (f *Float) Map(fn func(float64) float64) *Float {
	out := &Float{W: f.W, H: f.H, Pix: make([]float64, len(f.Pix))}
	for i, v := range f.Pix {
		out.Pix[i] = fn(v)
	}
	return out
}

// Stats computes mean, min and max. An empty surface reports zeros.
func (f *Float) Stats() Stats {
	if f.Empty() {
		return Stats{}
	}
	s := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, v := range f.Pix {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean = sum / float64(len(f.Pix))
	return s
}

// MaxLoc returns the location and value of the first maximum in row-major
// order. ok is false for an empty surface.
func (f *Float) MaxLoc() (loc image.Point, val float64, ok bool) {
	if f.Empty() {
		return image.Point{}, 0, false
	}
	best := 0
	for i, v := range f.Pix {
		if v > f.Pix[best] {
			best = i
		}
	}
	return image.Pt(best%f.W, best/f.W), f.Pix[best], true
}

// Sanitize replaces NaN and infinite samples with zero in place.
func (f *Float) Sanitize() {
	for i, v := range f.Pix {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			f.Pix[i] = 0
		}
	}
}

// FromGray converts an 8-bit gray image into a surface.
func FromGray(g *image.Gray) *Float {
	b := g.Bounds()
	out := NewFloat(b.Dx(), b.Dy())
	for y := 0; y < out.H; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+out.W]
		for x, v := range row {
			out.Pix[y*out.W+x] = float64(v)
		}
	}
	return out
}

// ToGray quantises the surface to an 8-bit gray image, rounding and clamping
// to [0, 255].
func (f *Float) ToGray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, f.W, f.H))
	for i, v := range f.Pix {
		g.Pix[i] = ClampByte(v)
	}
	return g
}

// ClampByte rounds v and clamps it into the 8-bit range.
func ClampByte(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
