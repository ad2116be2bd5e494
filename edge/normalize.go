package edge

import (
	"image"
	"math"

	"github.com/unwm/watermark-go/surface"
)

// ZeroMeanNormalize subtracts the global mean and rescales so the largest
// absolute deviation becomes 1. A flat surface normalises to all zeros.
func ZeroMeanNormalize(g *surface.Float) *surface.Float {
	out := surface.NewFloat(g.W, g.H)
	if g.Empty() {
		return out
	}
	mean := g.Stats().Mean
	var peak float64
	for i, v := range g.Pix {
		d := v - mean
		out.Pix[i] = d
		peak = math.Max(peak, math.Abs(d))
	}
	if peak == 0 {
		clear(out.Pix)
		return out
	}
	for i := range out.Pix {
		out.Pix[i] /= peak
	}
	return out
}

// Invert mirrors g around its mean over mask (or over everything when mask
// is nil): out = 2*mean - v. This is a brightness inversion rebalanced so
// the inverted template keeps the original DC level.
func Invert(g *surface.Float, mask *image.Gray) *surface.Float {
	mean := MeanBrightness(g, mask)
	return g.Map(func(v float64) float64 { return 2*mean - v })
}
