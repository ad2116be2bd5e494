package edge

import (
	"github.com/anthonynsimon/bild/blur"

	"github.com/unwm/watermark-go/surface"
)

// DefaultHighPassSigma is the Gaussian radius used by the detector's
// high-pass domain.
const DefaultHighPassSigma = 3.0

// HighPass subtracts a Gaussian-blurred copy from g (unsharp residual). Large
// scale lighting gradients cancel out while fine texture remains. The result
// is centred on zero.
func HighPass(g *surface.Float, sigma float64) *surface.Float {
	out := surface.NewFloat(g.W, g.H)
	if g.Empty() {
		return out
	}
	if sigma <= 0 {
		sigma = DefaultHighPassSigma
	}
	low := blur.Gaussian(g.ToGray(), sigma)
	for y := 0; y < g.H; y++ {
		row := low.Pix[y*low.Stride:]
		for x := 0; x < g.W; x++ {
			i := y*g.W + x
			out.Pix[i] = g.Pix[i] - float64(row[x*4])
		}
	}
	return out
}
