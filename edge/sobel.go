package edge

import (
	"math"

	"github.com/unwm/watermark-go/surface"
)

// Sobel returns the horizontal and vertical Sobel responses of g. Border
// pixels read replicated neighbours.
func Sobel(g *surface.Float) (gx, gy *surface.Float) {
	gx = surface.NewFloat(g.W, g.H)
	gy = surface.NewFloat(g.W, g.H)
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			tl := g.Clamped(x-1, y-1)
			tc := g.Clamped(x, y-1)
			tr := g.Clamped(x+1, y-1)
			ml := g.Clamped(x-1, y)
			mr := g.Clamped(x+1, y)
			bl := g.Clamped(x-1, y+1)
			bc := g.Clamped(x, y+1)
			br := g.Clamped(x+1, y+1)
			i := y*g.W + x
			gx.Pix[i] = (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy.Pix[i] = (bl + 2*bc + br) - (tl + 2*tc + tr)
		}
	}
	return gx, gy
}

// GradientMagnitude returns sqrt(gx^2 + gy^2) of the Sobel responses.
func GradientMagnitude(g *surface.Float) *surface.Float {
	gx, gy := Sobel(g)
	out := surface.NewFloat(g.W, g.H)
	for i := range out.Pix {
		out.Pix[i] = math.Hypot(gx.Pix[i], gy.Pix[i])
	}
	return out
}
