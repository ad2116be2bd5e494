package edge

import (
	"image"
	"math"

	"github.com/unwm/watermark-go/surface"
)

const histBins = 256

// CLAHEOptions configures contrast-limited adaptive histogram equalisation.
type CLAHEOptions struct {
	TilesX, TilesY int     // tile grid (default 8x8)
	ClipLimit      float64 // multiple of the mean bin height (default 2.0)
}

// DefaultCLAHEOptions mirrors the usual OpenCV defaults.
func DefaultCLAHEOptions() CLAHEOptions {
	return CLAHEOptions{TilesX: 8, TilesY: 8, ClipLimit: 2.0}
}

func (o CLAHEOptions) normalized(w, h int) CLAHEOptions {
	if o.TilesX <= 0 {
		o.TilesX = 8
	}
	if o.TilesY <= 0 {
		o.TilesY = 8
	}
	if o.ClipLimit <= 0 {
		o.ClipLimit = 2.0
	}
	o.TilesX = min(o.TilesX, max(w, 1))
	o.TilesY = min(o.TilesY, max(h, 1))
	return o
}

// CLAHE equalises g tile by tile, limiting each tile's histogram to
// ClipLimit times its mean bin height and interpolating the tile mappings
// bilinearly. When mask is non-nil only masked pixels contribute to the
// histograms and only they are remapped.
func CLAHE(g *surface.Float, mask *image.Gray, opts CLAHEOptions) *surface.Float {
	checkMask(g, mask)
	if g.Empty() {
		return g.Clone()
	}
	opts = opts.normalized(g.W, g.H)
	tw := (g.W + opts.TilesX - 1) / opts.TilesX
	th := (g.H + opts.TilesY - 1) / opts.TilesY

	luts := make([][histBins]float64, opts.TilesX*opts.TilesY)
	for ty := 0; ty < opts.TilesY; ty++ {
		for tx := 0; tx < opts.TilesX; tx++ {
			r := image.Rect(tx*tw, ty*th, min((tx+1)*tw, g.W), min((ty+1)*th, g.H))
			luts[ty*opts.TilesX+tx] = tileLUT(g, mask, r, opts.ClipLimit)
		}
	}

	out := g.Clone()
	for y := 0; y < g.H; y++ {
		fy := (float64(y)+0.5)/float64(th) - 0.5
		y0, y1, ay := neighbours(fy, opts.TilesY)
		for x := 0; x < g.W; x++ {
			if mask != nil && mask.Pix[y*mask.Stride+x] == 0 {
				continue
			}
			fx := (float64(x)+0.5)/float64(tw) - 0.5
			x0, x1, ax := neighbours(fx, opts.TilesX)
			bin := surface.ClampByte(g.Pix[y*g.W+x])
			top := (1-ax)*luts[y0*opts.TilesX+x0][bin] + ax*luts[y0*opts.TilesX+x1][bin]
			bottom := (1-ax)*luts[y1*opts.TilesX+x0][bin] + ax*luts[y1*opts.TilesX+x1][bin]
			out.Pix[y*g.W+x] = (1-ay)*top + ay*bottom
		}
	}
	return out
}

// EnhanceIfDark applies CLAHE only when the mean brightness of g (over mask)
// is below darkThreshold. Well-lit regions are returned untouched so noise is
// not amplified. The boolean reports whether enhancement ran.
func EnhanceIfDark(g *surface.Float, mask *image.Gray, darkThreshold float64, opts CLAHEOptions) (*surface.Float, bool) {
	if MeanBrightness(g, mask) >= darkThreshold {
		return g, false
	}
	return CLAHE(g, mask, opts), true
}

func neighbours(f float64, tiles int) (int, int, float64) {
	i0 := int(math.Floor(f))
	a := f - float64(i0)
	if i0 < 0 {
		return 0, 0, 0
	}
	if i0 >= tiles-1 {
		return tiles - 1, tiles - 1, 0
	}
	return i0, i0 + 1, a
}

func tileLUT(g *surface.Float, mask *image.Gray, r image.Rectangle, clipLimit float64) [histBins]float64 {
	var hist [histBins]int
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if mask != nil && mask.Pix[y*mask.Stride+x] == 0 {
				continue
			}
			hist[surface.ClampByte(g.Pix[y*g.W+x])]++
			n++
		}
	}
	var lut [histBins]float64
	if n == 0 {
		for i := range lut {
			lut[i] = float64(i)
		}
		return lut
	}

	limit := max(int(clipLimit*float64(n)/histBins), 1)
	excess := 0
	for i, c := range hist {
		if c > limit {
			excess += c - limit
			hist[i] = limit
		}
	}
	each, rest := excess/histBins, excess%histBins
	for i := range hist {
		hist[i] += each
		if i < rest {
			hist[i]++
		}
	}

	cdf := 0
	for i, c := range hist {
		cdf += c
		lut[i] = float64(cdf) * 255 / float64(n)
	}
	return lut
}
