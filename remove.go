package watermark

import (
	"image"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/unwm/watermark-go/surface"
)

// overlap is the intersection of a watermark placed at an offset with the
// base image, expressed in both coordinate frames.
type overlap struct {
	base, wm image.Point // top-left of the overlap in each image
	size     image.Point
}

func overlapAt(baseSize, wmSize image.Point, offX, offY int) (overlap, bool) {
	o := overlap{
		base: image.Pt(max(offX, 0), max(offY, 0)),
		wm:   image.Pt(max(-offX, 0), max(-offY, 0)),
	}
	o.size = image.Pt(
		min(baseSize.X-o.base.X, wmSize.X-o.wm.X),
		min(baseSize.Y-o.base.Y, wmSize.Y-o.wm.Y),
	)
	return o, o.size.X > 0 && o.size.Y > 0
}

// RemoveWatermark inverts alpha compositing of wm placed at (offX, offY) and
// returns a new image the size of base. Pixels outside the overlap, and
// pixels whose adjusted alpha does not exceed p.TransparencyClamp, keep their
// base values; unblended pixels become opaque. An empty overlap returns an
// unchanged copy of base.
func (e *Engine) RemoveWatermark(base, wm image.Image, offX, offY int, p Params) (*image.NRGBA, error) {
	if err := checkImages(base, wm); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := surface.ToNRGBA(base)
	w := surface.ToNRGBA(wm)
	ov, ok := overlapAt(out.Bounds().Size(), w.Bounds().Size(), offX, offY)
	if !ok {
		return out, nil
	}

	var g errgroup.Group
	g.SetLimit(e.workers)
	band := max(1, ov.size.Y/(4*e.workers))
	for y0 := 0; y0 < ov.size.Y; y0 += band {
		y1 := min(y0+band, ov.size.Y)
		g.Go(func() error {
			for y := y0; y < y1; y++ {
				removeRow(out, w, ov, y, p)
			}
			return nil
		})
	}
	g.Wait()
	return out, nil
}

// removeRow unblends one overlap row in place. Rows are independent: the
// opaque-core smoothing only looks at the pixel to the left.
func removeRow(out, wm *image.NRGBA, ov overlap, y int, p Params) {
	bo := out.PixOffset(ov.base.X, ov.base.Y+y)
	wo := wm.PixOffset(ov.wm.X, ov.wm.Y+y)
	for x := 0; x < ov.size.X; x, bo, wo = x+1, bo+4, wo+4 {
		a := math.Round(math.Max(0, math.Min(254, float64(wm.Pix[wo+3])*p.AlphaAdjust)))
		if a <= float64(p.TransparencyClamp) {
			continue
		}
		var left []uint8
		if x > 0 {
			left = out.Pix[bo-4 : bo-1]
		}
		unblend(out.Pix[bo:bo+3], out.Pix[bo:bo+3], wm.Pix[wo:wo+3], a, p.OpaqueClamp, left)
		out.Pix[bo+3] = 0xff
	}
}

// unblend solves composited = a*wm + (1-a)*orig for orig on the three colour
// channels, with a in [0, 255). Above opaqueClamp the result is pulled
// towards left, the already unblended neighbour (nil at the row start).
// dst may alias src.
func unblend(dst, src, wm []uint8, a float64, opaqueClamp int, left []uint8) {
	denom := math.Max(255-a, 1)
	kBase := 255 / denom
	kWm := -a / denom
	blend := -1.0
	if left != nil && a > float64(opaqueClamp) {
		blend = (a - float64(opaqueClamp)) / float64(max(255-opaqueClamp, 1))
	}
	for c := 0; c < 3; c++ {
		v := surface.ClampByte(kBase*float64(src[c]) + kWm*float64(wm[c]))
		if blend >= 0 {
			v = surface.ClampByte(blend*float64(left[c]) + (1-blend)*float64(v))
		}
		dst[c] = v
	}
}
