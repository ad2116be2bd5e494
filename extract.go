package watermark

import (
	"image"
	"image/color"
	"math"

	"github.com/unwm/watermark-go/surface"
)

// Extract reconstructs an unknown watermark from two samples of it composited
// over the flat backgrounds bgA and bgB. Sample B is placed at (offX, offY)
// in sample A's frame; window (in A's frame) is clipped to both samples and
// the result covers the clipped window. Pixels where the two samples do not
// differ in a usable way stay fully transparent. ok is false when nothing of
// the window remains after clipping.
func (e *Engine) Extract(a, b image.Image, offX, offY int, window image.Rectangle, bgA, bgB color.Color) (img *image.NRGBA, ok bool, err error) {
	if err := checkImages(a, b); err != nil {
		return nil, false, err
	}
	sa, sb := surface.ToNRGBA(a), surface.ToNRGBA(b)
	off := image.Pt(offX, offY)
	r := window.Intersect(sa.Bounds()).Intersect(sb.Bounds().Add(off))
	if r.Empty() {
		return nil, false, nil
	}

	ca := color.NRGBAModel.Convert(bgA).(color.NRGBA)
	cb := color.NRGBAModel.Convert(bgB).(color.NRGBA)
	bgNorm := channelNorm(float64(ca.R)-float64(cb.R), float64(ca.G)-float64(cb.G), float64(ca.B)-float64(cb.B))
	bgSum := [3]float64{float64(ca.R) + float64(cb.R), float64(ca.G) + float64(cb.G), float64(ca.B) + float64(cb.B)}

	out := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			pa := sa.Pix[sa.PixOffset(r.Min.X+x, r.Min.Y+y):]
			pb := sb.Pix[sb.PixOffset(r.Min.X+x-offX, r.Min.Y+y-offY):]
			diff := channelNorm(
				float64(pb[0])-float64(pa[0]),
				float64(pb[1])-float64(pa[1]),
				float64(pb[2])-float64(pa[2]),
			)
			inv := 1 / (1 - diff/bgNorm)
			if math.IsInf(inv, 0) || math.IsNaN(inv) || inv <= 0 {
				continue
			}
			po := out.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := ((float64(pa[c])+float64(pb[c]))*inv + (1-inv)*bgSum[c]) / 2
				out.Pix[po+c] = surface.ClampByte(v)
			}
			out.Pix[po+3] = surface.ClampByte(255 / inv)
		}
	}
	e.log.Debug("watermark extracted", "window", r)
	return out, true, nil
}

// channelNorm is the mean absolute channel difference.
func channelNorm(r, g, b float64) float64 {
	return (math.Abs(r) + math.Abs(g) + math.Abs(b)) / 3
}

// ContrastStretch rescales img so the darkest pixel (by channel sum) maps to
// black and the brightest to white, scaling each pixel's channels by a common
// factor. Alpha is kept. A flat image is returned unchanged.
func ContrastStretch(img image.Image) *image.NRGBA {
	out := surface.ToNRGBA(img)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < len(out.Pix); i += 4 {
		s := float64(out.Pix[i]) + float64(out.Pix[i+1]) + float64(out.Pix[i+2])
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	if !(hi > lo) {
		return out
	}
	ratio := 3 * 255 / (hi - lo)
	for i := 0; i < len(out.Pix); i += 4 {
		s := float64(out.Pix[i]) + float64(out.Pix[i+1]) + float64(out.Pix[i+2])
		if s == 0 {
			continue
		}
		k := (s - lo) * ratio / s
		for c := 0; c < 3; c++ {
			out.Pix[i+c] = surface.ClampByte(float64(out.Pix[i+c]) * k)
		}
	}
	return out
}
