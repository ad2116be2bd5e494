package watermark

import (
	"image"
	"image/color"
	"math"
	"math/rand/v2"
)

// noiseImage fills a w x h opaque image with gray noise in [lo, lo+span).
func noiseImage(w, h int, lo, span int, seed uint64) *image.NRGBA {
	r := rand.New(rand.NewPCG(seed, seed+1))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		v := uint8(lo + r.IntN(span))
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 0xff
	}
	return img
}

// binaryNoise fills a w x h opaque image with gray pixels that are either lo
// or hi with equal odds.
func binaryNoise(w, h int, lo, hi uint8, seed uint64) *image.NRGBA {
	r := rand.New(rand.NewPCG(seed, seed+3))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		v := lo
		if r.IntN(2) == 1 {
			v = hi
		}
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 0xff
	}
	return img
}

// colourNoise fills a w x h image with independent RGB noise and alpha from
// alphaFn.
func colourNoise(w, h int, seed uint64, alphaFn func(x, y int) uint8) *image.NRGBA {
	r := rand.New(rand.NewPCG(seed, seed+7))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(r.IntN(256)),
				G: uint8(r.IntN(256)),
				B: uint8(r.IntN(256)),
				A: alphaFn(x, y),
			})
		}
	}
	return img
}

// paste copies src into dst at (x, y), ignoring alpha.
func paste(dst, src *image.NRGBA, x, y int) {
	b := src.Bounds()
	for j := 0; j < b.Dy(); j++ {
		copy(dst.Pix[dst.PixOffset(x, y+j):dst.PixOffset(x+b.Dx(), y+j)], src.Pix[src.PixOffset(0, j):src.PixOffset(b.Dx(), j)])
	}
}

// composite blends wm over dst at (x, y) with wm's alpha scaled by adj:
// out = a*wm + (1-a)*dst, rounded.
func composite(dst, wm *image.NRGBA, x, y int, adj float64) *image.NRGBA {
	out := image.NewNRGBA(dst.Bounds())
	copy(out.Pix, dst.Pix)
	b := wm.Bounds()
	for j := 0; j < b.Dy(); j++ {
		for i := 0; i < b.Dx(); i++ {
			px, py := x+i, y+j
			if !image.Pt(px, py).In(out.Bounds()) {
				continue
			}
			w := wm.NRGBAAt(i, j)
			a := float64(w.A) * adj / 255
			o := out.PixOffset(px, py)
			wc := [3]uint8{w.R, w.G, w.B}
			for c := 0; c < 3; c++ {
				out.Pix[o+c] = uint8(math.Round(a*float64(wc[c]) + (1-a)*float64(out.Pix[o+c])))
			}
		}
	}
	return out
}

func flatImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// shapesWatermark draws white rectangles with the given alpha on a
// transparent canvas.
func shapesWatermark(w, h int, alpha uint8, rects ...image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for _, r := range rects {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: alpha})
			}
		}
	}
	return img
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
