// Package edge implements the grayscale feature extraction used by the
// detector and the alpha estimator: luminance, Sobel gradients, Canny edge
// maps, high-pass filtering, local contrast enhancement and normalisation.
//
// Every function is pure: inputs are never modified and results are freshly
// allocated, so calls on independent inputs are safe to run concurrently.
package edge

import (
	"fmt"
	"image"

	"github.com/unwm/watermark-go/surface"
)

// Luminance weights follow ITU-R BT.601.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// Luminance returns the perceptual brightness of an 8-bit RGB triple in
// [0, 255].
func Luminance(r, g, b uint8) float64 {
	return lumaR*float64(r) + lumaG*float64(g) + lumaB*float64(b)
}

// Gray converts img to a luminance surface. Alpha is ignored.
func Gray(img *image.NRGBA) *surface.Float {
	b := img.Bounds()
	out := surface.NewFloat(b.Dx(), b.Dy())
	for y := 0; y < out.H; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+out.W*4]
		for x := 0; x < out.W; x++ {
			i := x * 4
			out.Pix[y*out.W+x] = Luminance(row[i], row[i+1], row[i+2])
		}
	}
	return out
}

// MeanBrightness averages g over the nonzero pixels of mask, or over every
// sample when mask is nil. It returns 0 when nothing is covered.
func MeanBrightness(g *surface.Float, mask *image.Gray) float64 {
	checkMask(g, mask)
	var sum float64
	n := 0
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			if mask != nil && mask.Pix[y*mask.Stride+x] == 0 {
				continue
			}
			sum += g.Pix[y*g.W+x]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func checkMask(g *surface.Float, mask *image.Gray) {
	if mask == nil {
		return
	}
	if b := mask.Bounds(); b.Dx() != g.W || b.Dy() != g.H {
		panic(fmt.Sprintf("edge: mask %dx%d does not match surface %dx%d", b.Dx(), b.Dy(), g.W, g.H))
	}
}
