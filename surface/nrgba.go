package surface

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// ToNRGBA returns a zero-origin, non-premultiplied 8-bit copy of img. The
// copy is always fresh, so callers may mutate it freely.
func ToNRGBA(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// CropNRGBA copies the part of img inside r (intersected with its bounds)
// into a zero-origin NRGBA image.
func CropNRGBA(img *image.NRGBA, r image.Rectangle) *image.NRGBA {
	return imaging.Crop(img, r)
}

// CompositeOver flattens img onto a flat opaque background using its own
// alpha channel: out = a*img + (1-a)*bg.
func CompositeOver(img *image.NRGBA, bg color.NRGBA) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()*4]
		for i := 0; i < len(src); i += 4 {
			a := float64(src[i+3]) / 255
			dst[i] = blend(src[i], bg.R, a)
			dst[i+1] = blend(src[i+1], bg.G, a)
			dst[i+2] = blend(src[i+2], bg.B, a)
			dst[i+3] = 0xff
		}
	}
	return out
}

func blend(fg, bg uint8, a float64) uint8 {
	return ClampByte(math.Round((1-a)*float64(bg) + a*float64(fg)))
}

// Alpha extracts the alpha channel of img as a surface.
func Alpha(img *image.NRGBA) *Float {
	b := img.Bounds()
	out := NewFloat(b.Dx(), b.Dy())
	for y := 0; y < out.H; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+out.W*4]
		for x := 0; x < out.W; x++ {
			out.Pix[y*out.W+x] = float64(row[x*4+3])
		}
	}
	return out
}

// Channel extracts one of the R, G, B, A channels (0..3) of img.
func Channel(img *image.NRGBA, c int) *Float {
	b := img.Bounds()
	out := NewFloat(b.Dx(), b.Dy())
	for y := 0; y < out.H; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+out.W*4]
		for x := 0; x < out.W; x++ {
			out.Pix[y*out.W+x] = float64(row[x*4+c])
		}
	}
	return out
}
