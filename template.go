package watermark

import (
	"image"
	"image/color"

	"github.com/unwm/watermark-go/edge"
	"github.com/unwm/watermark-go/surface"
)

// midGray is the flat background the watermark is composited onto to build
// its matching reference.
var midGray = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}

// Template is a watermark prepared for matching: its effective footprint
// cropped out of the canvas.
type Template struct {
	// Canvas is the size of the full watermark image.
	Canvas image.Point
	// ROI is the bounding box of the footprint in canvas coordinates.
	ROI image.Rectangle
	// Image is the ROI crop of the watermark with its own alpha.
	Image *image.NRGBA
	// Reference is Image composited over mid-gray.
	Reference *image.NRGBA
	// Mask marks the footprint pixels inside the ROI.
	Mask *image.Gray
}

// PrepareTemplate thresholds the watermark's alpha channel at
// alphaThreshold (strictly greater passes) and crops the watermark to the
// bounding box of the result. A fully opaque watermark has no usable alpha,
// so its luminance is thresholded at 1 instead. ok is false when the
// footprint is empty.
func PrepareTemplate(wm image.Image, alphaThreshold float64) (tmpl *Template, ok bool) {
	img := surface.ToNRGBA(wm)
	mask := surface.MaskFromAlpha(img, alphaThreshold)
	if opaque(img) {
		mask = surface.MaskFromGray(edge.Gray(img), 1)
	}
	roi := surface.MaskBounds(mask)
	if roi.Empty() {
		return nil, false
	}
	crop := surface.CropNRGBA(img, roi)
	return &Template{
		Canvas:    img.Bounds().Size(),
		ROI:       roi,
		Image:     crop,
		Reference: surface.CompositeOver(crop, midGray),
		Mask:      surface.CropMask(mask, roi),
	}, true
}

// scaled returns the template resampled by factor: pixels bilinearly, the
// mask by nearest neighbour.
func (t *Template) scaled(factor float64) (img, ref *image.NRGBA, mask *image.Gray) {
	w, h := surface.ScaledSize(t.ROI.Dx(), t.ROI.Dy(), factor)
	return surface.Resize(t.Image, w, h), surface.Resize(t.Reference, w, h), surface.ResizeMask(t.Mask, w, h)
}

func opaque(img *image.NRGBA) bool {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for i := 3; i < len(row); i += 4 {
			if row[i] != 0xff {
				return false
			}
		}
	}
	return true
}
