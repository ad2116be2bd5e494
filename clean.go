package watermark

import (
	"context"
	"image"
	"math"

	"github.com/unwm/watermark-go/surface"
)

// Clean detects the strongest placement of wm in base and removes it with p.
// A detection found at a scale other than 1 removes a watermark resampled to
// that scale. When nothing is detected Clean returns nil image and nil
// detection without error.
func (e *Engine) Clean(ctx context.Context, base, wm image.Image, opts DetectOptions, p Params) (*image.NRGBA, *Detection, error) {
	opts.MaxResults = 1
	dets, err := e.Detect(ctx, base, wm, opts)
	if err != nil {
		return nil, nil, err
	}
	if len(dets) == 0 {
		return nil, nil, nil
	}
	d := dets[0]
	overlay := wm
	if d.Scale != 1 {
		src := surface.ToNRGBA(wm)
		w, h := surface.ScaledSize(src.Bounds().Dx(), src.Bounds().Dy(), d.Scale)
		overlay = surface.Resize(src, w, h)
	}
	out, err := e.RemoveWatermark(base, overlay, int(math.Round(d.OffsetX)), int(math.Round(d.OffsetY)), p)
	if err != nil {
		return nil, nil, err
	}
	return out, &d, nil
}
