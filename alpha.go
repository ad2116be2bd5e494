package watermark

import (
	"context"
	"fmt"
	"image"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/unwm/watermark-go/edge"
	"github.com/unwm/watermark-go/surface"
)

const (
	alphaNoiseFloor = 10
	alphaStepFirst  = 50
	alphaStepLast   = 119
	clipPenalty     = 0.25
)

// alphaTrial is the score of one alpha adjust candidate; lower is better.
type alphaTrial struct {
	ok    bool
	score float64
}

// GuessAlpha estimates the AlphaAdjust that best removes wm placed at
// (offX, offY). Each candidate from 0.50 to 1.19 is unblended and scored by
// how much of the watermark's edge structure survives (absolute Pearson
// correlation of Sobel edge maps against a mid-gray reference) plus a
// penalty for clipped channels. ok is false when the overlap is empty, the
// watermark has no visible pixels or no internal structure, or every
// candidate clips.
func (e *Engine) GuessAlpha(ctx context.Context, base, wm image.Image, offX, offY, transparencyClamp, opaqueClamp int) (alpha float64, ok bool, err error) {
	if err := checkImages(base, wm); err != nil {
		return 0, false, err
	}
	if err := checkClamp("transparency", transparencyClamp); err != nil {
		return 0, false, err
	}
	if err := checkClamp("opaque", opaqueClamp); err != nil {
		return 0, false, err
	}
	b, w := surface.ToNRGBA(base), surface.ToNRGBA(wm)
	ov, inside := overlapAt(b.Bounds().Size(), w.Bounds().Size(), offX, offY)
	if !inside {
		return 0, false, nil
	}
	basePatch := surface.CropNRGBA(b, image.Rectangle{Min: ov.base, Max: ov.base.Add(ov.size)})
	wmPatch := surface.CropNRGBA(w, image.Rectangle{Min: ov.wm, Max: ov.wm.Add(ov.size)})

	ref := edge.GradientMagnitude(edge.Gray(surface.CompositeOver(wmPatch, midGray)))
	if !hasEnergy(ref) {
		e.log.DebugContext(ctx, "watermark reference has no edge energy")
		return 0, false, nil
	}
	visible := false
	for i := 3; i < len(wmPatch.Pix); i += 4 {
		if wmPatch.Pix[i] > alphaNoiseFloor {
			visible = true
			break
		}
	}
	if !visible {
		return 0, false, nil
	}

	trials := make([]alphaTrial, alphaStepLast-alphaStepFirst+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range trials {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			adj := float64(alphaStepFirst+i) / 100
			trials[i] = scoreAlpha(basePatch, wmPatch, ref, adj, transparencyClamp, opaqueClamp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, false, fmt.Errorf("guess alpha: %w", err)
	}

	best := math.Inf(1)
	for i, t := range trials {
		if t.ok && t.score < best {
			best = t.score
			alpha, ok = float64(alphaStepFirst+i)/100, true
		}
	}
	e.log.DebugContext(ctx, "alpha estimate", "ok", ok, "alpha_adjust", alpha, "score", best)
	return alpha, ok, nil
}

// scoreAlpha unblends the patch with one alpha adjust. The candidate is
// rejected outright once any pixel's adjusted alpha reaches 255.
func scoreAlpha(base, wm *image.NRGBA, ref *surface.Float, adj float64, tc, oc int) alphaTrial {
	trial := surface.CropNRGBA(base, base.Bounds())
	size := base.Bounds().Size()
	processed, clipped := 0, 0
	for y := 0; y < size.Y; y++ {
		o := y * trial.Stride
		for x := 0; x < size.X; x, o = x+1, o+4 {
			wa := wm.Pix[o+3]
			a := float64(wa) * adj
			if a >= 255 {
				return alphaTrial{}
			}
			if a <= float64(tc) || wa <= alphaNoiseFloor {
				continue
			}
			processed++
			var left []uint8
			if x > 0 {
				left = trial.Pix[o-4 : o-1]
			}
			px := trial.Pix[o : o+3]
			unblend(px, base.Pix[o:o+3], wm.Pix[o:o+3], a, oc, left)
			for _, v := range px {
				if v == 0 || v == 0xff {
					clipped++
				}
			}
		}
	}
	if processed == 0 {
		return alphaTrial{}
	}

	edges := edge.GradientMagnitude(edge.Gray(trial))
	if !hasEnergy(edges) {
		return alphaTrial{}
	}
	corr := stat.Correlation(edges.Pix, ref.Pix, nil)
	if math.IsNaN(corr) {
		corr = 0
	}
	return alphaTrial{
		ok:    true,
		score: math.Abs(corr) + clipPenalty*float64(clipped)/float64(processed*3),
	}
}

func hasEnergy(f *surface.Float) bool {
	if len(f.Pix) < 2 {
		return false
	}
	return stat.Variance(f.Pix, nil) > 0
}
