package watermark

import (
	"image"
	"math"
)

const (
	maxVerificationPenalty = 0.45
	highAlpha              = 0.85
)

// verificationPenalty rates how implausible it is that the watermark sits at
// at (the ROI's top-left in base). Nearly opaque watermark pixels should show
// the watermark's own colour; semi-transparent ones should unblend to a
// background inside the displayable range. The result is 0 for a perfect
// fit and 1 when the placement leaves the base.
func verificationPenalty(base, wm *image.NRGBA, at image.Point) float64 {
	size := wm.Bounds().Size()
	if size.X == 0 || size.Y == 0 {
		return 1
	}
	placed := image.Rectangle{Min: at, Max: at.Add(size)}
	if !placed.In(base.Bounds()) {
		return 1
	}

	var highSum, mediumSum float64
	var highN, mediumN int
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			wo := wm.PixOffset(x, y)
			a := float64(wm.Pix[wo+3]) / 255
			if a <= 0.01 {
				continue
			}
			bo := base.PixOffset(at.X+x, at.Y+y)
			if a >= highAlpha {
				for c := 0; c < 3; c++ {
					highSum += math.Abs(float64(base.Pix[bo+c]) - float64(wm.Pix[wo+c]))
				}
				highN += 3
				continue
			}
			if 1-a <= 0.05 {
				continue
			}
			for c := 0; c < 3; c++ {
				mediumSum += overflow(float64(base.Pix[bo+c]), float64(wm.Pix[wo+c]), a)
			}
			mediumN += 3
		}
	}

	var high, medium float64
	if highN > 0 {
		high = highSum / float64(highN) / 255
	}
	if mediumN > 0 {
		medium = mediumSum / float64(mediumN) / 255
	}
	return high*0.75 + medium*0.25
}

// overflow measures how far the unblended background of one channel falls
// outside a slightly widened [0, 255].
func overflow(composited, wm, a float64) float64 {
	bg := (composited - a*wm) / (1 - a)
	switch {
	case bg < -5:
		return -5 - bg
	case bg > 260:
		return bg - 260
	}
	return 0
}
