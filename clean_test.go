package watermark

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// translucentScene blends a noisy watermark with alpha 150 over a quiet base
// at (67, 41).
func translucentScene() (base, marked, wm *image.NRGBA) {
	base = noiseImage(160, 120, 110, 40, 9)
	wm = noiseImage(24, 24, 30, 200, 10)
	for i := 3; i < len(wm.Pix); i += 4 {
		wm.Pix[i] = 150
	}
	return base, composite(base, wm, 67, 41, 1), wm
}

func TestClean_DetectsAndRemoves(t *testing.T) {
	base, marked, wm := translucentScene()
	opts := DefaultDetectOptions()
	opts.MatchThreshold = 0.8

	out, det, err := NewEngine().Clean(context.Background(), marked, wm, opts, DefaultParams())
	require.NoError(t, err)
	require.NotNil(t, det)
	require.NotNil(t, out)
	assert.InDelta(t, 67, det.OffsetX, 0.5)
	assert.InDelta(t, 41, det.OffsetY, 0.5)
	assert.Equal(t, 1.0, det.Scale)

	for y := 41; y < 41+24; y++ {
		for x := 67; x < 67+24; x++ {
			o := base.PixOffset(x, y)
			assert.LessOrEqual(t, absDiff(base.Pix[o], out.Pix[o]), 2, "pixel (%d,%d)", x, y)
		}
	}
}

func TestClean_NothingDetected(t *testing.T) {
	base := noiseImage(96, 96, 110, 40, 11)
	wm := noiseImage(24, 24, 30, 200, 12)
	opts := DefaultDetectOptions()

	out, det, err := NewEngine().Clean(context.Background(), base, wm, opts, DefaultParams())
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Nil(t, det)
}
