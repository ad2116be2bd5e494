package match

import (
	"image"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unwm/watermark-go/surface"
)

func randomSurface(w, h int, seed uint64) *surface.Float {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b9))
	f := surface.NewFloat(w, h)
	for i := range f.Pix {
		f.Pix[i] = float64(r.IntN(256))
	}
	return f
}

func ringMask(w, h int) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x == 0 || y == 0 || x == w-1 || y == h-1 || (x+y)%3 == 0 {
				m.Pix[y*m.Stride+x] = 255
			}
		}
	}
	return m
}

func TestMatch_ExactPlacementScoresOne(t *testing.T) {
	img := randomSurface(40, 30, 1)
	tmpl := img.Crop(image.Rect(11, 7, 23, 17))
	mask := ringMask(tmpl.W, tmpl.H)

	for _, method := range []Method{CCorrNormed, CCoeffNormed} {
		t.Run(method.String(), func(t *testing.T) {
			score := Match(img, tmpl, mask, method)
			require.Equal(t, 40-12+1, score.W)
			require.Equal(t, 30-10+1, score.H)

			loc, val, ok := score.MaxLoc()
			require.True(t, ok)
			assert.Equal(t, image.Pt(11, 7), loc)
			assert.InDelta(t, 1.0, val, 1e-9)
		})
	}
}

func TestMatch_DirectAndFFTAgree(t *testing.T) {
	img := randomSurface(37, 29, 2)
	tmpl := randomSurface(9, 6, 3)
	mask := ringMask(9, 6)

	for _, method := range []Method{CCorrNormed, CCoeffNormed} {
		t.Run(method.String(), func(t *testing.T) {
			direct := NewSearcher(img).match(tmpl, mask, method, backendDirect)
			viaFFT := NewSearcher(img).match(tmpl, mask, method, backendFFT)
			require.Equal(t, direct.W, viaFFT.W)
			require.Equal(t, direct.H, viaFFT.H)
			for i := range direct.Pix {
				assert.InDelta(t, direct.Pix[i], viaFFT.Pix[i], 1e-6, "index %d", i)
			}
		})
	}
}

func TestMatch_DegeneratePlacementsScoreZero(t *testing.T) {
	flat := surface.NewFloat(20, 20)
	for i := range flat.Pix {
		flat.Pix[i] = 90
	}
	tmpl := randomSurface(5, 5, 4)

	score := Match(flat, tmpl, nil, CCoeffNormed)
	for _, v := range score.Pix {
		assert.False(t, math.IsNaN(v))
		assert.Zero(t, v)
	}

	black := surface.NewFloat(20, 20)
	score = Match(black, tmpl, nil, CCorrNormed)
	for _, v := range score.Pix {
		assert.Zero(t, v)
	}
}

func TestMatch_EmptyMaskOrFlatTemplate(t *testing.T) {
	img := randomSurface(20, 20, 5)
	tmpl := randomSurface(4, 4, 6)

	score := Match(img, tmpl, image.NewGray(image.Rect(0, 0, 4, 4)), CCorrNormed)
	assert.Equal(t, 17, score.W)
	assert.Equal(t, 0.0, score.Stats().Max)

	score = Match(img, surface.NewFloat(4, 4), nil, CCoeffNormed)
	assert.Equal(t, 0.0, score.Stats().Max)
}

func TestMatch_FlatTemplateFallsBackToCCorr(t *testing.T) {
	img := randomSurface(20, 20, 5)
	flat := surface.NewFloat(4, 4)
	for i := range flat.Pix {
		flat.Pix[i] = 7
	}
	mask := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range mask.Pix {
		mask.Pix[i] = 0xff
	}
	mask.Pix[0] = 0

	got := Match(img, flat, mask, CCoeffNormed)
	want := Match(img, flat, mask, CCorrNormed)
	require.Equal(t, want.W, got.W)
	assert.InDeltaSlice(t, want.Pix, got.Pix, 1e-12)
	assert.Greater(t, got.Stats().Max, 0.5)
}

func TestMatch_TemplateLargerThanImage(t *testing.T) {
	img := randomSurface(10, 10, 7)
	tmpl := randomSurface(11, 4, 8)
	score := Match(img, tmpl, nil, CCorrNormed)
	assert.True(t, score.Empty())
}

func TestMatch_MaskSizeMismatchPanics(t *testing.T) {
	img := randomSurface(10, 10, 9)
	tmpl := randomSurface(4, 4, 10)
	assert.Panics(t, func() {
		Match(img, tmpl, image.NewGray(image.Rect(0, 0, 3, 4)), CCorrNormed)
	})
}

func TestMatchChannels_AveragesPerChannelScores(t *testing.T) {
	a := randomSurface(16, 16, 11)
	b := randomSurface(16, 16, 12)
	ta := a.Crop(image.Rect(3, 4, 9, 10))
	tb := b.Crop(image.Rect(3, 4, 9, 10))

	got := MatchChannels([]*surface.Float{a, b}, []*surface.Float{ta, tb}, nil, CCorrNormed)
	sa := Match(a, ta, nil, CCorrNormed)
	sb := Match(b, tb, nil, CCorrNormed)
	for i := range got.Pix {
		assert.InDelta(t, (sa.Pix[i]+sb.Pix[i])/2, got.Pix[i], 1e-12)
	}
	assert.InDelta(t, 1.0, got.At(3, 4), 1e-9)

	assert.Panics(t, func() {
		MatchChannels([]*surface.Float{a}, []*surface.Float{ta, tb}, nil, CCorrNormed)
	})
}

func TestParseMethod(t *testing.T) {
	for _, m := range []Method{CCorrNormed, CCoeffNormed} {
		got, err := ParseMethod(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMethod("sqdiff")
	assert.Error(t, err)
}

func TestSearcher_ReusesSpectraAcrossTemplates(t *testing.T) {
	img := randomSurface(48, 40, 13)
	s := NewSearcher(img)

	var wg sync.WaitGroup
	results := make([]*surface.Float, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tmpl := img.Crop(image.Rect(i*5, i*4, i*5+10+i, i*4+8))
			results[i] = s.match(tmpl, nil, CCoeffNormed, backendFFT)
		}(i)
	}
	wg.Wait()
	assert.True(t, s.ready())

	for i, got := range results {
		tmpl := img.Crop(image.Rect(i*5, i*4, i*5+10+i, i*4+8))
		want := NewSearcher(img).match(tmpl, nil, CCoeffNormed, backendDirect)
		require.Equal(t, want.W, got.W)
		for j := range want.Pix {
			assert.InDelta(t, want.Pix[j], got.Pix[j], 1e-6)
		}
		assert.InDelta(t, 1.0, got.At(i*5, i*4), 1e-6)
	}
}
