package match

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unwm/watermark-go/surface"
)

func TestPeaks_SuppressesNeighbourhood(t *testing.T) {
	s := surface.NewFloat(20, 10)
	s.Set(5, 5, 0.9)
	s.Set(6, 5, 0.85) // inside the first peak's window
	s.Set(15, 2, 0.7)
	s.Set(18, 8, 0.2)

	peaks := Peaks(s, 5, 3, 3, 0.5)
	require.Len(t, peaks, 2)
	assert.Equal(t, Peak{X: 5, Y: 5, Score: 0.9}, peaks[0])
	assert.Equal(t, Peak{X: 15, Y: 2, Score: 0.7}, peaks[1])

	// source surface is untouched
	assert.Equal(t, 0.85, s.At(6, 5))
}

func TestPeaks_Limits(t *testing.T) {
	s := surface.NewFloat(10, 10)
	for i := range s.Pix {
		s.Pix[i] = float64(i)
	}
	assert.Len(t, Peaks(s, 3, 0, 0, math.Inf(-1)), 3)
	assert.Nil(t, Peaks(s, 0, 0, 0, 0))
	assert.Nil(t, Peaks(surface.NewFloat(0, 0), 3, 0, 0, 0))

	// suppression radius covering everything leaves a single peak
	all := Peaks(s, 10, 20, 20, math.Inf(-1))
	require.Len(t, all, 1)
	assert.Equal(t, 99.0, all[0].Score)
}
