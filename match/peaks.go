package match

import (
	"math"

	"github.com/unwm/watermark-go/surface"
)

// Peak is a local maximum of a score surface.
type Peak struct {
	X, Y  int
	Score float64
}

// Peaks extracts up to n maxima from score in descending order. After each
// peak a (2*radiusX+1) x (2*radiusY+1) neighbourhood around it is
// suppressed so later peaks are distinct placements. Peaks below threshold
// end the search. score is not modified.
func Peaks(score *surface.Float, n, radiusX, radiusY int, threshold float64) []Peak {
	if score.Empty() || n <= 0 {
		return nil
	}
	work := score.Clone()
	var peaks []Peak
	for len(peaks) < n {
		loc, val, ok := work.MaxLoc()
		if !ok || math.IsInf(val, -1) || val < threshold {
			break
		}
		peaks = append(peaks, Peak{X: loc.X, Y: loc.Y, Score: val})
		for y := max(0, loc.Y-radiusY); y <= min(work.H-1, loc.Y+radiusY); y++ {
			for x := max(0, loc.X-radiusX); x <= min(work.W-1, loc.X+radiusX); x++ {
				work.Pix[y*work.W+x] = math.Inf(-1)
			}
		}
	}
	return peaks
}
