package watermark

import (
	"fmt"
	"math"

	"github.com/unwm/watermark-go/edge"
	"github.com/unwm/watermark-go/match"
)

// DetectOptions tunes Detect and RefinePosition. The zero value is not
// usable; start from DefaultDetectOptions.
type DetectOptions struct {
	// MaxResults caps the number of detections; 0 or less means no cap.
	MaxResults int
	// MatchThreshold is the minimum texture or combined score, in (0, 1].
	MatchThreshold float64
	// AlphaThreshold selects the footprint: watermark alpha must exceed it.
	AlphaThreshold float64

	// GridCols x GridRows is the coarse partition of the base image.
	GridCols, GridRows int
	// Candidates is how many coarse cells are refined.
	Candidates int

	// Scale sweep bounds and step for refinement.
	ScaleMin, ScaleMax, ScaleStep float64

	// DarkThreshold is the mean brightness below which a search window is
	// contrast enhanced before correlation.
	DarkThreshold float64
	CLAHE         edge.CLAHEOptions

	HighPassSigma       float64
	CannyLow, CannyHigh float64

	Weights Weights
	// MinConfidenceGap is the margin the best combined score needs over the
	// runner-up scale when the texture score alone is not conclusive.
	MinConfidenceGap float64
	Method           match.Method

	// Verify enables the colour and overflow plausibility penalty.
	Verify bool

	// Workers bounds the parallel scale evaluations; 0 means GOMAXPROCS.
	Workers int
}

// DefaultDetectOptions returns the tuned defaults.
func DefaultDetectOptions() DetectOptions {
	return DetectOptions{
		MaxResults:       5,
		MatchThreshold:   0.9,
		AlphaThreshold:   5,
		GridCols:         3,
		GridRows:         3,
		Candidates:       5,
		ScaleMin:         0.85,
		ScaleMax:         1.20,
		ScaleStep:        0.05,
		DarkThreshold:    70,
		CLAHE:            edge.DefaultCLAHEOptions(),
		HighPassSigma:    edge.DefaultHighPassSigma,
		CannyLow:         40,
		CannyHigh:        120,
		Weights:          DefaultWeights(),
		MinConfidenceGap: 0.02,
		Method:           match.CCoeffNormed,
	}
}

func (o DetectOptions) Validate() error {
	switch {
	case o.MatchThreshold <= 0 || o.MatchThreshold > 1:
		return fmt.Errorf("%w: match threshold %v outside (0, 1]", ErrInvalidParams, o.MatchThreshold)
	case o.AlphaThreshold < 0 || o.AlphaThreshold > 255:
		return fmt.Errorf("%w: alpha threshold %v outside [0, 255]", ErrInvalidParams, o.AlphaThreshold)
	case o.GridCols < 1 || o.GridRows < 1:
		return fmt.Errorf("%w: grid %dx%d", ErrInvalidParams, o.GridCols, o.GridRows)
	case o.Candidates < 1:
		return fmt.Errorf("%w: candidates %d", ErrInvalidParams, o.Candidates)
	case o.ScaleMin <= 0 || o.ScaleMax < o.ScaleMin:
		return fmt.Errorf("%w: scale range [%v, %v]", ErrInvalidParams, o.ScaleMin, o.ScaleMax)
	case o.ScaleStep <= 0 && o.ScaleMax > o.ScaleMin:
		return fmt.Errorf("%w: scale step %v", ErrInvalidParams, o.ScaleStep)
	case o.MinConfidenceGap < 0:
		return fmt.Errorf("%w: confidence gap %v", ErrInvalidParams, o.MinConfidenceGap)
	}
	return o.Weights.Validate()
}

// scales enumerates the sweep from ScaleMin to ScaleMax inclusive.
func (o DetectOptions) scales() []float64 {
	if o.ScaleMax <= o.ScaleMin || o.ScaleStep <= 0 {
		return []float64{o.ScaleMin}
	}
	n := int(math.Floor((o.ScaleMax-o.ScaleMin)/o.ScaleStep+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Round((o.ScaleMin+float64(i)*o.ScaleStep)*1e6) / 1e6
	}
	return out
}

func (o DetectOptions) featureParams() featureParams {
	return featureParams{highPassSigma: o.HighPassSigma, cannyLow: o.CannyLow, cannyHigh: o.CannyHigh}
}
