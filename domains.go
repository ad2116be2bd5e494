package watermark

import (
	"fmt"
	"image"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/unwm/watermark-go/edge"
	"github.com/unwm/watermark-go/surface"
)

// Domain names one of the feature spaces the detector correlates in.
type Domain string

const (
	// DomainTexture correlates luminance, taking the better of the template
	// and its brightness-inverted copy.
	DomainTexture Domain = "texture"
	// DomainGradient correlates Sobel gradient magnitudes.
	DomainGradient Domain = "gradient"
	// DomainHighPass correlates Gaussian high-pass residuals.
	DomainHighPass Domain = "highpass"
	// DomainEdges correlates binary Canny edge maps.
	DomainEdges Domain = "edges"
)

// Domains lists every domain in evaluation order.
var Domains = []Domain{DomainTexture, DomainGradient, DomainHighPass, DomainEdges}

// Weights maps each domain to its share of the combined score. Missing
// domains weigh 0 and are not computed.
type Weights map[Domain]float64

// DefaultWeights is 0.45 texture, 0.35 gradient and 0.20 high-pass.
func DefaultWeights() Weights {
	return Weights{
		DomainTexture:  0.45,
		DomainGradient: 0.35,
		DomainHighPass: 0.20,
		DomainEdges:    0,
	}
}

func (w Weights) Validate() error {
	var total float64
	for d, v := range w {
		if !slices.Contains(Domains, d) {
			return fmt.Errorf("%w: unknown score domain %q", ErrInvalidParams, d)
		}
		if v < 0 {
			return fmt.Errorf("%w: negative weight %v for %s", ErrInvalidParams, v, d)
		}
		total += v
	}
	if total <= 0 {
		return fmt.Errorf("%w: score weights sum to zero", ErrInvalidParams)
	}
	return nil
}

// Active returns the domains with a positive weight, in evaluation order.
func (w Weights) Active() []Domain {
	var out []Domain
	for _, d := range Domains {
		if w[d] > 0 {
			out = append(out, d)
		}
	}
	return out
}

// Combine returns the weighted mean of the per-domain scores. Domains absent
// from scores count as 0.
func (w Weights) Combine(scores map[Domain]float64) float64 {
	ws := make([]float64, len(Domains))
	ss := make([]float64, len(Domains))
	for i, d := range Domains {
		ws[i] = w[d]
		ss[i] = scores[d]
	}
	total := floats.Sum(ws)
	if total <= 0 {
		return 0
	}
	return floats.Dot(ws, ss) / total
}

// featureParams are the filter settings shared by window and template
// feature extraction.
type featureParams struct {
	highPassSigma       float64
	cannyLow, cannyHigh float64
}

// features computes the feature surface of g for each requested domain.
// Texture is g itself.
func features(g *surface.Float, domains []Domain, fp featureParams) map[Domain]*surface.Float {
	out := make(map[Domain]*surface.Float, len(domains))
	for _, d := range domains {
		switch d {
		case DomainTexture:
			out[d] = g
		case DomainGradient:
			out[d] = edge.GradientMagnitude(g)
		case DomainHighPass:
			out[d] = edge.HighPass(g, fp.highPassSigma)
		case DomainEdges:
			out[d] = surface.FromGray(edge.Canny(g, fp.cannyLow, fp.cannyHigh))
		}
	}
	return out
}

// maskEdges clears edge responses outside the template footprint so the
// silhouette of the canvas does not count as structure.
func maskEdges(f *surface.Float, mask *image.Gray) *surface.Float {
	out := f.Clone()
	for y := 0; y < f.H; y++ {
		for x := 0; x < f.W; x++ {
			if mask.Pix[y*mask.Stride+x] == 0 {
				out.Pix[y*f.W+x] = 0
			}
		}
	}
	return out
}
