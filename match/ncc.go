// Package match implements masked normalized cross-correlation template
// matching over float surfaces.
//
// Two back-ends compute the same score surface: a direct sliding-window sum
// for small templates and an FFT correlation for large ones. The caller
// never chooses; the cheaper one is picked from the input sizes.
package match

import (
	"fmt"
	"image"
	"math"

	"github.com/unwm/watermark-go/surface"
)

// Method selects the correlation formula.
type Method int

const (
	// CCorrNormed is sum(I*T) / sqrt(sum(I^2) * sum(T^2)) over the masked
	// template footprint.
	CCorrNormed Method = iota
	// CCoeffNormed subtracts the masked means of window and template first
	// (Pearson correlation per placement).
	CCoeffNormed
)

func (m Method) String() string {
	switch m {
	case CCorrNormed:
		return "ccorr"
	case CCoeffNormed:
		return "ccoeff"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod is the inverse of Method.String.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "ccorr", "":
		return CCorrNormed, nil
	case "ccoeff":
		return CCoeffNormed, nil
	}
	return 0, fmt.Errorf("unknown match method %q", s)
}

// flatVariance is the per-pixel template variance below which a footprint
// counts as flat.
const flatVariance = 1e-9

type backend int

const (
	backendAuto backend = iota
	backendDirect
	backendFFT
)

// Match slides tmpl over img and returns the score surface of size
// (img.W-tmpl.W+1) x (img.H-tmpl.H+1). Only template pixels where mask is
// nonzero take part; a nil mask uses the whole template. A template larger
// than img in either dimension yields an empty (0x0) surface. Degenerate
// placements (zero variance or zero energy) score 0, so the result never
// contains NaN or Inf.
//
// Under CCoeffNormed a template that is flat over its footprint has no
// variance to correlate, so it is scored with CCorrNormed instead.
//
// A mask whose size differs from the template is a programming error and
// panics.
func Match(img, tmpl *surface.Float, mask *image.Gray, method Method) *surface.Float {
	return NewSearcher(img).Match(tmpl, mask, method)
}

// MatchChannels matches each (image, template) channel pair with the shared
// mask and averages the surfaces.
func MatchChannels(imgs, tmpls []*surface.Float, mask *image.Gray, method Method) *surface.Float {
	if len(imgs) != len(tmpls) {
		panic(fmt.Sprintf("match: %d image channels vs %d template channels", len(imgs), len(tmpls)))
	}
	if len(imgs) == 0 {
		return surface.NewFloat(0, 0)
	}
	var acc *surface.Float
	for i := range imgs {
		s := Match(imgs[i], tmpls[i], mask, method)
		if acc == nil {
			acc = s
			continue
		}
		for j, v := range s.Pix {
			acc.Pix[j] += v
		}
	}
	inv := 1 / float64(len(imgs))
	for j := range acc.Pix {
		acc.Pix[j] *= inv
	}
	return acc
}

// template is the masked, possibly mean-centred template ready for
// correlation.
type template struct {
	w, h  int
	coef  []float64 // masked template values (centred for CCoeffNormed)
	mask  []float64 // 1 inside the footprint, 0 outside
	n     float64   // footprint size
	sumT2 float64   // energy of coef
}

func prepare(tmpl *surface.Float, mask *image.Gray, method Method) template {
	t := template{
		w:    tmpl.W,
		h:    tmpl.H,
		coef: make([]float64, len(tmpl.Pix)),
		mask: make([]float64, len(tmpl.Pix)),
	}
	var sum float64
	for y := 0; y < tmpl.H; y++ {
		for x := 0; x < tmpl.W; x++ {
			i := y*tmpl.W + x
			if mask != nil && mask.Pix[y*mask.Stride+x] == 0 {
				continue
			}
			t.mask[i] = 1
			t.n++
			sum += tmpl.Pix[i]
		}
	}
	var mean float64
	if method == CCoeffNormed && t.n > 0 {
		mean = sum / t.n
	}
	for i, m := range t.mask {
		if m == 0 {
			continue
		}
		v := tmpl.Pix[i] - mean
		t.coef[i] = v
		t.sumT2 += v * v
	}
	return t
}

// terms are the per-placement sums the score is built from.
type terms struct {
	cross *surface.Float // sum(I * coef)
	sumI  *surface.Float // sum(I) over the footprint
	sumI2 *surface.Float // sum(I^2) over the footprint
}

func (s *Searcher) match(tmpl *surface.Float, mask *image.Gray, method Method, be backend) *surface.Float {
	img := s.img
	if mask != nil {
		if b := mask.Bounds(); b.Dx() != tmpl.W || b.Dy() != tmpl.H {
			panic(fmt.Sprintf("match: mask %dx%d does not match template %dx%d", b.Dx(), b.Dy(), tmpl.W, tmpl.H))
		}
	}
	if img.Empty() || tmpl.Empty() || img.W < tmpl.W || img.H < tmpl.H {
		return surface.NewFloat(0, 0)
	}
	rw, rh := img.W-tmpl.W+1, img.H-tmpl.H+1
	t := prepare(tmpl, mask, method)
	if method == CCoeffNormed && t.n > 0 && t.sumT2/t.n <= flatVariance {
		method = CCorrNormed
		t = prepare(tmpl, mask, method)
	}
	if t.n == 0 || t.sumT2 <= 1e-12 {
		return surface.NewFloat(rw, rh)
	}

	if be == backendAuto {
		be = s.chooseBackend(t, rw, rh)
	}
	var tr terms
	if be == backendFFT {
		tr = s.fftTerms(t, rw, rh)
	} else {
		tr = directTerms(img, t, rw, rh)
	}

	out := surface.NewFloat(rw, rh)
	for i := range out.Pix {
		cross, sumI2 := tr.cross.Pix[i], tr.sumI2.Pix[i]
		var energy float64
		switch method {
		case CCoeffNormed:
			sumI := tr.sumI.Pix[i]
			energy = sumI2 - sumI*sumI/t.n
		default:
			energy = sumI2
		}
		if energy <= 1e-9*sumI2+1e-9 {
			continue
		}
		v := cross / math.Sqrt(energy*t.sumT2)
		out.Pix[i] = math.Max(-1, math.Min(1, v))
	}
	out.Sanitize()
	return out
}

// chooseBackend compares the direct cost (placements x footprint) with a
// rough estimate of the 2-D transforms the FFT path still needs for this
// template.
func (s *Searcher) chooseBackend(t template, rw, rh int) backend {
	direct := float64(rw*rh) * t.n
	pw, ph := paddedSize(s.img.W, s.img.H)
	transforms := 5.0
	if !s.ready() {
		transforms += 2
	}
	fft := transforms * 4 * float64(pw*ph) * math.Log2(float64(pw*ph))
	if fft < direct {
		return backendFFT
	}
	return backendDirect
}

func directTerms(img *surface.Float, t template, rw, rh int) terms {
	offs := make([]int, 0, int(t.n))
	coef := make([]float64, 0, int(t.n))
	for y := 0; y < t.h; y++ {
		for x := 0; x < t.w; x++ {
			i := y*t.w + x
			if t.mask[i] == 0 {
				continue
			}
			offs = append(offs, y*img.W+x)
			coef = append(coef, t.coef[i])
		}
	}
	tr := terms{
		cross: surface.NewFloat(rw, rh),
		sumI:  surface.NewFloat(rw, rh),
		sumI2: surface.NewFloat(rw, rh),
	}
	for y := 0; y < rh; y++ {
		for x := 0; x < rw; x++ {
			base := y*img.W + x
			var cross, s, s2 float64
			for k, off := range offs {
				v := img.Pix[base+off]
				cross += v * coef[k]
				s += v
				s2 += v * v
			}
			i := y*rw + x
			tr.cross.Pix[i] = cross
			tr.sumI.Pix[i] = s
			tr.sumI2.Pix[i] = s2
		}
	}
	return tr
}
