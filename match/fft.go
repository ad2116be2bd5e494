package match

import (
	"image"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/mjibson/go-dsp/fft"

	"github.com/unwm/watermark-go/surface"
)

// Searcher correlates any number of templates against one image. The image
// spectra needed by the FFT back-end are computed once, on first use, and
// shared by later calls. A Searcher is safe for concurrent use.
type Searcher struct {
	img *surface.Float

	once    sync.Once
	done    atomic.Bool
	fa, fa2 [][]complex128
}

// NewSearcher prepares img for repeated matching. img must not be modified
// while the Searcher is in use.
func NewSearcher(img *surface.Float) *Searcher {
	return &Searcher{img: img}
}

// Match is the Searcher form of the package-level Match.
func (s *Searcher) Match(tmpl *surface.Float, mask *image.Gray, method Method) *surface.Float {
	return s.match(tmpl, mask, method, backendAuto)
}

func (s *Searcher) ready() bool {
	return s.done.Load()
}

func (s *Searcher) spectra() (fa, fa2 [][]complex128) {
	s.once.Do(func() {
		pw, ph := paddedSize(s.img.W, s.img.H)
		a := grid(pw, ph)
		a2 := grid(pw, ph)
		for y := 0; y < s.img.H; y++ {
			for x := 0; x < s.img.W; x++ {
				v := s.img.Pix[y*s.img.W+x]
				a[y][x] = v
				a2[y][x] = v * v
			}
		}
		s.fa = fft.FFT2Real(a)
		s.fa2 = fft.FFT2Real(a2)
		s.done.Store(true)
	})
	return s.fa, s.fa2
}

// paddedSize rounds both dimensions up to a power of two so the transforms
// take the radix-2 path. Zero padding never reaches a valid placement.
func paddedSize(w, h int) (int, int) {
	return nextPow2(w), nextPow2(h)
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

func grid(w, h int) [][]float64 {
	rows := make([][]float64, h)
	for y := range rows {
		rows[y] = make([]float64, w)
	}
	return rows
}

// fftTerms computes the correlation sums through the frequency domain:
// corr(A, K) = IFFT(FFT(A) * conj(FFT(K))). The kernels are zero-padded to
// the padded image size.
func (s *Searcher) fftTerms(t template, rw, rh int) terms {
	fa, fa2 := s.spectra()
	pw, ph := paddedSize(s.img.W, s.img.H)
	k := grid(pw, ph)
	m := grid(pw, ph)
	for y := 0; y < t.h; y++ {
		for x := 0; x < t.w; x++ {
			k[y][x] = t.coef[y*t.w+x]
			m[y][x] = t.mask[y*t.w+x]
		}
	}
	fk := fft.FFT2Real(k)
	fm := fft.FFT2Real(m)

	return terms{
		cross: correlate(fa, fk, rw, rh),
		sumI:  correlate(fa, fm, rw, rh),
		sumI2: correlate(fa2, fm, rw, rh),
	}
}

func correlate(fa, fk [][]complex128, rw, rh int) *surface.Float {
	prod := make([][]complex128, len(fa))
	for y := range fa {
		prod[y] = make([]complex128, len(fa[y]))
		for x := range fa[y] {
			kv := fk[y][x]
			prod[y][x] = fa[y][x] * complex(real(kv), -imag(kv))
		}
	}
	spatial := fft.IFFT2(prod)
	out := surface.NewFloat(rw, rh)
	for y := 0; y < rh; y++ {
		for x := 0; x < rw; x++ {
			out.Pix[y*rw+x] = real(spatial[y][x])
		}
	}
	return out
}
