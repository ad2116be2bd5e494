package edge

import (
	"image"
	"math"

	"github.com/unwm/watermark-go/surface"
)

// Canny produces a binary edge map (0 or 255): Sobel gradients, non-maximum
// suppression along the quantised gradient direction, then hysteresis with
// the low and high magnitude thresholds.
func Canny(g *surface.Float, low, high float64) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, g.W, g.H))
	if g.Empty() {
		return out
	}
	if low > high {
		low, high = high, low
	}
	gx, gy := Sobel(g)
	mag := surface.NewFloat(g.W, g.H)
	for i := range mag.Pix {
		mag.Pix[i] = math.Hypot(gx.Pix[i], gy.Pix[i])
	}

	thin := surface.NewFloat(g.W, g.H)
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			i := y*g.W + x
			m := mag.Pix[i]
			if m == 0 {
				continue
			}
			dx, dy := direction(gx.Pix[i], gy.Pix[i])
			if m >= mag.Clamped(x+dx, y+dy) && m >= mag.Clamped(x-dx, y-dy) {
				thin.Pix[i] = m
			}
		}
	}

	const (
		none = iota
		weak
		strong
	)
	state := make([]uint8, len(thin.Pix))
	stack := make([]int, 0, 64)
	for i, m := range thin.Pix {
		switch {
		case m >= high:
			state[i] = strong
			stack = append(stack, i)
		case m >= low:
			state[i] = weak
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out.Pix[i] = 0xff
		x, y := i%g.W, i/g.W
		for ny := y - 1; ny <= y+1; ny++ {
			for nx := x - 1; nx <= x+1; nx++ {
				if nx < 0 || ny < 0 || nx >= g.W || ny >= g.H {
					continue
				}
				j := ny*g.W + nx
				if state[j] == weak {
					state[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}
	return out
}

// direction quantises the gradient angle into one of four neighbour
// offsets.
func direction(gx, gy float64) (int, int) {
	angle := math.Atan2(gy, gx) * 180 / math.Pi
	if angle < 0 {
		angle += 180
	}
	switch {
	case angle < 22.5 || angle >= 157.5:
		return 1, 0
	case angle < 67.5:
		return 1, 1
	case angle < 112.5:
		return 0, 1
	default:
		return -1, 1
	}
}
