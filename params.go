package watermark

import (
	"errors"
	"fmt"
)

var (
	// ErrNilImage is returned when a required image argument is nil.
	ErrNilImage = errors.New("watermark: nil image")
	// ErrEmptyImage is returned for images with a zero width or height.
	ErrEmptyImage = errors.New("watermark: empty image")
	// ErrInvalidParams wraps every option or parameter validation failure.
	ErrInvalidParams = errors.New("watermark: invalid parameters")
)

// Detection is one placement of the watermark inside a base image.
type Detection struct {
	// OffsetX and OffsetY locate the watermark canvas' top-left corner in
	// base image coordinates.
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
	// Score is the combined match score, roughly in [0, 1].
	Score float64 `json:"score"`
	// Scale is the template scale factor the match was found at.
	Scale float64 `json:"scale"`
}

// Params are the knobs of the unblend formula.
type Params struct {
	// AlphaAdjust multiplies the watermark alpha before inversion; values
	// other than 1 compensate for an approximate alpha channel.
	AlphaAdjust float64 `json:"alphaAdjust" yaml:"alpha_adjust"`
	// TransparencyClamp leaves pixels whose adjusted alpha is at or below it
	// untouched.
	TransparencyClamp int `json:"transparencyClamp" yaml:"transparency_clamp"`
	// OpaqueClamp starts blending with the left neighbour for pixels whose
	// adjusted alpha is above it.
	OpaqueClamp int `json:"opaqueClamp" yaml:"opaque_clamp"`
}

// DefaultParams inverts the alpha channel as is, with no clamping.
func DefaultParams() Params {
	return Params{AlphaAdjust: 1, TransparencyClamp: 0, OpaqueClamp: 255}
}

func (p Params) Validate() error {
	if p.AlphaAdjust < 0 {
		return fmt.Errorf("%w: alpha adjust %v is negative", ErrInvalidParams, p.AlphaAdjust)
	}
	if err := checkClamp("transparency", p.TransparencyClamp); err != nil {
		return err
	}
	return checkClamp("opaque", p.OpaqueClamp)
}

func checkClamp(name string, v int) error {
	if v < 0 || v > 255 {
		return fmt.Errorf("%w: %s clamp %d outside [0, 255]", ErrInvalidParams, name, v)
	}
	return nil
}
