package watermark

import (
	"bytes"
	"context"
	"fmt"
)

// DetectWatermarkBytes decodes raw base and watermark images and runs
// Detect on them.
func (e *Engine) DetectWatermarkBytes(ctx context.Context, data, wmData []byte, opts DetectOptions) ([]Detection, error) {
	img, _, err := DecodeImageBytes(data)
	if err != nil {
		return nil, err
	}
	wm, _, err := DecodeImageBytes(wmData)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	return e.Detect(ctx, img, wm, opts)
}

// RemoveWatermarkBytes removes wmData placed at (offX, offY) from data and
// returns the result as PNG bytes.
func (e *Engine) RemoveWatermarkBytes(data, wmData []byte, offX, offY int, p Params) ([]byte, error) {
	img, _, err := DecodeImageBytes(data)
	if err != nil {
		return nil, err
	}
	wm, _, err := DecodeImageBytes(wmData)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	out, err := e.RemoveWatermark(img, wm, offX, offY, p)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := EncodePNG(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
