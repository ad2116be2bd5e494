package watermark

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"
)

// DecodeBase64Image decodes a base64-encoded image (optionally a data URL) into
// an image.Image. It returns the decoded image and the detected format string
// ("png", "jpeg", "webp", etc.).
func DecodeBase64Image(input string) (image.Image, string, error) {
	raw := stripDataPrefix(input)

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}

	return DecodeImageBytes(data)
}

// EncodePNGToBase64 encodes an image as PNG and returns a base64 string.
func EncodePNGToBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// RemoveWatermarkBase64 detects the watermark wmInput in the base64 image
// input and removes its strongest placement. It returns the cleaned image as
// base64 PNG and the detection used. When no placement clears the threshold
// output is empty and det is nil.
func (e *Engine) RemoveWatermarkBase64(ctx context.Context, input, wmInput string, opts DetectOptions, p Params) (output string, det *Detection, err error) {
	img, _, err := DecodeBase64Image(input)
	if err != nil {
		return "", nil, err
	}
	wm, _, err := DecodeBase64Image(wmInput)
	if err != nil {
		return "", nil, fmt.Errorf("watermark: %w", err)
	}

	cleaned, det, err := e.Clean(ctx, img, wm, opts, p)
	if err != nil || det == nil {
		return "", nil, err
	}

	output, err = EncodePNGToBase64(cleaned)
	if err != nil {
		return "", nil, err
	}
	return output, det, nil
}

func stripDataPrefix(input string) string {
	lower := strings.ToLower(input)
	if strings.HasPrefix(lower, "data:") {
		if idx := strings.Index(input, ","); idx != -1 {
			return input[idx+1:]
		}
	}
	return input
}
