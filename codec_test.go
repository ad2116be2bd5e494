package watermark

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/draw"
	"image/png"
	"path/filepath"
	"testing"
)

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// Ensure the byte-slice removal path matches removing from decoded images.
func TestRemoveWatermarkBytesMatchesImagePath(t *testing.T) {
	_, marked, wm := translucentScene()
	eng := NewEngine()

	outputBytes, err := eng.RemoveWatermarkBytes(pngBytes(t, marked), pngBytes(t, wm), 67, 41, DefaultParams())
	if err != nil {
		t.Fatalf("RemoveWatermarkBytes error: %v", err)
	}
	gotImg, format, err := image.Decode(bytes.NewReader(outputBytes))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "png" {
		t.Fatalf("expected png output, got %q", format)
	}

	expectedImg, err := eng.RemoveWatermark(marked, wm, 67, 41, DefaultParams())
	if err != nil {
		t.Fatalf("RemoveWatermark error: %v", err)
	}
	if !imagesEqual(expectedImg, gotImg) {
		t.Fatalf("output image pixels differ from in-memory removal")
	}
}

func TestDetectWatermarkBytes(t *testing.T) {
	base, wm, at := plantedScene()
	opts := DefaultDetectOptions()
	opts.MatchThreshold = 0.8

	dets, err := NewEngine().DetectWatermarkBytes(context.Background(), pngBytes(t, base), pngBytes(t, wm), opts)
	if err != nil {
		t.Fatalf("DetectWatermarkBytes error: %v", err)
	}
	if len(dets) == 0 {
		t.Fatalf("expected a detection")
	}
	if dx, dy := dets[0].OffsetX-float64(at.X), dets[0].OffsetY-float64(at.Y); dx*dx+dy*dy > 2 {
		t.Fatalf("detection %+v too far from %v", dets[0], at)
	}

	if _, err := NewEngine().DetectWatermarkBytes(context.Background(), []byte("not an image"), pngBytes(t, wm), opts); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := NewEngine().DetectWatermarkBytes(context.Background(), pngBytes(t, base), nil, opts); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage for empty watermark, got %v", err)
	}
}

func TestRemoveWatermarkBase64(t *testing.T) {
	_, marked, wm := translucentScene()
	input, err := EncodePNGToBase64(marked)
	if err != nil {
		t.Fatalf("encode input: %v", err)
	}
	wmInput, err := EncodePNGToBase64(wm)
	if err != nil {
		t.Fatalf("encode watermark: %v", err)
	}
	opts := DefaultDetectOptions()
	opts.MatchThreshold = 0.8

	output, det, err := NewEngine().RemoveWatermarkBase64(context.Background(), "data:image/png;base64,"+input, wmInput, opts, DefaultParams())
	if err != nil {
		t.Fatalf("RemoveWatermarkBase64 error: %v", err)
	}
	if det == nil || output == "" {
		t.Fatalf("expected a cleaned image, got det=%v", det)
	}
	cleaned, format, err := DecodeBase64Image(output)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "png" || !cleaned.Bounds().Eq(marked.Bounds()) {
		t.Fatalf("unexpected output %s %v", format, cleaned.Bounds())
	}
}

func TestDecodeRejectsEmpty(t *testing.T) {
	if _, _, err := DecodeImageBytes(nil); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
	if _, _, err := DecodeBase64Image("data:image/png;base64,!!"); err == nil {
		t.Fatalf("expected an error for malformed base64")
	}
}

func TestEncodePNGFileRoundTrip(t *testing.T) {
	img := noiseImage(12, 9, 0, 256, 3)
	path := filepath.Join(t.TempDir(), "out.png")
	if err := EncodePNGFile(path, img); err != nil {
		t.Fatalf("EncodePNGFile: %v", err)
	}
	got, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if !imagesEqual(img, got) {
		t.Fatalf("round trip changed pixels")
	}
	if _, err := DecodeFile(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func imagesEqual(a, b image.Image) bool {
	if !a.Bounds().Eq(b.Bounds()) {
		return false
	}
	return bytes.Equal(imageToNRGBA(a).Pix, imageToNRGBA(b).Pix)
}

func imageToNRGBA(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	out := image.NewNRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)
	return out
}
