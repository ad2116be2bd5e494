package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	watermark "github.com/unwm/watermark-go"
	"github.com/unwm/watermark-go/config"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())
	s := NewServer(watermark.NewEngine(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s, s.Router()
}

func noise(w, h, lo, span int, seed uint64, alpha uint8) *image.NRGBA {
	r := rand.New(rand.NewPCG(seed, seed+1))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		v := uint8(lo + r.IntN(span))
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, alpha
	}
	return img
}

func fill(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func toNRGBA(img image.Image) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}

// planted pastes an opaque noisy watermark into a noisy base at (67, 41).
func planted() (base, wm *image.NRGBA) {
	base = noise(160, 120, 110, 120, 1, 0xff)
	wm = noise(24, 24, 30, 200, 2, 0xff)
	draw.Draw(base, wm.Bounds().Add(image.Pt(67, 41)), wm, image.Point{}, draw.Src)
	return base, wm
}

func multipartRequest(t *testing.T, path string, files map[string]image.Image, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, img := range files {
		fw, err := mw.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		require.NoError(t, png.Encode(fw, img))
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealthAndRequestID(t *testing.T) {
	_, h := newTestServer(t)

	w := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, id)
	w = serve(h, req)
	assert.Equal(t, id, w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	w = serve(h, req)
	assert.NotEqual(t, "not-a-uuid", w.Header().Get(RequestIDHeader))
}

func TestDetect(t *testing.T) {
	_, h := newTestServer(t)
	base, wm := planted()

	w := serve(h, multipartRequest(t, "/api/v1/detect",
		map[string]image.Image{"image": base, "watermark": wm},
		map[string]string{"threshold": "0.8", "max_results": "1"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Detections []watermark.Detection `json:"detections"`
	}
	decodeJSON(t, w, &resp)
	require.Len(t, resp.Detections, 1)
	assert.InDelta(t, 67, resp.Detections[0].OffsetX, 1)
	assert.InDelta(t, 41, resp.Detections[0].OffsetY, 1)
}

func TestDetectBadRequests(t *testing.T) {
	_, h := newTestServer(t)
	base, wm := planted()

	tests := []struct {
		name   string
		files  map[string]image.Image
		fields map[string]string
	}{
		{"missing watermark", map[string]image.Image{"image": base}, nil},
		{"threshold not a number", map[string]image.Image{"image": base, "watermark": wm}, map[string]string{"threshold": "high"}},
		{"threshold out of range", map[string]image.Image{"image": base, "watermark": wm}, map[string]string{"threshold": "2"}},
		{"unknown method", map[string]image.Image{"image": base, "watermark": wm}, map[string]string{"method": "sqdiff"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, multipartRequest(t, "/api/v1/detect", tt.files, tt.fields))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp map[string]string
			decodeJSON(t, w, &resp)
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestRefine(t *testing.T) {
	_, h := newTestServer(t)
	base, wm := planted()

	w := serve(h, multipartRequest(t, "/api/v1/refine",
		map[string]image.Image{"image": base, "watermark": wm},
		map[string]string{"x": "60", "y": "35", "threshold": "0.8"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Detection *watermark.Detection `json:"detection"`
	}
	decodeJSON(t, w, &resp)
	require.NotNil(t, resp.Detection)
	assert.InDelta(t, 67, resp.Detection.OffsetX, 1)
	assert.InDelta(t, 41, resp.Detection.OffsetY, 1)
}

func TestRemoveExplicitOffset(t *testing.T) {
	_, h := newTestServer(t)
	base := noise(64, 48, 100, 60, 3, 0xff)
	wm := noise(16, 16, 200, 40, 4, 120)

	w := serve(h, multipartRequest(t, "/api/v1/remove",
		map[string]image.Image{"image": base, "watermark": wm},
		map[string]string{"x": "10", "y": "12", "alpha_adjust": "0.9"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "10,12", w.Header().Get("X-Watermark-Offset"))

	got, err := png.Decode(w.Body)
	require.NoError(t, err)
	want, err := watermark.NewEngine().RemoveWatermark(base, wm, 10, 12, watermark.Params{AlphaAdjust: 0.9, OpaqueClamp: 255})
	require.NoError(t, err)
	assert.Equal(t, want.Pix, toNRGBA(got).Pix)
}

func TestRemovePreset(t *testing.T) {
	_, h := newTestServer(t)
	base := noise(160, 120, 100, 60, 5, 0xff)
	wm := noise(24, 24, 200, 40, 6, 120)

	w := serve(h, multipartRequest(t, "/api/v1/remove",
		map[string]image.Image{"image": base, "watermark": wm},
		map[string]string{"preset": "corner-logo"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "120,80", w.Header().Get("X-Watermark-Offset"))

	w = serve(h, multipartRequest(t, "/api/v1/remove",
		map[string]image.Image{"image": base, "watermark": wm},
		map[string]string{"preset": "no-such-preset"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveAutoNothingDetected(t *testing.T) {
	_, h := newTestServer(t)
	base := noise(96, 96, 100, 60, 7, 0xff)
	wm := noise(24, 24, 30, 200, 8, 0xff)

	w := serve(h, multipartRequest(t, "/api/v1/remove",
		map[string]image.Image{"image": base, "watermark": wm}, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = serve(h, multipartRequest(t, "/api/v1/remove",
		map[string]image.Image{"image": base, "watermark": wm},
		map[string]string{"x": "3"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGuessAlpha(t *testing.T) {
	_, h := newTestServer(t)
	base := noise(64, 64, 100, 24, 9, 0xff)
	wm := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	draw.Draw(wm, image.Rect(6, 6, 26, 20), &image.Uniform{C: color.NRGBA{R: 255, G: 255, B: 255, A: 180}}, image.Point{}, draw.Src)

	w := serve(h, multipartRequest(t, "/api/v1/guess-alpha",
		map[string]image.Image{"image": base, "watermark": wm},
		map[string]string{"x": "8", "y": "8"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	decodeJSON(t, w, &resp)
	assert.Contains(t, resp, "found")

	w = serve(h, multipartRequest(t, "/api/v1/guess-alpha",
		map[string]image.Image{"image": base, "watermark": wm}, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtract(t *testing.T) {
	_, h := newTestServer(t)
	mark := color.NRGBA{R: 200, G: 100, B: 50, A: 128}
	over := func(bg uint8) *image.NRGBA {
		a := float64(mark.A) / 255
		blend := func(c uint8) uint8 { return uint8(math.Round(a*float64(c) + (1-a)*float64(bg))) }
		img := fill(32, 32, color.NRGBA{R: bg, G: bg, B: bg, A: 0xff})
		draw.Draw(img, image.Rect(8, 8, 24, 24), &image.Uniform{C: color.NRGBA{R: blend(mark.R), G: blend(mark.G), B: blend(mark.B), A: 0xff}}, image.Point{}, draw.Src)
		return img
	}

	w := serve(h, multipartRequest(t, "/api/v1/extract",
		map[string]image.Image{"a": over(0), "b": over(255)},
		map[string]string{"window": "8,8,24,24", "bg_a": "#000", "bg_b": "#ffffff"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 16), got.Bounds())
	px := toNRGBA(got).NRGBAAt(5, 5)
	assert.InDelta(t, mark.R, px.R, 3)
	assert.InDelta(t, mark.G, px.G, 3)
	assert.InDelta(t, mark.B, px.B, 3)
	assert.InDelta(t, mark.A, px.A, 2)

	w = serve(h, multipartRequest(t, "/api/v1/extract",
		map[string]image.Image{"a": over(0), "b": over(255)},
		map[string]string{"window": "40,40,50,50"}))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = serve(h, multipartRequest(t, "/api/v1/extract",
		map[string]image.Image{"a": over(0), "b": over(255)},
		map[string]string{"bg_a": "dark"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPresets(t *testing.T) {
	s, h := newTestServer(t)
	w := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/presets", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Presets []config.Preset `json:"presets"`
	}
	decodeJSON(t, w, &resp)
	all, err := s.cfg.AllPresets()
	require.NoError(t, err)
	assert.Equal(t, all, resp.Presets)
}
