package api

import (
	"bytes"
	"fmt"
	"image"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	watermark "github.com/unwm/watermark-go"
	"github.com/unwm/watermark-go/config"
	"github.com/unwm/watermark-go/match"
)

// detectOptions starts from the configured options and applies the
// per-request overrides.
func (s *Server) detectOptions(c *gin.Context) (watermark.DetectOptions, error) {
	opts := s.cfg.DetectOptions()
	var err error
	if opts.MaxResults, err = formInt(c, "max_results", opts.MaxResults); err != nil {
		return opts, err
	}
	if opts.MatchThreshold, err = formFloat(c, "threshold", opts.MatchThreshold); err != nil {
		return opts, err
	}
	if opts.Verify, err = formBool(c, "verify", opts.Verify); err != nil {
		return opts, err
	}
	if m := c.PostForm("method"); m != "" {
		if opts.Method, err = match.ParseMethod(m); err != nil {
			return opts, badRequest("%v", err)
		}
	}
	return opts, opts.Validate()
}

func (s *Server) removeParams(c *gin.Context, def watermark.Params) (watermark.Params, error) {
	p := def
	var err error
	if p.AlphaAdjust, err = formFloat(c, "alpha_adjust", p.AlphaAdjust); err != nil {
		return p, err
	}
	if p.TransparencyClamp, err = formInt(c, "transparency_clamp", p.TransparencyClamp); err != nil {
		return p, err
	}
	if p.OpaqueClamp, err = formInt(c, "opaque_clamp", p.OpaqueClamp); err != nil {
		return p, err
	}
	return p, p.Validate()
}

func (s *Server) handleDetect(c *gin.Context) {
	imgs, err := formImages(c, "image", "watermark")
	if err != nil {
		s.respondError(c, err)
		return
	}
	opts, err := s.detectOptions(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	dets, err := s.eng.Detect(c.Request.Context(), imgs[0], imgs[1], opts)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if dets == nil {
		dets = []watermark.Detection{}
	}
	c.JSON(http.StatusOK, gin.H{"detections": dets})
}

func (s *Server) handleRefine(c *gin.Context) {
	imgs, err := formImages(c, "image", "watermark")
	if err != nil {
		s.respondError(c, err)
		return
	}
	opts, err := s.detectOptions(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	x, errX := formFloat(c, "x", 0)
	y, errY := formFloat(c, "y", 0)
	scale, errS := formFloat(c, "search_scale", 2)
	for _, e := range []error{errX, errY, errS} {
		if e != nil {
			s.respondError(c, e)
			return
		}
	}
	det, err := s.eng.RefinePosition(c.Request.Context(), imgs[0], imgs[1], x, y, scale, opts)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detection": det})
}

// handleRemove unblends the watermark at x, y, at a named preset's
// position, or at the strongest detection when neither is given. It
// responds with the cleaned PNG.
func (s *Server) handleRemove(c *gin.Context) {
	imgs, err := formImages(c, "image", "watermark")
	if err != nil {
		s.respondError(c, err)
		return
	}
	base, wm := imgs[0], imgs[1]
	def := s.cfg.RemoveParams()
	at, explicit, err := formOffset(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	auto := !explicit
	if name := c.PostForm("preset"); name != "" && !explicit {
		preset, err := s.cfg.Preset(name)
		if err != nil {
			s.respondError(c, badRequest("%v", err))
			return
		}
		b, w := base.Bounds(), wm.Bounds()
		at = preset.Resolve(b.Dx(), b.Dy(), w.Dx(), w.Dy())
		def = preset.Params(def)
		auto = false
	}
	p, err := s.removeParams(c, def)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var out *image.NRGBA
	if auto {
		opts, err := s.detectOptions(c)
		if err != nil {
			s.respondError(c, err)
			return
		}
		var det *watermark.Detection
		out, det, err = s.eng.Clean(c.Request.Context(), base, wm, opts, p)
		if err != nil {
			s.respondError(c, err)
			return
		}
		if det == nil {
			s.respondError(c, fmt.Errorf("%w: no watermark detected", errNotFound))
			return
		}
		at = image.Pt(int(det.OffsetX+0.5), int(det.OffsetY+0.5))
		c.Header("X-Watermark-Score", strconv.FormatFloat(det.Score, 'f', 4, 64))
	} else if out, err = s.eng.RemoveWatermark(base, wm, at.X, at.Y, p); err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("X-Watermark-Offset", fmt.Sprintf("%d,%d", at.X, at.Y))
	s.writePNG(c, out)
}

func (s *Server) handleGuessAlpha(c *gin.Context) {
	imgs, err := formImages(c, "image", "watermark")
	if err != nil {
		s.respondError(c, err)
		return
	}
	at, ok, err := formOffset(c)
	if err == nil && !ok {
		err = badRequest("x and y are required")
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	p, err := s.removeParams(c, s.cfg.RemoveParams())
	if err != nil {
		s.respondError(c, err)
		return
	}
	alpha, found, err := s.eng.GuessAlpha(c.Request.Context(), imgs[0], imgs[1], at.X, at.Y, p.TransparencyClamp, p.OpaqueClamp)
	if err != nil {
		s.respondError(c, err)
		return
	}
	resp := gin.H{"found": found}
	if found {
		resp["alphaAdjust"] = alpha
	}
	c.JSON(http.StatusOK, resp)
}

// handleExtract reconstructs a watermark from sample a over bg_a and sample
// b over bg_b, with b placed at x, y in a's frame.
func (s *Server) handleExtract(c *gin.Context) {
	imgs, err := formImages(c, "a", "b")
	if err != nil {
		s.respondError(c, err)
		return
	}
	a, b := imgs[0], imgs[1]
	at, _, err := formOffset(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	window, err := formRect(c, "window", a.Bounds())
	if err != nil {
		s.respondError(c, err)
		return
	}
	bgA, err := watermark.ParseColor(c.DefaultPostForm("bg_a", "#000000"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	bgB, err := watermark.ParseColor(c.DefaultPostForm("bg_b", "#ffffff"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	stretch, err := formBool(c, "stretch", false)
	if err != nil {
		s.respondError(c, err)
		return
	}

	out, ok, err := s.eng.Extract(a, b, at.X, at.Y, window, bgA, bgB)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !ok {
		s.respondError(c, fmt.Errorf("%w: window does not overlap both samples", errNotFound))
		return
	}
	if stretch {
		out = watermark.ContrastStretch(out)
	}
	s.writePNG(c, out)
}

func (s *Server) handlePresets(c *gin.Context) {
	presets, err := s.cfg.AllPresets()
	if err != nil {
		s.respondError(c, err)
		return
	}
	if presets == nil {
		presets = []config.Preset{}
	}
	c.JSON(http.StatusOK, gin.H{"presets": presets})
}

func (s *Server) writePNG(c *gin.Context, img image.Image) {
	var buf bytes.Buffer
	if err := watermark.EncodePNG(&buf, img); err != nil {
		s.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}
