package api

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	watermark "github.com/unwm/watermark-go"
)

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// respondError maps library and request errors to a status code and writes
// {"error": ...}.
func (s *Server) respondError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &tooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, watermark.ErrInvalidParams),
		errors.Is(err, watermark.ErrNilImage),
		errors.Is(err, watermark.ErrEmptyImage):
		status = http.StatusBadRequest
	case errors.Is(err, errNotFound):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	}
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(c.Request.Context(), "request failed", "error", err)
	} else {
		s.log.DebugContext(c.Request.Context(), "request rejected", "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func formImage(c *gin.Context, field string) (image.Image, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, badRequest("missing file %q", field)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := watermark.Decode(f)
	if err != nil {
		return nil, badRequest("%s: %v", field, err)
	}
	return img, nil
}

func formImages(c *gin.Context, fields ...string) ([]image.Image, error) {
	out := make([]image.Image, len(fields))
	for i, f := range fields {
		img, err := formImage(c, f)
		if err != nil {
			return nil, err
		}
		out[i] = img
	}
	return out, nil
}

func formInt(c *gin.Context, field string, def int) (int, error) {
	v, ok := c.GetPostForm(field)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, badRequest("%s: %q is not an integer", field, v)
	}
	return n, nil
}

func formFloat(c *gin.Context, field string, def float64) (float64, error) {
	v, ok := c.GetPostForm(field)
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, badRequest("%s: %q is not a number", field, v)
	}
	return f, nil
}

func formBool(c *gin.Context, field string, def bool) (bool, error) {
	v, ok := c.GetPostForm(field)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, badRequest("%s: %q is not a boolean", field, v)
	}
	return b, nil
}

// formOffset reads the integer pair x, y. ok is false when neither is set.
func formOffset(c *gin.Context) (p image.Point, ok bool, err error) {
	_, hasX := c.GetPostForm("x")
	_, hasY := c.GetPostForm("y")
	if !hasX && !hasY {
		return image.Point{}, false, nil
	}
	if !hasX || !hasY {
		return image.Point{}, false, badRequest("x and y must be given together")
	}
	if p.X, err = formInt(c, "x", 0); err != nil {
		return image.Point{}, false, err
	}
	if p.Y, err = formInt(c, "y", 0); err != nil {
		return image.Point{}, false, err
	}
	return p, true, nil
}

// formRect parses "x0,y0,x1,y1".
func formRect(c *gin.Context, field string, def image.Rectangle) (image.Rectangle, error) {
	v, ok := c.GetPostForm(field)
	if !ok || v == "" {
		return def, nil
	}
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, badRequest("%s: want x0,y0,x1,y1", field)
	}
	var n [4]int
	for i, p := range parts {
		var err error
		if n[i], err = strconv.Atoi(strings.TrimSpace(p)); err != nil {
			return image.Rectangle{}, badRequest("%s: %q is not an integer", field, p)
		}
	}
	return image.Rect(n[0], n[1], n[2], n[3]), nil
}
