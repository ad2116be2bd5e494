// Package api exposes the watermark operations over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	watermark "github.com/unwm/watermark-go"
	"github.com/unwm/watermark-go/config"
	"github.com/unwm/watermark-go/internal/logging"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	eng *watermark.Engine
	cfg *config.Config
	log *slog.Logger
}

// NewServer wires handlers to eng and cfg. cfg must be validated.
func NewServer(eng *watermark.Engine, cfg *config.Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{eng: eng, cfg: cfg, log: log}
}

// Router builds the gin engine serving /health and /api/v1.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.requestLog(), s.limitBody())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "unwm"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/detect", s.handleDetect)
		v1.POST("/refine", s.handleRefine)
		v1.POST("/remove", s.handleRemove)
		v1.POST("/guess-alpha", s.handleGuessAlpha)
		v1.POST("/extract", s.handleExtract)
		v1.GET("/presets", s.handlePresets)
	}
	return r
}

// HTTPServer wraps the router with the configured address and timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// requestID reuses a well-formed incoming ID or mints one, echoes it and
// attaches it to the request context for logging.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		ctx := logging.AppendCtx(c.Request.Context(), slog.String("request_id", id))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.InfoContext(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

func (s *Server) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Server.MaxUploadBytes)
		}
		c.Next()
	}
}
