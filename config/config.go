// Package config loads and validates the YAML configuration shared by the
// unwm CLI and HTTP server.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	watermark "github.com/unwm/watermark-go"
	"github.com/unwm/watermark-go/edge"
	"github.com/unwm/watermark-go/match"
)

// Config holds runtime configuration for detection, removal, logging and the
// HTTP server. Fields may be loaded from a YAML file and overridden by
// command-line flags.
type Config struct {
	Detect  DetectConfig `yaml:"detect" json:"detect"`
	Remove  RemoveConfig `yaml:"remove" json:"remove"`
	Log     LogConfig    `yaml:"log" json:"log"`
	Server  ServerConfig `yaml:"server" json:"server"`
	Presets []Preset     `yaml:"presets,omitempty" json:"presets,omitempty"`
}

// DetectConfig mirrors watermark.DetectOptions.
type DetectConfig struct {
	MaxResults       int                `yaml:"max_results" json:"max_results"`
	MatchThreshold   float64            `yaml:"match_threshold" json:"match_threshold"`
	AlphaThreshold   float64            `yaml:"alpha_threshold" json:"alpha_threshold"`
	GridCols         int                `yaml:"grid_cols" json:"grid_cols"`
	GridRows         int                `yaml:"grid_rows" json:"grid_rows"`
	Candidates       int                `yaml:"candidates" json:"candidates"`
	ScaleMin         float64            `yaml:"scale_min" json:"scale_min"`
	ScaleMax         float64            `yaml:"scale_max" json:"scale_max"`
	ScaleStep        float64            `yaml:"scale_step" json:"scale_step"`
	DarkThreshold    float64            `yaml:"dark_threshold" json:"dark_threshold"`
	CLAHEClip        float64            `yaml:"clahe_clip" json:"clahe_clip"`
	CLAHETiles       int                `yaml:"clahe_tiles" json:"clahe_tiles"`
	HighPassSigma    float64            `yaml:"highpass_sigma" json:"highpass_sigma"`
	CannyLow         float64            `yaml:"canny_low" json:"canny_low"`
	CannyHigh        float64            `yaml:"canny_high" json:"canny_high"`
	MinConfidenceGap float64            `yaml:"min_confidence_gap" json:"min_confidence_gap"`
	Method           string             `yaml:"method" json:"method"`
	Weights          map[string]float64 `yaml:"weights" json:"weights"`
	Verify           bool               `yaml:"verify" json:"verify"`
	Workers          int                `yaml:"workers" json:"workers"`
}

// RemoveConfig holds the default unblend parameters.
type RemoveConfig struct {
	AlphaAdjust       float64 `yaml:"alpha_adjust" json:"alpha_adjust"`
	TransparencyClamp int     `yaml:"transparency_clamp" json:"transparency_clamp"`
	OpaqueClamp       int     `yaml:"opaque_clamp" json:"opaque_clamp"`
}

// LogConfig selects the log level, format and an optional rotating file.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	JSON  bool   `yaml:"json" json:"json"`
	// File enables rotation through lumberjack when set; logs go to stderr
	// otherwise.
	File       string `yaml:"file,omitempty" json:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string        `yaml:"addr" json:"addr"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" json:"max_upload_bytes"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	d := watermark.DefaultDetectOptions()
	p := watermark.DefaultParams()
	weights := make(map[string]float64, len(d.Weights))
	for k, v := range d.Weights {
		weights[string(k)] = v
	}
	return &Config{
		Detect: DetectConfig{
			MaxResults:       d.MaxResults,
			MatchThreshold:   d.MatchThreshold,
			AlphaThreshold:   d.AlphaThreshold,
			GridCols:         d.GridCols,
			GridRows:         d.GridRows,
			Candidates:       d.Candidates,
			ScaleMin:         d.ScaleMin,
			ScaleMax:         d.ScaleMax,
			ScaleStep:        d.ScaleStep,
			DarkThreshold:    d.DarkThreshold,
			CLAHEClip:        d.CLAHE.ClipLimit,
			CLAHETiles:       d.CLAHE.TilesX,
			HighPassSigma:    d.HighPassSigma,
			CannyLow:         d.CannyLow,
			CannyHigh:        d.CannyHigh,
			MinConfidenceGap: d.MinConfidenceGap,
			Method:           d.Method.String(),
			Weights:          weights,
		},
		Remove: RemoveConfig{
			AlphaAdjust:       p.AlphaAdjust,
			TransparencyClamp: p.TransparencyClamp,
			OpaqueClamp:       p.OpaqueClamp,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 32 << 20,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   2 * time.Minute,
		},
	}
}

// Validate clamps numeric values to safe ranges. It returns an error for
// values that cannot be clamped: an unknown match method or log level,
// unusable domain weights, or a malformed preset.
func (c *Config) Validate() error {
	def := DefaultConfig()
	d := &c.Detect
	if d.MatchThreshold <= 0 || d.MatchThreshold > 1 {
		d.MatchThreshold = def.Detect.MatchThreshold
	}
	d.AlphaThreshold = clampFloat(d.AlphaThreshold, 0, 255)
	if d.GridCols < 1 {
		d.GridCols = def.Detect.GridCols
	}
	if d.GridRows < 1 {
		d.GridRows = def.Detect.GridRows
	}
	if d.Candidates < 1 {
		d.Candidates = def.Detect.Candidates
	}
	if d.ScaleMin <= 0 {
		d.ScaleMin = def.Detect.ScaleMin
	}
	if d.ScaleMax < d.ScaleMin {
		d.ScaleMax = d.ScaleMin
	}
	if d.ScaleStep <= 0 {
		d.ScaleStep = def.Detect.ScaleStep
	}
	if d.CLAHEClip <= 0 {
		d.CLAHEClip = def.Detect.CLAHEClip
	}
	if d.CLAHETiles < 1 {
		d.CLAHETiles = def.Detect.CLAHETiles
	}
	if d.HighPassSigma <= 0 {
		d.HighPassSigma = def.Detect.HighPassSigma
	}
	if d.CannyHigh < d.CannyLow {
		d.CannyLow, d.CannyHigh = d.CannyHigh, d.CannyLow
	}
	if d.MinConfidenceGap < 0 {
		d.MinConfidenceGap = 0
	}
	if d.Workers < 0 {
		d.Workers = 0
	}
	if len(d.Weights) == 0 {
		d.Weights = def.Detect.Weights
	}
	if _, err := match.ParseMethod(d.Method); err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	if err := d.weights().Validate(); err != nil {
		return fmt.Errorf("detect: %w", err)
	}

	r := &c.Remove
	if r.AlphaAdjust <= 0 {
		r.AlphaAdjust = def.Remove.AlphaAdjust
	}
	r.TransparencyClamp = clampInt(r.TransparencyClamp, 0, 255)
	r.OpaqueClamp = clampInt(r.OpaqueClamp, 0, 255)

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	s := &c.Server
	if s.Addr == "" {
		s.Addr = def.Server.Addr
	}
	if s.MaxUploadBytes <= 0 {
		s.MaxUploadBytes = def.Server.MaxUploadBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = def.Server.ReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = def.Server.WriteTimeout
	}

	seen := make(map[string]bool, len(c.Presets))
	for i := range c.Presets {
		p := &c.Presets[i]
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Name] {
			return fmt.Errorf("preset %q: defined twice", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Load attempts to read configuration from the given YAML file path. If the
// file does not exist it returns DefaultConfig(). On a parse or validation
// error it returns the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	// a weights table in the file replaces the default one entirely
	cfg.Detect.Weights = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to the given path in YAML format.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DetectOptions converts the detect section. Call Validate first.
func (c *Config) DetectOptions() watermark.DetectOptions {
	d := c.Detect
	opts := watermark.DefaultDetectOptions()
	opts.MaxResults = d.MaxResults
	opts.MatchThreshold = d.MatchThreshold
	opts.AlphaThreshold = d.AlphaThreshold
	opts.GridCols, opts.GridRows = d.GridCols, d.GridRows
	opts.Candidates = d.Candidates
	opts.ScaleMin, opts.ScaleMax, opts.ScaleStep = d.ScaleMin, d.ScaleMax, d.ScaleStep
	opts.DarkThreshold = d.DarkThreshold
	opts.CLAHE = edge.CLAHEOptions{TilesX: d.CLAHETiles, TilesY: d.CLAHETiles, ClipLimit: d.CLAHEClip}
	opts.HighPassSigma = d.HighPassSigma
	opts.CannyLow, opts.CannyHigh = d.CannyLow, d.CannyHigh
	opts.MinConfidenceGap = d.MinConfidenceGap
	if m, err := match.ParseMethod(d.Method); err == nil {
		opts.Method = m
	}
	opts.Weights = d.weights()
	opts.Verify = d.Verify
	opts.Workers = d.Workers
	return opts
}

// RemoveParams converts the remove section.
func (c *Config) RemoveParams() watermark.Params {
	return watermark.Params{
		AlphaAdjust:       c.Remove.AlphaAdjust,
		TransparencyClamp: c.Remove.TransparencyClamp,
		OpaqueClamp:       c.Remove.OpaqueClamp,
	}
}

// SlogLevel parses Level ("debug", "info", "warn", "error", optionally with
// an offset such as "info+2").
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

func (d DetectConfig) weights() watermark.Weights {
	w := make(watermark.Weights, len(d.Weights))
	for k, v := range d.Weights {
		w[watermark.Domain(k)] = v
	}
	return w
}

func clampFloat(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
