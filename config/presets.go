package config

import (
	_ "embed"
	"fmt"
	"image"
	"math"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	watermark "github.com/unwm/watermark-go"
)

//go:embed presets.yaml
var embeddedPresets []byte

// Anchor names the corner, edge midpoint or centre of the base image a
// preset offset is relative to.
type Anchor string

const (
	TopLeft      Anchor = "top-left"
	TopCenter    Anchor = "top-center"
	TopRight     Anchor = "top-right"
	CenterLeft   Anchor = "center-left"
	Center       Anchor = "center"
	CenterRight  Anchor = "center-right"
	BottomLeft   Anchor = "bottom-left"
	BottomCenter Anchor = "bottom-center"
	BottomRight  Anchor = "bottom-right"
)

var anchors = []Anchor{TopLeft, TopCenter, TopRight, CenterLeft, Center, CenterRight, BottomLeft, BottomCenter, BottomRight}

// Preset is a saved watermark placement with optional removal parameters.
// Unset parameters fall back to the configured defaults.
type Preset struct {
	Name    string  `yaml:"name" json:"name"`
	Anchor  Anchor  `yaml:"anchor" json:"anchor"`
	OffsetX float64 `yaml:"offset_x" json:"offset_x"`
	OffsetY float64 `yaml:"offset_y" json:"offset_y"`

	AlphaAdjust       float64 `yaml:"alpha_adjust,omitempty" json:"alpha_adjust,omitempty"`
	TransparencyClamp *int    `yaml:"transparency_clamp,omitempty" json:"transparency_clamp,omitempty"`
	OpaqueClamp       *int    `yaml:"opaque_clamp,omitempty" json:"opaque_clamp,omitempty"`
}

func (p *Preset) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("preset: empty name")
	}
	if p.Anchor == "" {
		p.Anchor = TopLeft
	}
	if !slices.Contains(anchors, p.Anchor) {
		return fmt.Errorf("preset %q: unknown anchor %q", p.Name, p.Anchor)
	}
	if p.AlphaAdjust < 0 {
		return fmt.Errorf("preset %q: negative alpha adjust", p.Name)
	}
	for _, c := range []*int{p.TransparencyClamp, p.OpaqueClamp} {
		if c != nil && (*c < 0 || *c > 255) {
			return fmt.Errorf("preset %q: clamp %d outside [0, 255]", p.Name, *c)
		}
	}
	return nil
}

// Resolve converts the anchor-relative offset into the absolute top-left
// position of a wmW x wmH watermark inside a baseW x baseH image.
func (p Preset) Resolve(baseW, baseH, wmW, wmH int) image.Point {
	var x, y float64
	a := string(p.Anchor)
	switch {
	case strings.HasSuffix(a, "-left"):
	case a == string(Center) || strings.HasSuffix(a, "-center"):
		x = math.Round(float64(baseW-wmW) * 0.5)
	case strings.HasSuffix(a, "-right"):
		x = float64(baseW - wmW)
	}
	switch {
	case strings.HasPrefix(a, "top"):
	case strings.HasPrefix(a, "center"):
		y = math.Round(float64(baseH-wmH) * 0.5)
	case strings.HasPrefix(a, "bottom"):
		y = float64(baseH - wmH)
	}
	return image.Pt(int(math.Round(x+p.OffsetX)), int(math.Round(y+p.OffsetY)))
}

// Params overlays the preset's removal parameters on def.
func (p Preset) Params(def watermark.Params) watermark.Params {
	if p.AlphaAdjust > 0 {
		def.AlphaAdjust = p.AlphaAdjust
	}
	if p.TransparencyClamp != nil {
		def.TransparencyClamp = *p.TransparencyClamp
	}
	if p.OpaqueClamp != nil {
		def.OpaqueClamp = *p.OpaqueClamp
	}
	return def
}

// DefaultPresets returns the presets shipped with the binary.
func DefaultPresets() ([]Preset, error) {
	var doc struct {
		Presets []Preset `yaml:"presets"`
	}
	if err := yaml.Unmarshal(embeddedPresets, &doc); err != nil {
		return nil, fmt.Errorf("embedded presets: %w", err)
	}
	for i := range doc.Presets {
		if err := doc.Presets[i].Validate(); err != nil {
			return nil, fmt.Errorf("embedded presets: %w", err)
		}
	}
	return doc.Presets, nil
}

// AllPresets merges the embedded presets with the configured ones, sorted by
// name. A configured preset replaces an embedded one of the same name.
func (c *Config) AllPresets() ([]Preset, error) {
	defaults, err := DefaultPresets()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Preset, len(defaults)+len(c.Presets))
	for _, p := range defaults {
		byName[p.Name] = p
	}
	for _, p := range c.Presets {
		byName[p.Name] = p
	}
	out := make([]Preset, 0, len(byName))
	for _, p := range byName {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Preset) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Preset looks up a preset by name among AllPresets.
func (c *Config) Preset(name string) (Preset, error) {
	all, err := c.AllPresets()
	if err != nil {
		return Preset{}, err
	}
	for _, p := range all {
		if p.Name == name {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("preset %q not found", name)
}
