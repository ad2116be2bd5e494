package watermark

import (
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"reflect"
	"runtime"
	"sync"
)

// Engine runs the detection and removal operations. It caches prepared
// templates per watermark image so repeated searches for the same watermark
// skip the footprint extraction. An Engine is safe for concurrent use.
type Engine struct {
	log     *slog.Logger
	workers int

	mu        sync.Mutex
	templates map[templateKey]*templateEntry
	order     []templateKey
}

// maxTemplates bounds the template cache; the oldest entry is evicted first.
const maxTemplates = 16

type templateKey struct {
	img       image.Image
	threshold float64
}

type templateEntry struct {
	once sync.Once
	tmpl *Template
	ok   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger routes the engine's debug logging to l.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithWorkers bounds the goroutines used by removal and alpha estimation.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEngine constructs an Engine. Without WithLogger it logs nowhere.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		workers:   runtime.GOMAXPROCS(0),
		templates: make(map[templateKey]*templateEntry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// template returns the prepared footprint of wm, computing it once per
// watermark image and threshold. Images whose dynamic type cannot be a map
// key are prepared on every call.
func (e *Engine) template(wm image.Image, threshold float64) (*Template, bool) {
	if !reflect.TypeOf(wm).Comparable() {
		return PrepareTemplate(wm, threshold)
	}
	key := templateKey{img: wm, threshold: threshold}
	e.mu.Lock()
	entry, ok := e.templates[key]
	if !ok {
		entry = new(templateEntry)
		e.templates[key] = entry
		e.order = append(e.order, key)
		if len(e.order) > maxTemplates {
			delete(e.templates, e.order[0])
			e.order = e.order[1:]
		}
	}
	e.mu.Unlock()

	entry.once.Do(func() {
		entry.tmpl, entry.ok = PrepareTemplate(wm, threshold)
	})
	return entry.tmpl, entry.ok
}

// Forget drops the cached template for wm. Callers that mutate a watermark
// image after searching with it must call Forget before searching again.
func (e *Engine) Forget(wm image.Image) {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.order[:0]
	for _, k := range e.order {
		if k.img == wm {
			delete(e.templates, k)
			continue
		}
		kept = append(kept, k)
	}
	e.order = kept
}

var defaultEngine struct {
	once sync.Once
	eng  *Engine
}

// Default returns the shared engine used by the package-level functions.
func Default() *Engine {
	defaultEngine.once.Do(func() {
		defaultEngine.eng = NewEngine()
	})
	return defaultEngine.eng
}

// Detect runs Engine.Detect on the default engine.
func Detect(ctx context.Context, base, wm image.Image, opts DetectOptions) ([]Detection, error) {
	return Default().Detect(ctx, base, wm, opts)
}

// RefinePosition runs Engine.RefinePosition on the default engine.
func RefinePosition(ctx context.Context, base, wm image.Image, approxX, approxY, searchScale float64, opts DetectOptions) (*Detection, error) {
	return Default().RefinePosition(ctx, base, wm, approxX, approxY, searchScale, opts)
}

// RemoveWatermark runs Engine.RemoveWatermark on the default engine.
func RemoveWatermark(base, wm image.Image, offX, offY int, p Params) (*image.NRGBA, error) {
	return Default().RemoveWatermark(base, wm, offX, offY, p)
}

// GuessAlpha runs Engine.GuessAlpha on the default engine.
func GuessAlpha(ctx context.Context, base, wm image.Image, offX, offY, transparencyClamp, opaqueClamp int) (float64, bool, error) {
	return Default().GuessAlpha(ctx, base, wm, offX, offY, transparencyClamp, opaqueClamp)
}

// Extract runs Engine.Extract on the default engine.
func Extract(a, b image.Image, offX, offY int, window image.Rectangle, bgA, bgB color.Color) (*image.NRGBA, bool, error) {
	return Default().Extract(a, b, offX, offY, window, bgA, bgB)
}
