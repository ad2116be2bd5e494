package watermark

import (
	"cmp"
	"context"
	"fmt"
	"image"
	"math"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/unwm/watermark-go/edge"
	"github.com/unwm/watermark-go/match"
	"github.com/unwm/watermark-go/surface"
)

// cell is a coarse grid cell that survived candidate ranking.
type cell struct {
	index int
	// owned holds the top-left placements assigned to this cell.
	owned image.Rectangle
	peak  image.Point
	score float64
}

// scaleResult is the outcome of one scale step of a refinement.
type scaleResult struct {
	scale float64
	valid bool

	texLoc      image.Point
	tex         float64
	texCombined float64 // combined score at texLoc

	combLoc image.Point
	comb    float64
}

// Detect searches base for wm and returns up to opts.MaxResults placements
// in descending score order. A watermark larger than base, or one with an
// empty footprint, yields no detections and no error. Cancelling ctx aborts
// the search with an error wrapping ctx.Err().
func (e *Engine) Detect(ctx context.Context, base, wm image.Image, opts DetectOptions) ([]Detection, error) {
	if err := checkImages(base, wm); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	bs, ws := base.Bounds().Size(), wm.Bounds().Size()
	if bs.X < ws.X || bs.Y < ws.Y {
		e.log.DebugContext(ctx, "watermark larger than base", "base", bs, "watermark", ws)
		return nil, nil
	}
	tmpl, ok := e.template(wm, opts.AlphaThreshold)
	if !ok {
		e.log.DebugContext(ctx, "watermark footprint is empty", "alpha_threshold", opts.AlphaThreshold)
		return nil, nil
	}
	return e.detect(ctx, surface.ToNRGBA(base), tmpl, opts)
}

// RefinePosition re-runs detection in a window searchScale times the
// watermark size centred on an approximate placement and returns the best
// match translated back to base coordinates, or nil when nothing in the
// window clears the threshold.
func (e *Engine) RefinePosition(ctx context.Context, base, wm image.Image, approxX, approxY, searchScale float64, opts DetectOptions) (*Detection, error) {
	if err := checkImages(base, wm); err != nil {
		return nil, err
	}
	if !(searchScale > 0) || math.IsInf(searchScale, 0) {
		return nil, fmt.Errorf("%w: search scale %v", ErrInvalidParams, searchScale)
	}
	bs, ws := base.Bounds().Size(), wm.Bounds().Size()
	if bs.X < ws.X || bs.Y < ws.Y {
		return nil, nil
	}

	sw := clampInt(int(math.Round(float64(ws.X)*searchScale)), ws.X, bs.X)
	sh := clampInt(int(math.Round(float64(ws.Y)*searchScale)), ws.Y, bs.Y)
	cx := math.Max(0, math.Min(float64(bs.X), approxX+float64(ws.X)/2))
	cy := math.Max(0, math.Min(float64(bs.Y), approxY+float64(ws.Y)/2))
	left := clampInt(int(math.Floor(cx-float64(sw)/2)), 0, bs.X-sw)
	top := clampInt(int(math.Floor(cy-float64(sh)/2)), 0, bs.Y-sh)

	window := surface.CropNRGBA(surface.ToNRGBA(base), image.Rect(left, top, left+sw, top+sh))
	opts.MaxResults = 1
	dets, err := e.Detect(ctx, window, wm, opts)
	if err != nil {
		return nil, err
	}
	if len(dets) == 0 {
		return nil, nil
	}
	d := dets[0]
	d.OffsetX += float64(left)
	d.OffsetY += float64(top)
	return &d, nil
}

func (e *Engine) detect(ctx context.Context, base *image.NRGBA, tmpl *Template, opts DetectOptions) ([]Detection, error) {
	gray := edge.Gray(base)
	cells, err := e.coarse(ctx, gray, tmpl, opts)
	if err != nil {
		return nil, err
	}

	var found []Detection
	for _, c := range cells {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("detect: %w", err)
		}
		d, ok, err := e.refine(ctx, base, gray, tmpl, c, opts)
		if err != nil {
			return nil, err
		}
		if ok {
			found = append(found, d)
		}
	}
	dets := suppress(found, tmpl.ROI.Size(), opts.MaxResults)
	e.log.DebugContext(ctx, "detection finished", "accepted", len(found), "returned", len(dets))
	return dets, nil
}

// coarse scores every grid cell with one masked grayscale correlation and
// keeps the best opts.Candidates cells. Each cell owns the placements whose
// top-left corner falls inside it; cells owning no valid placement are
// skipped.
func (e *Engine) coarse(ctx context.Context, gray *surface.Float, tmpl *Template, opts DetectOptions) ([]cell, error) {
	roi := tmpl.ROI.Size()
	positions := image.Rect(0, 0, gray.W-roi.X+1, gray.H-roi.Y+1)
	tg := edge.Gray(tmpl.Reference)
	grid := gridCells(gray.Bounds(), opts.GridCols, opts.GridRows)

	results := make([]*cell, len(grid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i, r := range grid {
		owned := r.Intersect(positions)
		if owned.Empty() {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			win := image.Rectangle{Min: owned.Min, Max: owned.Max.Add(roi).Sub(image.Pt(1, 1))}
			wg, _ := edge.EnhanceIfDark(gray.Crop(win), nil, opts.DarkThreshold, opts.CLAHE)
			peaks := match.Peaks(match.Match(wg, tg, tmpl.Mask, opts.Method), 1, 0, 0, math.Inf(-1))
			if len(peaks) == 0 {
				return nil
			}
			p := peaks[0]
			results[i] = &cell{index: i, owned: owned, peak: win.Min.Add(image.Pt(p.X, p.Y)), score: p.Score}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("detect: coarse search: %w", err)
	}

	var cells []cell
	for _, c := range results {
		if c != nil {
			cells = append(cells, *c)
		}
	}
	slices.SortStableFunc(cells, func(a, b cell) int { return cmp.Compare(b.score, a.score) })
	if len(cells) > opts.Candidates {
		cells = cells[:opts.Candidates]
	}
	for _, c := range cells {
		e.log.DebugContext(ctx, "coarse candidate", "cell", c.index, "peak", c.peak, "score", c.score)
	}
	return cells, nil
}

// refine sweeps the template scales over the candidate cell grown by half
// the ROI on every side and applies the acceptance rule.
func (e *Engine) refine(ctx context.Context, base *image.NRGBA, gray *surface.Float, tmpl *Template, c cell, opts DetectOptions) (Detection, bool, error) {
	roi := tmpl.ROI.Size()
	half := image.Pt(roi.X/2, roi.Y/2)
	win := image.Rectangle{
		Min: c.owned.Min.Sub(half),
		Max: c.owned.Max.Add(roi).Sub(image.Pt(1, 1)).Add(half),
	}.Intersect(gray.Bounds())

	wg, enhanced := edge.EnhanceIfDark(gray.Crop(win), nil, opts.DarkThreshold, opts.CLAHE)
	domains := scoringDomains(opts.Weights)
	fp := opts.featureParams()
	searchers := make(map[Domain]*match.Searcher, len(domains))
	for d, f := range features(wg, domains, fp) {
		searchers[d] = match.NewSearcher(f)
	}

	scales := opts.scales()
	results := make([]scaleResult, len(scales))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i, s := range scales {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = evalScale(searchers, tmpl, s, win.Size(), domains, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Detection{}, false, fmt.Errorf("detect: refine cell %d: %w", c.index, err)
	}

	bestTex, bestComb := -1, -1
	for i, r := range results {
		if !r.valid {
			continue
		}
		if bestTex < 0 || r.tex > results[bestTex].tex {
			bestTex = i
		}
		if bestComb < 0 || r.comb > results[bestComb].comb {
			bestComb = i
		}
	}
	if bestTex < 0 {
		e.log.DebugContext(ctx, "refinement window too small", "cell", c.index, "window", win)
		return Detection{}, false, nil
	}
	runnerUp := math.Inf(-1)
	for i, r := range results {
		if r.valid && i != bestComb {
			runnerUp = math.Max(runnerUp, r.comb)
		}
	}
	gap := results[bestComb].comb - runnerUp

	var (
		pick  scaleResult
		loc   image.Point
		score float64
	)
	tex, comb := results[bestTex], results[bestComb]
	switch {
	case tex.tex >= opts.MatchThreshold:
		pick, loc, score = tex, tex.texLoc, tex.texCombined
	case comb.comb >= opts.MatchThreshold && gap >= opts.MinConfidenceGap:
		pick, loc, score = comb, comb.combLoc, comb.comb
	default:
		e.log.DebugContext(ctx, "candidate rejected",
			"cell", c.index, "texture", tex.tex, "combined", comb.comb, "gap", gap, "enhanced", enhanced)
		return Detection{}, false, nil
	}

	at := win.Min.Add(loc)
	d := Detection{
		OffsetX: float64(at.X) - float64(tmpl.ROI.Min.X)*pick.scale,
		OffsetY: float64(at.Y) - float64(tmpl.ROI.Min.Y)*pick.scale,
		Score:   score,
		Scale:   pick.scale,
	}
	if opts.Verify {
		img, _, _ := tmpl.scaled(pick.scale)
		penalty := verificationPenalty(base, img, at)
		adjusted := score * (1 - penalty)
		if penalty > maxVerificationPenalty || adjusted < 0.6*opts.MatchThreshold {
			e.log.DebugContext(ctx, "candidate failed verification", "cell", c.index, "penalty", penalty)
			return Detection{}, false, nil
		}
		d.Score = adjusted
	}
	e.log.DebugContext(ctx, "candidate accepted",
		"cell", c.index, "x", d.OffsetX, "y", d.OffsetY, "scale", d.Scale, "score", d.Score, "enhanced", enhanced)
	return d, true, nil
}

// evalScale correlates every domain at one template scale. The result is
// invalid when the scaled template does not fit the window or loses its
// footprint.
func evalScale(searchers map[Domain]*match.Searcher, tmpl *Template, scale float64, window image.Point, domains []Domain, opts DetectOptions) scaleResult {
	res := scaleResult{scale: scale}
	_, ref, mask := tmpl.scaled(scale)
	size := mask.Bounds().Size()
	if size.X > window.X || size.Y > window.Y || surface.MaskCount(mask) == 0 {
		return res
	}

	tf := features(edge.Gray(ref), domains, opts.featureParams())
	var combined, texture *surface.Float
	var total float64
	for _, d := range domains {
		total += opts.Weights[d]
	}
	for _, d := range domains {
		var s *surface.Float
		switch d {
		case DomainTexture:
			s = searchers[d].Match(tf[d], mask, opts.Method)
			inv := searchers[d].Match(edge.Invert(tf[d], mask), mask, opts.Method)
			for i, v := range inv.Pix {
				s.Pix[i] = math.Max(s.Pix[i], v)
			}
			texture = s
		case DomainEdges:
			s = searchers[d].Match(maskEdges(tf[d], mask), mask, opts.Method)
		default:
			s = searchers[d].Match(tf[d], mask, opts.Method)
		}
		if combined == nil {
			combined = surface.NewFloat(s.W, s.H)
		}
		if w := opts.Weights[d]; w > 0 {
			floats.AddScaled(combined.Pix, w/total, s.Pix)
		}
	}
	if texture == nil || texture.Empty() {
		return res
	}

	res.valid = true
	res.texLoc, res.tex, _ = texture.MaxLoc()
	res.texCombined = combined.At(res.texLoc.X, res.texLoc.Y)
	res.combLoc, res.comb, _ = combined.MaxLoc()
	return res
}

// scoringDomains is the active weight set plus texture, which the
// acceptance rule always needs.
func scoringDomains(w Weights) []Domain {
	active := w.Active()
	if !slices.Contains(active, DomainTexture) {
		active = append([]Domain{DomainTexture}, active...)
	}
	return active
}

// suppress sorts detections by descending score (stable) and drops any that
// lies within half the scaled ROI of an already kept one.
func suppress(dets []Detection, roi image.Point, maxResults int) []Detection {
	slices.SortStableFunc(dets, func(a, b Detection) int { return cmp.Compare(b.Score, a.Score) })
	var kept []Detection
	for _, d := range dets {
		if maxResults > 0 && len(kept) == maxResults {
			break
		}
		dup := false
		for _, k := range kept {
			rx := float64(roi.X) * k.Scale / 2
			ry := float64(roi.Y) * k.Scale / 2
			if math.Abs(d.OffsetX-k.OffsetX) < rx && math.Abs(d.OffsetY-k.OffsetY) < ry {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, d)
		}
	}
	return kept
}

// gridCells partitions r into cols x rows cells; the last column and row
// absorb the remainder.
func gridCells(r image.Rectangle, cols, rows int) []image.Rectangle {
	cw, ch := r.Dx()/cols, r.Dy()/rows
	cells := make([]image.Rectangle, 0, cols*rows)
	for j := 0; j < rows; j++ {
		y0, y1 := r.Min.Y+j*ch, r.Min.Y+(j+1)*ch
		if j == rows-1 {
			y1 = r.Max.Y
		}
		for i := 0; i < cols; i++ {
			x0, x1 := r.Min.X+i*cw, r.Min.X+(i+1)*cw
			if i == cols-1 {
				x1 = r.Max.X
			}
			cells = append(cells, image.Rect(x0, y0, x1, y1))
		}
	}
	return cells
}

func (o DetectOptions) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func checkImages(imgs ...image.Image) error {
	for _, img := range imgs {
		if img == nil {
			return ErrNilImage
		}
		if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
			return fmt.Errorf("%w: %dx%d", ErrEmptyImage, b.Dx(), b.Dy())
		}
	}
	return nil
}
