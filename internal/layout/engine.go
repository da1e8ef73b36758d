// Package layout computes node positions for the explorer canvas.
//
// Four engines are available: a force-directed "cose", a level-based
// "breadthfirst", a degree-ringed "concentric" and a plain "grid". Engines
// are pure functions of the graph and config; they never mutate the graph.
package layout

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/dossier/kgexplorer/internal/graph"
)

// Position is a 2D coordinate in canvas space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Positions maps node ids to coordinates.
type Positions map[string]Position

// Clone returns an independent copy.
func (p Positions) Clone() Positions {
	out := make(Positions, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// FrameFunc receives intermediate positions while an animated layout runs.
// Implementations must not retain p after returning.
type FrameFunc func(p Positions)

// Engine computes positions for every node of g.
type Engine interface {
	Name() string
	Compute(ctx context.Context, g *graph.Index, cfg Config, onFrame FrameFunc) (Positions, error)
}

var engines = map[string]Engine{
	"cose":         coseEngine{},
	"breadthfirst": breadthfirstEngine{},
	"concentric":   concentricEngine{},
	"grid":         gridEngine{},
}

// Lookup returns the engine registered under name.
func Lookup(name string) (Engine, error) {
	e, ok := engines[name]
	if !ok {
		return nil, fmt.Errorf("layout: no engine named %q", name)
	}
	return e, nil
}

// EngineNames lists the registered engines, sorted.
func EngineNames() []string {
	names := make([]string, 0, len(engines))
	for n := range engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run resolves cfg.Name and computes a layout, fitting the result into the
// viewport when cfg.Fit is set.
func Run(ctx context.Context, g *graph.Index, cfg Config, onFrame FrameFunc) (Positions, error) {
	eng, err := Lookup(cfg.Name)
	if err != nil {
		return nil, err
	}
	var frame FrameFunc
	if onFrame != nil {
		frame = func(p Positions) {
			if cfg.Fit {
				p = FitToViewport(p, cfg)
			}
			onFrame(p)
		}
	}
	pos, err := eng.Compute(ctx, g, cfg, frame)
	if err != nil {
		return nil, err
	}
	if cfg.Fit {
		pos = FitToViewport(pos, cfg)
	}
	return pos, nil
}

// ---------------------------------------------------------------------------
// Fitting
// ---------------------------------------------------------------------------

// Zoom bounds applied when fitting.
const (
	MinZoom = 0.5
	MaxZoom = 2.0
)

// FitToViewport scales and centres positions inside the config's viewport
// minus padding. Scale is clamped to [MinZoom, MaxZoom].
func FitToViewport(p Positions, cfg Config) Positions {
	if len(p) == 0 {
		return p
	}
	w, h := cfg.Width, cfg.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, v := range p {
		minX, maxX = math.Min(minX, v.X), math.Max(maxX, v.X)
		minY, maxY = math.Min(minY, v.Y), math.Max(maxY, v.Y)
	}
	bw, bh := maxX-minX, maxY-minY
	availW, availH := math.Max(w-2*cfg.Padding, 1), math.Max(h-2*cfg.Padding, 1)

	scale := MaxZoom
	if bw > 0 {
		scale = math.Min(scale, availW/bw)
	}
	if bh > 0 {
		scale = math.Min(scale, availH/bh)
	}
	scale = math.Max(scale, MinZoom)

	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	out := make(Positions, len(p))
	for id, v := range p {
		out[id] = Position{
			X: w/2 + (v.X-cx)*scale,
			Y: h/2 + (v.Y-cy)*scale,
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Placement helpers
// ---------------------------------------------------------------------------

// placeRow lays ids out on a horizontal line centred on x=0.
func placeRow(pos Positions, ids []string, y, spacing float64) {
	if len(ids) == 0 {
		return
	}
	startX := -float64(len(ids)-1) / 2.0 * spacing
	for i, id := range ids {
		if _, exists := pos[id]; exists {
			continue // don't overwrite earlier placements
		}
		pos[id] = Position{X: startX + float64(i)*spacing, Y: y}
	}
}

// placeRing lays ids out evenly on a circle centred on the origin, starting
// at angle start.
func placeRing(pos Positions, ids []string, radius, start float64) {
	if len(ids) == 0 {
		return
	}
	for i, id := range ids {
		if _, exists := pos[id]; exists {
			continue
		}
		angle := start + 2.0*math.Pi*float64(i)/float64(len(ids))
		pos[id] = Position{
			X: radius * math.Cos(angle),
			Y: radius * math.Sin(angle),
		}
	}
}
