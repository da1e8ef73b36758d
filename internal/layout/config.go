package layout

import (
	"errors"
	"fmt"
)

// ErrUnknownLayout is returned by SelectByName for names outside the cycle.
var ErrUnknownLayout = errors.New("unknown layout")

// Config parameterizes one layout run. Name selects the engine; the other
// fields are read by the engines that understand them.
type Config struct {
	Name    string  `json:"name"`
	Animate bool    `json:"animate"`
	Fit     bool    `json:"fit"`
	Padding float64 `json:"padding"`

	// Viewport the positions are fitted into.
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	// cose
	Randomize        bool    `json:"randomize,omitempty"`
	NodeRepulsion    float64 `json:"node_repulsion,omitempty"`
	IdealEdgeLength  float64 `json:"ideal_edge_length,omitempty"`
	EdgeElasticity   float64 `json:"edge_elasticity,omitempty"`
	NodeOverlap      float64 `json:"node_overlap,omitempty"`
	ComponentSpacing float64 `json:"component_spacing,omitempty"`
	Gravity          float64 `json:"gravity,omitempty"`
	NumIter          int     `json:"num_iter,omitempty"`
	InitialTemp      float64 `json:"initial_temp,omitempty"`
	CoolingFactor    float64 `json:"cooling_factor,omitempty"`
	MinTemp          float64 `json:"min_temp,omitempty"`
	Refresh          int     `json:"refresh,omitempty"`

	// breadthfirst
	Directed      bool    `json:"directed,omitempty"`
	Circle        bool    `json:"circle,omitempty"`
	SpacingFactor float64 `json:"spacing_factor,omitempty"`

	// grid
	Rows int `json:"rows,omitempty"`
	Cols int `json:"cols,omitempty"`
}

// Viewport defaults for fitted layouts.
const (
	DefaultWidth  = 1200
	DefaultHeight = 720
)

// DefaultConfigs returns the layouts offered to the user, in cycling order.
// A fresh slice is returned on every call.
func DefaultConfigs() []Config {
	base := Config{Animate: true, Fit: true, Padding: 30, Width: DefaultWidth, Height: DefaultHeight}

	cose := base
	cose.Name = "cose"
	cose.NodeRepulsion = 4000
	cose.IdealEdgeLength = 100
	cose.EdgeElasticity = 5000
	cose.NodeOverlap = 10
	cose.ComponentSpacing = 100
	cose.Gravity = 0.5
	cose.NumIter = 1000
	cose.InitialTemp = 1000
	cose.CoolingFactor = 0.99
	cose.MinTemp = 1.0
	cose.Refresh = 10

	bfs := base
	bfs.Name = "breadthfirst"
	bfs.Directed = true
	bfs.SpacingFactor = 1.5

	concentric := base
	concentric.Name = "concentric"

	grid := base
	grid.Name = "grid"
	grid.Rows = 4
	grid.Cols = 4

	return []Config{cose, bfs, concentric, grid}
}

// ---------------------------------------------------------------------------
// Selector
// ---------------------------------------------------------------------------

// Selector cycles through a fixed list of layout configs. It is not safe for
// concurrent use; the owning session serializes access.
type Selector struct {
	configs []Config
	idx     int
}

// NewSelector starts at the first config. An empty list falls back to
// DefaultConfigs.
func NewSelector(configs []Config) *Selector {
	if len(configs) == 0 {
		configs = DefaultConfigs()
	}
	return &Selector{configs: configs}
}

// Advance moves to the next config, wrapping at the end, and returns it.
func (s *Selector) Advance() Config {
	s.idx = (s.idx + 1) % len(s.configs)
	return s.configs[s.idx]
}

// Current returns the active config.
func (s *Selector) Current() Config {
	return s.configs[s.idx]
}

// Index returns the position of the active config.
func (s *Selector) Index() int {
	return s.idx
}

// Len returns the number of configs.
func (s *Selector) Len() int {
	return len(s.configs)
}

// Names lists config names in cycling order.
func (s *Selector) Names() []string {
	names := make([]string, len(s.configs))
	for i, c := range s.configs {
		names[i] = c.Name
	}
	return names
}

// SelectByName jumps to the config with the given name.
func (s *Selector) SelectByName(name string) (Config, error) {
	for i, c := range s.configs {
		if c.Name == name {
			s.idx = i
			return c, nil
		}
	}
	return Config{}, fmt.Errorf("layout: %w %q", ErrUnknownLayout, name)
}
