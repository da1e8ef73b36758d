package explorer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dossier/kgexplorer/internal/graph"
	"github.com/dossier/kgexplorer/internal/layout"
)

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// FrameKind names what a canvas frame carries.
type FrameKind string

const (
	FrameElements    FrameKind = "elements"
	FrameLayout      FrameKind = "layout_frame"
	FrameLayoutDone  FrameKind = "layout_done"
	FrameLayoutError FrameKind = "layout_error"
	FrameSelect      FrameKind = "select"
)

// Frame is one update pushed to whoever renders the canvas.
type Frame struct {
	Kind       FrameKind        `json:"kind"`
	Generation uint64           `json:"generation"`
	Layout     string           `json:"layout,omitempty"`
	Nodes      []*graph.Node    `json:"nodes,omitempty"`
	Edges      []*graph.Edge    `json:"edges,omitempty"`
	Positions  layout.Positions `json:"positions,omitempty"`
	Selected   string           `json:"selected,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// FrameSink receives canvas frames. Publish is called with the canvas lock
// held and must not block.
type FrameSink interface {
	Publish(Frame)
}

// FrameSinkFunc adapts a function to FrameSink.
type FrameSinkFunc func(Frame)

func (f FrameSinkFunc) Publish(fr Frame) { f(fr) }

type discardSink struct{}

func (discardSink) Publish(Frame) {}

// ---------------------------------------------------------------------------
// Canvas
// ---------------------------------------------------------------------------

// CanvasState is a point-in-time copy of what the canvas shows.
type CanvasState struct {
	Attached   bool             `json:"attached"`
	Layout     string           `json:"layout,omitempty"`
	Running    bool             `json:"running"`
	Generation uint64           `json:"generation"`
	Nodes      int              `json:"nodes"`
	Edges      int              `json:"edges"`
	Selected   string           `json:"selected,omitempty"`
	Positions  layout.Positions `json:"positions,omitempty"`
}

// Canvas owns the rendered element set and the layout runs over it. All
// mutations go through SetElements, RunLayout and Select; while detached
// they do nothing.
//
// Layouts run asynchronously. Starting a new run, replacing the elements or
// detaching cancels the previous run, and a generation counter discards any
// frame it still produces.
type Canvas struct {
	mu         sync.Mutex
	sink       FrameSink
	attached   bool
	nodes      []*graph.Node
	edges      []*graph.Edge
	index      *graph.Index
	positions  layout.Positions
	selected   string
	layoutName string
	gen        uint64
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewCanvas returns a detached canvas publishing to sink.
func NewCanvas(sink FrameSink) *Canvas {
	if sink == nil {
		sink = discardSink{}
	}
	return &Canvas{sink: sink, index: graph.NewIndex(nil, nil)}
}

// Attach makes the canvas ready to render.
func (c *Canvas) Attach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = true
}

// Detach tears the rendered state down and cancels any running layout.
func (c *Canvas) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.gen++
	c.attached = false
	c.nodes, c.edges = nil, nil
	c.index = graph.NewIndex(nil, nil)
	c.positions = nil
	c.selected = ""
}

// Ready reports whether the canvas is attached.
func (c *Canvas) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

// SetElements removes everything from the canvas and inserts nodes and
// edges.
func (c *Canvas) SetElements(nodes []*graph.Node, edges []*graph.Edge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return
	}
	c.stopLocked()
	c.gen++
	c.nodes = nodes
	c.edges = edges
	c.index = graph.NewIndex(nodes, edges)
	c.positions = nil
	c.selected = ""
	c.sink.Publish(Frame{
		Kind:       FrameElements,
		Generation: c.gen,
		Nodes:      nodes,
		Edges:      edges,
	})
}

// RunLayout starts cfg over the current elements and returns immediately.
func (c *Canvas) RunLayout(cfg layout.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return
	}
	c.stopLocked()
	c.gen++
	gen := c.gen
	idx := c.index
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true
	c.layoutName = cfg.Name

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		onFrame := func(p layout.Positions) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.gen != gen {
				return
			}
			c.sink.Publish(Frame{Kind: FrameLayout, Generation: gen, Layout: cfg.Name, Positions: p})
		}
		pos, err := layout.Run(ctx, idx, cfg, onFrame)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			return
		}
		c.running = false
		c.cancel = nil
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			slog.Warn("layout run failed", "layout", cfg.Name, "error", err)
			c.sink.Publish(Frame{Kind: FrameLayoutError, Generation: gen, Layout: cfg.Name, Error: err.Error()})
			return
		}
		c.positions = pos
		c.sink.Publish(Frame{Kind: FrameLayoutDone, Generation: gen, Layout: cfg.Name, Positions: pos})
	}()
}

// Select clears the selection and selects id if it is on the canvas.
func (c *Canvas) Select(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return
	}
	c.selected = ""
	if _, ok := c.index.GetNode(id); ok {
		c.selected = id
	}
	c.sink.Publish(Frame{Kind: FrameSelect, Generation: c.gen, Selected: c.selected})
}

// Has reports whether a node or edge with id is on the canvas.
func (c *Canvas) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index.GetNode(id); ok {
		return true
	}
	for _, e := range c.index.Edges() {
		if e.ID == id {
			return true
		}
	}
	return false
}

// State copies the current canvas state.
func (c *Canvas) State() CanvasState {
	c.mu.Lock()
	defer c.mu.Unlock()
	var pos layout.Positions
	if c.positions != nil {
		pos = c.positions.Clone()
	}
	return CanvasState{
		Attached:   c.attached,
		Layout:     c.layoutName,
		Running:    c.running,
		Generation: c.gen,
		Nodes:      len(c.nodes),
		Edges:      len(c.edges),
		Selected:   c.selected,
		Positions:  pos,
	}
}

// Wait blocks until no layout goroutine is running.
func (c *Canvas) Wait() {
	c.wg.Wait()
}

// Close detaches the canvas and waits for layout goroutines to exit.
func (c *Canvas) Close() {
	c.Detach()
	c.wg.Wait()
}

// stopLocked cancels the running layout. Caller MUST hold c.mu.
func (c *Canvas) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.running = false
}
