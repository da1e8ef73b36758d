package explorer

import (
	"fmt"
	"sync"
	"time"

	"github.com/dossier/kgexplorer/internal/graph"
	"github.com/dossier/kgexplorer/internal/layout"
	"github.com/dossier/kgexplorer/internal/source"
)

// Session is one user's exploration of one dataset. Every operation takes
// the session lock, so mutations apply one at a time in arrival order.
//
// Filter changes and layout changes both re-sync the canvas: the filtered
// element set replaces whatever the canvas showed, then the active layout
// starts over it.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu          sync.Mutex
	query       source.Query
	dataset     *graph.Dataset
	buckets     *graph.Buckets
	filter      *Filter
	selector    *layout.Selector
	canvas      *Canvas
	inspector   Inspector
	highlighted string
	viewers     int
	lastActive  time.Time
	memo        filteredView
}

// filteredView caches the filtered elements for one (dataset, filter
// version) pair.
type filteredView struct {
	valid       bool
	fingerprint uint64
	version     uint64
	nodes       []*graph.Node
	edges       []*graph.Edge
	index       *graph.Index
}

func newSession(id string, q source.Query, ds *graph.Dataset, sink FrameSink, layouts []layout.Config) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:         id,
		CreatedAt:  now,
		query:      q,
		selector:   layout.NewSelector(layouts),
		canvas:     NewCanvas(sink),
		lastActive: now,
	}
	s.loadLocked(ds)
	return s
}

// NewSession builds a standalone session outside any Manager.
func NewSession(id string, q source.Query, ds *graph.Dataset, sink FrameSink) *Session {
	return newSession(id, q, ds, sink, nil)
}

// ============================ DATASET ====================================

// Query returns the query that produced the current dataset.
func (s *Session) Query() source.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Load replaces the dataset. Buckets and the filter are rebuilt from
// scratch; the selection, inspector and layout choice carry over.
func (s *Session) Load(q source.Query, ds *graph.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.query = q
	s.loadLocked(ds)
	if _, ok := s.buckets.CategoryOf(s.highlighted); !ok {
		s.highlighted = ""
	}
	s.syncLocked()
}

func (s *Session) loadLocked(ds *graph.Dataset) {
	if ds == nil {
		ds = graph.NewDataset(nil)
	}
	s.dataset = ds
	s.buckets = graph.Partition(ds)
	s.filter = NewFilter(s.buckets)
	s.memo = filteredView{}
}

// Dataset returns the current dataset.
func (s *Session) Dataset() *graph.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataset
}

// ============================ FILTERING ==================================

// ToggleCategory shows or hides a whole category.
func (s *Session) ToggleCategory(c graph.Category, checked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if err := s.filter.ToggleCategory(c, checked); err != nil {
		return err
	}
	s.syncLocked()
	return nil
}

// SetCategorySelection replaces the visible nodes of one category.
func (s *Session) SetCategorySelection(c graph.Category, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if err := s.filter.SetCategorySelection(c, ids); err != nil {
		return err
	}
	s.syncLocked()
	return nil
}

// ToggleNode flips one node's visibility.
func (s *Session) ToggleNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if err := s.filter.ToggleNode(id); err != nil {
		return err
	}
	s.syncLocked()
	return nil
}

// filteredLocked returns the visible nodes in dataset order and the edges
// between them. Caller MUST hold s.mu.
func (s *Session) filteredLocked() filteredView {
	fp, ver := s.dataset.Fingerprint(), s.filter.Version()
	if s.memo.valid && s.memo.fingerprint == fp && s.memo.version == ver {
		return s.memo
	}
	nodes, edges := graph.FilterElements(s.dataset, s.filter.Contains)
	s.memo = filteredView{
		valid:       true,
		fingerprint: fp,
		version:     ver,
		nodes:       nodes,
		edges:       edges,
		index:       graph.NewIndex(nodes, edges),
	}
	return s.memo
}

// syncLocked pushes the filtered elements to the canvas and starts the
// active layout. Caller MUST hold s.mu.
func (s *Session) syncLocked() {
	fv := s.filteredLocked()
	s.canvas.SetElements(fv.nodes, fv.edges)
	s.canvas.RunLayout(s.selector.Current())
	if s.highlighted != "" {
		s.canvas.Select(s.highlighted)
	}
}

// ============================== LAYOUT ===================================

// AdvanceLayout switches to the next layout and runs it.
func (s *Session) AdvanceLayout() layout.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	cfg := s.selector.Advance()
	s.canvas.RunLayout(cfg)
	return cfg
}

// SelectLayout switches to the named layout and runs it.
func (s *Session) SelectLayout(name string) (layout.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	cfg, err := s.selector.SelectByName(name)
	if err != nil {
		return layout.Config{}, err
	}
	s.canvas.RunLayout(cfg)
	return cfg, nil
}

// ============================ SELECTION ==================================

// TapNode selects a rendered node and opens the inspector on it.
func (s *Session) TapNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	n, ok := s.filteredLocked().index.GetNode(id)
	if !ok {
		return fmt.Errorf("%w: node %q", ErrNotRendered, id)
	}
	s.inspector.Show(n)
	return nil
}

// TapEdge selects a rendered edge and opens the inspector on it.
func (s *Session) TapEdge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	for _, e := range s.filteredLocked().edges {
		if e.ID == id {
			s.inspector.Show(e)
			return nil
		}
	}
	return fmt.Errorf("%w: edge %q", ErrNotRendered, id)
}

// TapBackground handles a tap on empty canvas. It changes nothing.
func (s *Session) TapBackground() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
}

// CloseInspector hides the inspector and keeps the selection.
func (s *Session) CloseInspector() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.inspector.Close()
}

// ReopenInspector shows the last selection again, even if it has since been
// filtered off the canvas. It reports false when nothing was selected yet.
func (s *Session) ReopenInspector() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	return s.inspector.Reopen()
}

// SearchNode highlights a categorized node on the canvas. Visibility is not
// changed, so a hidden node is remembered but nothing gets selected.
func (s *Session) SearchNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if _, ok := s.buckets.CategoryOf(id); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	s.highlighted = id
	s.canvas.Select(id)
	return nil
}

// SearchOptions lists the nodes the search box offers.
func (s *Session) SearchOptions() []graph.Option {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	return s.buckets.SearchOptions()
}

// Neighbourhood is a node and its direct neighbours in the full dataset.
type Neighbourhood struct {
	Center string        `json:"center"`
	Nodes  []*graph.Node `json:"nodes"`
	Edges  []*graph.Edge `json:"edges"`
	// Hidden lists the neighbourhood nodes the filter currently hides.
	Hidden []string `json:"hidden"`
}

// Neighbourhood returns id with its neighbours, visible or not.
func (s *Session) Neighbourhood(id string) (Neighbourhood, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	idx := graph.IndexDataset(s.dataset)
	if _, ok := idx.GetNode(id); !ok {
		return Neighbourhood{}, fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	nodes, edges := idx.ExtractSubgraph(append([]string{id}, idx.Neighbours(id)...))
	hidden := []string{}
	for _, n := range nodes {
		if !s.filter.Contains(n.ID) {
			hidden = append(hidden, n.ID)
		}
	}
	return Neighbourhood{Center: id, Nodes: nodes, Edges: edges, Hidden: hidden}, nil
}

// ============================== VIEWERS ==================================

// Attach registers a viewer. The first viewer makes the canvas ready and
// triggers an immediate sync.
func (s *Session) Attach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.viewers++
	if s.viewers == 1 {
		s.canvas.Attach()
		s.syncLocked()
	}
}

// Detach unregisters a viewer. The canvas is torn down when the last one
// leaves.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if s.viewers == 0 {
		return
	}
	s.viewers--
	if s.viewers == 0 {
		s.canvas.Detach()
	}
}

// Viewers returns the number of attached viewers.
func (s *Session) Viewers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewers
}

// Canvas exposes the session's canvas for waiting on layouts.
func (s *Session) Canvas() *Canvas {
	return s.canvas
}

// Close releases the canvas and waits for layout goroutines.
func (s *Session) Close() {
	s.canvas.Close()
}

func (s *Session) touchLocked() {
	s.lastActive = time.Now().UTC()
}

// LastActive returns when the session was last used.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// =============================== VIEW ====================================

// LayoutView describes the layout selector.
type LayoutView struct {
	Name  string   `json:"name"`
	Index int      `json:"index"`
	Names []string `json:"names"`
}

// View is a snapshot of everything a client renders.
type View struct {
	ID          string                            `json:"id"`
	Query       source.Query                      `json:"query"`
	Empty       bool                              `json:"empty"`
	Fingerprint string                            `json:"fingerprint"`
	Categories  []CategoryState                   `json:"categories"`
	Options     map[graph.Category][]graph.Option `json:"options"`
	Visible     []string                          `json:"visible"`
	Nodes       []*graph.Node                     `json:"nodes"`
	Edges       []*graph.Edge                     `json:"edges"`
	Stats       graph.IndexStats                  `json:"stats"`
	Layout      LayoutView                        `json:"layout"`
	Inspector   InspectorView                     `json:"inspector"`
	Highlighted string                            `json:"highlighted,omitempty"`
	Canvas      CanvasState                       `json:"canvas"`
	Summary     string                            `json:"summary"`
	CreatedAt   time.Time                         `json:"created_at"`
	LastActive  time.Time                         `json:"last_active"`
}

// View snapshots the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	fv := s.filteredLocked()
	opts := make(map[graph.Category][]graph.Option, len(graph.Categories))
	for _, c := range graph.Categories {
		opts[c] = s.buckets.Options(c)
	}
	cur := s.selector.Current()

	return View{
		ID:          s.ID,
		Query:       s.query,
		Empty:       s.dataset.Empty(),
		Fingerprint: s.dataset.FingerprintHex(),
		Categories:  s.filter.States(),
		Options:     opts,
		Visible:     s.filter.Visible(),
		Nodes:       fv.nodes,
		Edges:       fv.edges,
		Stats:       fv.index.Stats(),
		Layout: LayoutView{
			Name:  cur.Name,
			Index: s.selector.Index(),
			Names: s.selector.Names(),
		},
		Inspector:   s.inspector.View(),
		Highlighted: s.highlighted,
		Canvas:      s.canvas.State(),
		Summary:     fmt.Sprintf("%d of %d nodes, %d edges shown", len(fv.nodes), len(s.dataset.Nodes), len(fv.edges)),
		CreatedAt:   s.CreatedAt,
		LastActive:  s.lastActive,
	}
}

// Summary is the short form used in session listings.
type Summary struct {
	ID         string       `json:"id"`
	Query      source.Query `json:"query"`
	Nodes      int          `json:"nodes"`
	Edges      int          `json:"edges"`
	Viewers    int          `json:"viewers"`
	CreatedAt  time.Time    `json:"created_at"`
	LastActive time.Time    `json:"last_active"`
}

// Summarize returns the session's listing entry.
func (s *Session) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		ID:         s.ID,
		Query:      s.query,
		Nodes:      len(s.dataset.Nodes),
		Edges:      len(s.dataset.Edges),
		Viewers:    s.viewers,
		CreatedAt:  s.CreatedAt,
		LastActive: s.lastActive,
	}
}
