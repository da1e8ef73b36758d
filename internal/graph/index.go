package graph

// ---------------------------------------------------------------------------
// IndexStats
// ---------------------------------------------------------------------------

// IndexStats summarises the contents of an Index.
type IndexStats struct {
	TotalNodes    int            `json:"total_nodes"`
	TotalEdges    int            `json:"total_edges"`
	NodesByType   map[string]int `json:"nodes_by_type"`
	EdgesByLabel  map[string]int `json:"edges_by_label"`
	Uncategorized int            `json:"uncategorized"`
	Components    int            `json:"components"`
	MaxDegree     int            `json:"max_degree"`
}

// ---------------------------------------------------------------------------
// Index
// ---------------------------------------------------------------------------

// Index is an adjacency view over a node set and the edges between them.
// Edges whose endpoints are not both in the node set are left out, so every
// indexed edge is renderable. An Index is immutable after NewIndex and safe
// for concurrent readers.
type Index struct {
	nodes    []*Node
	edges    []*Edge
	byID     map[string]*Node
	position map[string]int     // id → position in nodes
	outEdges map[string][]*Edge // source → edges
	inEdges  map[string][]*Edge // target → edges
	byType   map[Category][]string
}

// NewIndex indexes nodes and the subset of edges joining them.
func NewIndex(nodes []*Node, edges []*Edge) *Index {
	g := &Index{
		nodes:    make([]*Node, 0, len(nodes)),
		byID:     make(map[string]*Node, len(nodes)),
		position: make(map[string]int, len(nodes)),
		outEdges: make(map[string][]*Edge),
		inEdges:  make(map[string][]*Edge),
		byType:   make(map[Category][]string),
	}
	for _, n := range nodes {
		g.indexNode(n)
	}
	for _, e := range edges {
		g.indexEdge(e)
	}
	return g
}

// IndexDataset indexes the whole dataset.
func IndexDataset(ds *Dataset) *Index {
	return NewIndex(ds.Nodes, ds.Edges)
}

func (g *Index) indexNode(n *Node) {
	if _, dup := g.byID[n.ID]; dup {
		return
	}
	g.position[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.byID[n.ID] = n
	g.byType[n.Type] = append(g.byType[n.Type], n.ID)
}

func (g *Index) indexEdge(e *Edge) {
	if g.byID[e.Source] == nil || g.byID[e.Target] == nil {
		return
	}
	g.edges = append(g.edges, e)
	g.outEdges[e.Source] = append(g.outEdges[e.Source], e)
	g.inEdges[e.Target] = append(g.inEdges[e.Target], e)
}

// ======================== TRAVERSAL QUERIES ===============================

// GetNode returns the node with the given id.
func (g *Index) GetNode(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// Nodes returns the indexed nodes in insertion order.
func (g *Index) Nodes() []*Node { return g.nodes }

// Edges returns the indexed edges in insertion order.
func (g *Index) Edges() []*Edge { return g.edges }

// Position returns the insertion position of a node, or -1.
func (g *Index) Position(id string) int {
	if p, ok := g.position[id]; ok {
		return p
	}
	return -1
}

// GetOutEdges returns edges whose source is nodeID.
func (g *Index) GetOutEdges(nodeID string) []*Edge { return g.outEdges[nodeID] }

// GetInEdges returns edges whose target is nodeID.
func (g *Index) GetInEdges(nodeID string) []*Edge { return g.inEdges[nodeID] }

// Degree counts edges touching nodeID in either direction. Self-loops count
// twice.
func (g *Index) Degree(nodeID string) int {
	return len(g.outEdges[nodeID]) + len(g.inEdges[nodeID])
}

// MaxDegree returns the highest degree in the index.
func (g *Index) MaxDegree() int {
	best := 0
	for _, n := range g.nodes {
		if d := g.Degree(n.ID); d > best {
			best = d
		}
	}
	return best
}

// Neighbours returns the ids adjacent to nodeID ignoring edge direction,
// without duplicates, in first-seen order.
func (g *Index) Neighbours(nodeID string) []string {
	seen := map[string]bool{nodeID: true}
	var out []string
	for _, e := range g.outEdges[nodeID] {
		if !seen[e.Target] {
			seen[e.Target] = true
			out = append(out, e.Target)
		}
	}
	for _, e := range g.inEdges[nodeID] {
		if !seen[e.Source] {
			seen[e.Source] = true
			out = append(out, e.Source)
		}
	}
	return out
}

// ======================== GRAPH ALGORITHMS ================================

// GetConnectedComponent returns every node reachable from nodeID ignoring
// edge direction, nodeID first.
func (g *Index) GetConnectedComponent(nodeID string) []*Node {
	if _, ok := g.byID[nodeID]; !ok {
		return nil
	}
	visited := map[string]bool{nodeID: true}
	queue := []string{nodeID}
	var result []*Node

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		result = append(result, g.byID[cur])

		for _, nb := range g.Neighbours(cur) {
			if !visited[nb] {
				visited[nb] = true
				queue = append(queue, nb)
			}
		}
	}
	return result
}

// ConnectedComponents partitions the index into components. Components are
// ordered by their first node's insertion position.
func (g *Index) ConnectedComponents() [][]*Node {
	seen := make(map[string]bool, len(g.nodes))
	var out [][]*Node
	for _, n := range g.nodes {
		if seen[n.ID] {
			continue
		}
		comp := g.GetConnectedComponent(n.ID)
		for _, c := range comp {
			seen[c.ID] = true
		}
		out = append(out, comp)
	}
	return out
}

// ===================== SUBGRAPH EXTRACTION ================================

// ExtractSubgraph returns the nodes named by ids (in ids order, unknown ids
// skipped) and the indexed edges with both endpoints among them.
func (g *Index) ExtractSubgraph(ids []string) ([]*Node, []*Edge) {
	set := make(map[string]bool, len(ids))
	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.byID[id]; ok && !set[id] {
			set[id] = true
			nodes = append(nodes, n)
		}
	}
	return nodes, g.edgesWithin(set)
}

func (g *Index) edgesWithin(set map[string]bool) []*Edge {
	var edges []*Edge
	for _, e := range g.edges {
		if set[e.Source] && set[e.Target] {
			edges = append(edges, e)
		}
	}
	return edges
}

// FilterElements keeps the dataset nodes accepted by visible, in dataset
// order, and the dataset edges whose endpoints both survived.
func FilterElements(ds *Dataset, visible func(id string) bool) ([]*Node, []*Edge) {
	if ds == nil {
		return nil, nil
	}
	kept := make(map[string]bool)
	nodes := make([]*Node, 0)
	for _, n := range ds.Nodes {
		if visible(n.ID) {
			kept[n.ID] = true
			nodes = append(nodes, n)
		}
	}
	edges := make([]*Edge, 0)
	for _, e := range ds.Edges {
		if kept[e.Source] && kept[e.Target] {
			edges = append(edges, e)
		}
	}
	return nodes, edges
}

// ============================== STATS ====================================

// NodeCount returns the number of indexed nodes.
func (g *Index) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of indexed edges.
func (g *Index) EdgeCount() int { return len(g.edges) }

// Stats computes summary counts.
func (g *Index) Stats() IndexStats {
	nodesByType := make(map[string]int, len(g.byType))
	uncategorized := 0
	for t, ids := range g.byType {
		if !t.Valid() {
			uncategorized += len(ids)
			continue
		}
		nodesByType[string(t)] = len(ids)
	}

	edgesByLabel := make(map[string]int)
	for _, e := range g.edges {
		edgesByLabel[e.Label]++
	}

	return IndexStats{
		TotalNodes:    len(g.nodes),
		TotalEdges:    len(g.edges),
		NodesByType:   nodesByType,
		EdgesByLabel:  edgesByLabel,
		Uncategorized: uncategorized,
		Components:    len(g.ConnectedComponents()),
		MaxDegree:     g.MaxDegree(),
	}
}
