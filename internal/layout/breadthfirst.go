package layout

import (
	"context"
	"math"

	"github.com/dossier/kgexplorer/internal/graph"
)

// breadthfirstEngine arranges nodes in levels by BFS distance from a set of
// roots. With Directed, roots are nodes without incoming edges and traversal
// follows edge direction; otherwise the first node of each component roots
// an undirected traversal. Nodes left unreached (cycles with no root) start
// a new traversal in insertion order.
type breadthfirstEngine struct{}

func (breadthfirstEngine) Name() string { return "breadthfirst" }

const baseSpacing = 100.0

func (breadthfirstEngine) Compute(ctx context.Context, g *graph.Index, cfg Config, _ FrameFunc) (Positions, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spacing := baseSpacing
	if cfg.SpacingFactor > 0 {
		spacing *= cfg.SpacingFactor
	}

	levels := bfsLevels(g, cfg.Directed)
	pos := make(Positions, g.NodeCount())
	if cfg.Circle {
		for depth, ids := range levels {
			placeRing(pos, ids, float64(depth)*spacing, -math.Pi/2)
		}
		return pos, nil
	}
	for depth, ids := range levels {
		placeRow(pos, ids, float64(depth)*spacing, spacing)
	}
	return pos, nil
}

// bfsLevels groups node ids by their BFS depth.
func bfsLevels(g *graph.Index, directed bool) [][]string {
	depth := make(map[string]int, g.NodeCount())
	var levels [][]string

	next := func(id string) []string {
		if !directed {
			return g.Neighbours(id)
		}
		var out []string
		for _, e := range g.GetOutEdges(id) {
			out = append(out, e.Target)
		}
		return out
	}

	walk := func(roots []string) {
		queue := make([]string, 0, len(roots))
		for _, r := range roots {
			if _, seen := depth[r]; seen {
				continue
			}
			depth[r] = 0
			queue = append(queue, r)
		}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			d := depth[cur]
			for len(levels) <= d {
				levels = append(levels, nil)
			}
			levels[d] = append(levels[d], cur)
			for _, nb := range next(cur) {
				if _, seen := depth[nb]; !seen {
					depth[nb] = d + 1
					queue = append(queue, nb)
				}
			}
		}
	}

	var roots []string
	if directed {
		for _, n := range g.Nodes() {
			if len(g.GetInEdges(n.ID)) == 0 {
				roots = append(roots, n.ID)
			}
		}
	} else {
		for _, comp := range g.ConnectedComponents() {
			roots = append(roots, comp[0].ID)
		}
	}
	walk(roots)

	for _, n := range g.Nodes() {
		if _, seen := depth[n.ID]; !seen {
			walk([]string{n.ID})
		}
	}
	return levels
}
