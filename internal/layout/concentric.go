package layout

import (
	"context"
	"math"
	"sort"

	"github.com/dossier/kgexplorer/internal/graph"
)

// concentricEngine places nodes on rings by degree: the highest-degree band
// sits in the centre. A band spans maxDegree/4 degree values.
type concentricEngine struct{}

func (concentricEngine) Name() string { return "concentric" }

func (concentricEngine) Compute(ctx context.Context, g *graph.Index, cfg Config, _ FrameFunc) (Positions, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nodes := append([]*graph.Node(nil), g.Nodes()...)
	if len(nodes) == 0 {
		return Positions{}, nil
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return g.Degree(nodes[i].ID) > g.Degree(nodes[j].ID)
	})

	maxDeg := g.MaxDegree()
	width := float64(maxDeg) / 4
	if width <= 0 {
		width = 1
	}

	var rings [][]string
	for _, n := range nodes {
		level := int(math.Floor(float64(maxDeg-g.Degree(n.ID)) / width))
		for len(rings) <= level {
			rings = append(rings, nil)
		}
		rings[level] = append(rings[level], n.ID)
	}

	spacing := baseSpacing
	if cfg.SpacingFactor > 0 {
		spacing *= cfg.SpacingFactor
	}
	pos := make(Positions, len(nodes))
	radius := 0.0
	for _, ids := range rings {
		if len(ids) == 0 {
			continue
		}
		if len(ids) > 1 {
			// Keep neighbours on a ring at least spacing apart.
			minR := spacing * float64(len(ids)) / (2 * math.Pi)
			radius = math.Max(radius, minR)
		}
		placeRing(pos, ids, radius, -math.Pi/2)
		radius += spacing
	}
	return pos, nil
}
