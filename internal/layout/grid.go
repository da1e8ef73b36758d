package layout

import (
	"context"
	"math"

	"github.com/dossier/kgexplorer/internal/graph"
)

// gridEngine fills a Rows × Cols grid row by row in insertion order. When
// more nodes arrive than cells exist, rows are added.
type gridEngine struct{}

func (gridEngine) Name() string { return "grid" }

func (gridEngine) Compute(ctx context.Context, g *graph.Index, cfg Config, _ FrameFunc) (Positions, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := g.NodeCount()
	_, cols := gridShape(n, cfg.Rows, cfg.Cols)

	spacing := baseSpacing
	if cfg.SpacingFactor > 0 {
		spacing *= cfg.SpacingFactor
	}
	pos := make(Positions, n)
	for i, node := range g.Nodes() {
		r, c := i/cols, i%cols
		pos[node.ID] = Position{X: float64(c) * spacing, Y: float64(r) * spacing}
	}
	return pos, nil
}

// gridShape resolves the grid dimensions for n nodes. Missing dimensions are
// derived to keep the grid close to square.
func gridShape(n, rows, cols int) (int, int) {
	switch {
	case rows <= 0 && cols <= 0:
		cols = int(math.Ceil(math.Sqrt(float64(n))))
		if cols == 0 {
			cols = 1
		}
		rows = int(math.Ceil(float64(n) / float64(cols)))
	case cols <= 0:
		cols = int(math.Ceil(float64(n) / float64(rows)))
	case rows <= 0:
		rows = int(math.Ceil(float64(n) / float64(cols)))
	}
	if cols <= 0 {
		cols = 1
	}
	if rows*cols < n {
		rows = int(math.Ceil(float64(n) / float64(cols)))
	}
	return rows, cols
}
