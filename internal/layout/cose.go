package layout

import (
	"context"
	"math"

	"github.com/dossier/kgexplorer/internal/graph"
)

// coseEngine is a force-directed layout with simulated annealing. Nodes
// repel each other, edges pull their endpoints towards IdealEdgeLength and
// a weak gravity keeps components near the centre. Each iteration moves a
// node at most the current temperature.
type coseEngine struct{}

func (coseEngine) Name() string { return "cose" }

// coseParams are the config values with zero fields defaulted.
type coseParams struct {
	repulsion, edgeLength, elasticity, overlap float64
	gravity, temp, cooling, minTemp, spacing   float64
	iterations, refresh                        int
}

func coseDefaults(cfg Config) coseParams {
	p := coseParams{
		repulsion:  cfg.NodeRepulsion,
		edgeLength: cfg.IdealEdgeLength,
		elasticity: cfg.EdgeElasticity,
		overlap:    cfg.NodeOverlap,
		gravity:    cfg.Gravity,
		temp:       cfg.InitialTemp,
		cooling:    cfg.CoolingFactor,
		minTemp:    cfg.MinTemp,
		spacing:    cfg.ComponentSpacing,
		iterations: cfg.NumIter,
		refresh:    cfg.Refresh,
	}
	if p.repulsion <= 0 {
		p.repulsion = 4000
	}
	if p.edgeLength <= 0 {
		p.edgeLength = 100
	}
	if p.elasticity <= 0 {
		p.elasticity = 5000
	}
	if p.temp <= 0 {
		p.temp = 1000
	}
	if p.cooling <= 0 || p.cooling >= 1 {
		p.cooling = 0.99
	}
	if p.minTemp <= 0 {
		p.minTemp = 1
	}
	if p.iterations <= 0 {
		p.iterations = 1000
	}
	if p.refresh <= 0 {
		p.refresh = 10
	}
	if p.spacing <= 0 {
		p.spacing = 100
	}
	return p
}

// The reference constants make the default config balance repulsion and
// spring pull at exactly IdealEdgeLength.
const (
	refRepulsion  = 4000.0
	refElasticity = 5000.0
	cancelCheck   = 8
)

func (e coseEngine) Compute(ctx context.Context, g *graph.Index, cfg Config, onFrame FrameFunc) (Positions, error) {
	p := coseDefaults(cfg)
	nodes := g.Nodes()
	n := len(nodes)
	if n == 0 {
		return Positions{}, nil
	}

	// Seed on a circle in insertion order.
	xs := make([]float64, n)
	ys := make([]float64, n)
	radius := p.edgeLength * math.Max(1, float64(n)/(2*math.Pi))
	for i := range nodes {
		angle := 2 * math.Pi * float64(i) / float64(n)
		xs[i] = radius * math.Cos(angle)
		ys[i] = radius * math.Sin(angle)
	}
	if n == 1 {
		xs[0], ys[0] = 0, 0
	}

	type spring struct{ a, b int }
	springs := make([]spring, 0, len(g.Edges()))
	for _, e := range g.Edges() {
		a, b := g.Position(e.Source), g.Position(e.Target)
		if a < 0 || b < 0 || a == b {
			continue
		}
		springs = append(springs, spring{a, b})
	}

	k := p.edgeLength
	repScale := p.repulsion / refRepulsion
	attrScale := refElasticity / p.elasticity
	dx := make([]float64, n)
	dy := make([]float64, n)
	temp := p.temp

	for iter := 0; iter < p.iterations && temp > p.minTemp; iter++ {
		if iter%cancelCheck == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for i := range dx {
			dx[i], dy[i] = 0, 0
		}

		// Repulsion between every pair.
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				vx, vy := xs[i]-xs[j], ys[i]-ys[j]
				dist := math.Hypot(vx, vy)
				if dist < 0.01 {
					// Coincident nodes: push apart along a fixed axis.
					vx, vy, dist = float64(j-i), 1, math.Hypot(float64(j-i), 1)
				}
				force := repScale * k * k / dist
				if dist < p.overlap {
					force += p.overlap * k
				}
				fx, fy := vx/dist*force, vy/dist*force
				dx[i] += fx
				dy[i] += fy
				dx[j] -= fx
				dy[j] -= fy
			}
		}

		// Springs.
		for _, s := range springs {
			vx, vy := xs[s.a]-xs[s.b], ys[s.a]-ys[s.b]
			dist := math.Max(math.Hypot(vx, vy), 0.01)
			force := attrScale * dist * dist / k
			fx, fy := vx/dist*force, vy/dist*force
			dx[s.a] -= fx
			dy[s.a] -= fy
			dx[s.b] += fx
			dy[s.b] += fy
		}

		// Gravity towards the centroid.
		if p.gravity > 0 {
			var cx, cy float64
			for i := 0; i < n; i++ {
				cx += xs[i]
				cy += ys[i]
			}
			cx /= float64(n)
			cy /= float64(n)
			for i := 0; i < n; i++ {
				dx[i] -= p.gravity * (xs[i] - cx) / 10
				dy[i] -= p.gravity * (ys[i] - cy) / 10
			}
		}

		// Move, limited by temperature.
		for i := 0; i < n; i++ {
			d := math.Hypot(dx[i], dy[i])
			if d == 0 {
				continue
			}
			step := math.Min(d, temp)
			xs[i] += dx[i] / d * step
			ys[i] += dy[i] / d * step
		}
		temp *= p.cooling

		if onFrame != nil && cfg.Animate && iter%p.refresh == 0 {
			onFrame(collect(nodes, xs, ys))
		}
	}

	pos := collect(nodes, xs, ys)
	packComponents(g, pos, p.spacing)
	return pos, nil
}

func collect(nodes []*graph.Node, xs, ys []float64) Positions {
	pos := make(Positions, len(nodes))
	for i, n := range nodes {
		pos[n.ID] = Position{X: xs[i], Y: ys[i]}
	}
	return pos
}

// packComponents lines disconnected components up left to right with spacing
// between their bounding boxes.
func packComponents(g *graph.Index, pos Positions, spacing float64) {
	comps := g.ConnectedComponents()
	if len(comps) < 2 {
		return
	}
	cursor := 0.0
	for _, comp := range comps {
		minX, minY := math.Inf(1), math.Inf(1)
		maxX, maxY := math.Inf(-1), math.Inf(-1)
		for _, n := range comp {
			v := pos[n.ID]
			minX, maxX = math.Min(minX, v.X), math.Max(maxX, v.X)
			minY, maxY = math.Min(minY, v.Y), math.Max(maxY, v.Y)
		}
		shiftX := cursor - minX
		shiftY := -(minY + maxY) / 2
		for _, n := range comp {
			v := pos[n.ID]
			pos[n.ID] = Position{X: v.X + shiftX, Y: v.Y + shiftY}
		}
		cursor += (maxX - minX) + spacing
	}
}
