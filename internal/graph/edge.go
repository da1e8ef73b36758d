package graph

import "fmt"

// ---------------------------------------------------------------------------
// Edge
// ---------------------------------------------------------------------------

// Edge is a relationship between two nodes. The knowledge graph is queried
// undirected, but Source and Target keep the stored direction.
type Edge struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (e *Edge) ElementID() string { return e.ID }
func (e *Edge) Kind() ElementKind { return KindEdge }
func (e *Edge) DisplayLabel() string { return e.Label }
func (e *Edge) Props() map[string]any { return e.Properties }
func (*Edge) element() {}

// EdgeID builds the identifier used for edges that arrive without one.
// index is the edge's position in the payload, which keeps parallel edges
// between the same pair distinct.
func EdgeID(source, target, label string, index int) string {
	return fmt.Sprintf("%s-%s-%s-%d", source, target, label, index)
}
