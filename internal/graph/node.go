package graph

import "strings"

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

// Category is the biological kind of a node. Only the three values below are
// recognized; any other type string leaves a node uncategorized.
type Category string

const (
	CategoryDisease Category = "Disease"
	CategoryGene    Category = "Gene"
	CategoryPathway Category = "Pathway"
)

// Categories lists the recognized categories in display order.
var Categories = []Category{CategoryDisease, CategoryGene, CategoryPathway}

// DefaultVisible lists the categories whose nodes start out visible.
var DefaultVisible = []Category{CategoryDisease, CategoryGene}

// Valid reports whether c is one of the recognized categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryDisease, CategoryGene, CategoryPathway:
		return true
	}
	return false
}

// ParseCategory matches s against the recognized categories, ignoring case.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, true
		}
	}
	return "", false
}

// biolinkCategories maps knowledge-graph labels onto categories.
var biolinkCategories = []struct {
	label    string
	category Category
}{
	{"biolink:Gene", CategoryGene},
	{"biolink:Disease", CategoryDisease},
	{"biolink:Pathway", CategoryPathway},
}

// CategoryFromLabels returns the category implied by a set of biolink labels,
// or "" when none of them is recognized.
func CategoryFromLabels(labels []string) Category {
	for _, b := range biolinkCategories {
		for _, l := range labels {
			if l == b.label {
				return b.category
			}
		}
	}
	return ""
}

// BiolinkLabel returns the knowledge-graph label for c.
func BiolinkLabel(c Category) string {
	return "biolink:" + string(c)
}

// ---------------------------------------------------------------------------
// Node
// ---------------------------------------------------------------------------

// Node is a vertex of the explored knowledge graph.
type Node struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Type       Category       `json:"type,omitempty"`
	Labels     []string       `json:"labels,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (n *Node) ElementID() string { return n.ID }
func (n *Node) Kind() ElementKind { return KindNode }
func (n *Node) DisplayLabel() string { return n.Label }
func (n *Node) Props() map[string]any { return n.Properties }
func (*Node) element() {}

// Categorized reports whether the node belongs to a recognized category.
func (n *Node) Categorized() bool {
	return n.Type.Valid()
}
