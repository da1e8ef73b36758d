package graph

import (
	"sort"
	"strings"
)

// Buckets groups a dataset's nodes by category. It is derived data: build it
// with Partition and rebuild it whenever the dataset changes.
type Buckets struct {
	nodes map[Category][]*Node
	all   []*Node
	cat   map[string]Category
	edges []*Edge
}

// Option is one entry of a category's checkbox list or of the node search.
type Option struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Type  Category `json:"type"`
}

// Partition places every categorized node into exactly one bucket, keeping
// dataset order inside each bucket. Uncategorized nodes land nowhere.
func Partition(ds *Dataset) *Buckets {
	b := &Buckets{
		nodes: make(map[Category][]*Node, len(Categories)),
		cat:   make(map[string]Category),
	}
	if ds == nil {
		return b
	}
	for _, n := range ds.Nodes {
		if !n.Type.Valid() {
			continue
		}
		b.nodes[n.Type] = append(b.nodes[n.Type], n)
		b.all = append(b.all, n)
		b.cat[n.ID] = n.Type
	}
	b.edges = ds.Edges
	return b
}

// Nodes returns the bucket for c. The slice must not be modified.
func (b *Buckets) Nodes(c Category) []*Node {
	return b.nodes[c]
}

// Edges returns every edge of the dataset.
func (b *Buckets) Edges() []*Edge {
	return b.edges
}

// Len returns the size of the bucket for c.
func (b *Buckets) Len(c Category) int {
	return len(b.nodes[c])
}

// IDs returns the node ids in the bucket for c.
func (b *Buckets) IDs(c Category) []string {
	ns := b.nodes[c]
	ids := make([]string, len(ns))
	for i, n := range ns {
		ids[i] = n.ID
	}
	return ids
}

// Has reports whether id belongs to the bucket for c.
func (b *Buckets) Has(c Category, id string) bool {
	got, ok := b.cat[id]
	return ok && got == c
}

// CategoryOf returns the bucket holding id.
func (b *Buckets) CategoryOf(id string) (Category, bool) {
	c, ok := b.cat[id]
	return c, ok
}

// Options lists a bucket as id/label pairs sorted by label.
func (b *Buckets) Options(c Category) []Option {
	opts := make([]Option, 0, len(b.nodes[c]))
	for _, n := range b.nodes[c] {
		opts = append(opts, Option{ID: n.ID, Label: n.Label, Type: c})
	}
	sort.SliceStable(opts, func(i, j int) bool {
		li, lj := strings.ToLower(opts[i].Label), strings.ToLower(opts[j].Label)
		if li != lj {
			return li < lj
		}
		return opts[i].Label < opts[j].Label
	})
	return opts
}

// SearchOptions lists every categorized node in dataset order.
func (b *Buckets) SearchOptions() []Option {
	opts := make([]Option, 0, len(b.all))
	for _, n := range b.all {
		opts = append(opts, Option{ID: n.ID, Label: n.Label, Type: n.Type})
	}
	return opts
}

// Categorized returns every bucketed node in dataset order.
func (b *Buckets) Categorized() []*Node {
	return b.all
}
