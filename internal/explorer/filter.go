package explorer

import (
	"fmt"
	"sort"

	"github.com/dossier/kgexplorer/internal/graph"
)

// Filter is the set of node ids the user has chosen to show. It only ever
// holds ids of categorized dataset nodes, and it starts with every Disease
// and Gene node visible.
type Filter struct {
	buckets *graph.Buckets
	visible map[string]struct{}
	version uint64
}

// CategoryState is the checkbox state of one category.
type CategoryState struct {
	Category      graph.Category `json:"category"`
	Total         int            `json:"total"`
	Visible       int            `json:"visible"`
	Checked       bool           `json:"checked"`
	Indeterminate bool           `json:"indeterminate"`
}

// NewFilter builds the default filter for a partitioned dataset.
func NewFilter(b *graph.Buckets) *Filter {
	f := &Filter{buckets: b, visible: make(map[string]struct{})}
	for _, c := range graph.DefaultVisible {
		for _, id := range b.IDs(c) {
			f.visible[id] = struct{}{}
		}
	}
	return f
}

func checkCategory(c graph.Category) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	return nil
}

// IsAllSelected reports whether every node of c is visible. An empty bucket
// is trivially all selected.
func (f *Filter) IsAllSelected(c graph.Category) bool {
	for _, id := range f.buckets.IDs(c) {
		if _, ok := f.visible[id]; !ok {
			return false
		}
	}
	return true
}

// IsIndeterminate reports whether some but not all nodes of c are visible.
func (f *Filter) IsIndeterminate(c graph.Category) bool {
	n := f.visibleIn(c)
	return n > 0 && n < f.buckets.Len(c)
}

func (f *Filter) visibleIn(c graph.Category) int {
	n := 0
	for _, id := range f.buckets.IDs(c) {
		if _, ok := f.visible[id]; ok {
			n++
		}
	}
	return n
}

// ToggleCategory shows (checked) or hides every node of c. Other categories
// are untouched.
func (f *Filter) ToggleCategory(c graph.Category, checked bool) error {
	if err := checkCategory(c); err != nil {
		return err
	}
	for _, id := range f.buckets.IDs(c) {
		if checked {
			f.visible[id] = struct{}{}
		} else {
			delete(f.visible, id)
		}
	}
	f.version++
	return nil
}

// SetCategorySelection replaces the visible subset of c with ids. Ids that
// are not nodes of c are ignored.
func (f *Filter) SetCategorySelection(c graph.Category, ids []string) error {
	if err := checkCategory(c); err != nil {
		return err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, id := range f.buckets.IDs(c) {
		if want[id] {
			f.visible[id] = struct{}{}
		} else {
			delete(f.visible, id)
		}
	}
	f.version++
	return nil
}

// ToggleNode flips the visibility of one categorized node.
func (f *Filter) ToggleNode(id string) error {
	if _, ok := f.buckets.CategoryOf(id); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	if _, ok := f.visible[id]; ok {
		delete(f.visible, id)
	} else {
		f.visible[id] = struct{}{}
	}
	f.version++
	return nil
}

// Contains reports whether id is visible.
func (f *Filter) Contains(id string) bool {
	_, ok := f.visible[id]
	return ok
}

// Len returns the number of visible ids.
func (f *Filter) Len() int {
	return len(f.visible)
}

// Visible returns the visible ids, sorted.
func (f *Filter) Visible() []string {
	ids := make([]string, 0, len(f.visible))
	for id := range f.visible {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// VisibleIn returns the visible ids of c in bucket order.
func (f *Filter) VisibleIn(c graph.Category) []string {
	var ids []string
	for _, id := range f.buckets.IDs(c) {
		if _, ok := f.visible[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Version increases on every mutation.
func (f *Filter) Version() uint64 {
	return f.version
}

// State reports the checkbox state of c. Checked requires a non-empty
// bucket.
func (f *Filter) State(c graph.Category) CategoryState {
	total := f.buckets.Len(c)
	return CategoryState{
		Category:      c,
		Total:         total,
		Visible:       f.visibleIn(c),
		Checked:       total > 0 && f.IsAllSelected(c),
		Indeterminate: f.IsIndeterminate(c),
	}
}

// States reports every category in display order.
func (f *Filter) States() []CategoryState {
	out := make([]CategoryState, 0, len(graph.Categories))
	for _, c := range graph.Categories {
		out = append(out, f.State(c))
	}
	return out
}
