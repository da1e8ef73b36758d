package explorer

import (
	"errors"
	"reflect"
	"testing"

	"github.com/dossier/kgexplorer/internal/graph"
)

// scenarioDataset is d1 (Disease), g1 (Gene), p1 (Pathway) and e1 d1→p1.
func scenarioDataset() *graph.Dataset {
	return graph.NewDataset([]graph.Element{
		&graph.Node{ID: "d1", Label: "d1", Type: graph.CategoryDisease},
		&graph.Node{ID: "g1", Label: "g1", Type: graph.CategoryGene, Properties: map[string]any{
			"name":  "TNFRSF4",
			"xrefs": []any{"HGNC:11918", "ENSG00000186827"},
		}},
		&graph.Node{ID: "p1", Label: "p1", Type: graph.CategoryPathway},
		&graph.Edge{ID: "e1", Source: "d1", Target: "p1", Label: "related_to"},
	})
}

func wideDataset() *graph.Dataset {
	return graph.NewDataset([]graph.Element{
		&graph.Node{ID: "d1", Type: graph.CategoryDisease},
		&graph.Node{ID: "d2", Type: graph.CategoryDisease},
		&graph.Node{ID: "g1", Type: graph.CategoryGene},
		&graph.Node{ID: "g2", Type: graph.CategoryGene},
		&graph.Node{ID: "g3", Type: graph.CategoryGene},
		&graph.Node{ID: "p1", Type: graph.CategoryPathway},
		&graph.Node{ID: "x1", Type: "Drug"},
	})
}

func TestFilter_DefaultVisible(t *testing.T) {
	f := NewFilter(graph.Partition(scenarioDataset()))
	want := []string{"d1", "g1"}
	if got := f.Visible(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if f.Contains("p1") {
		t.Error("pathways should start hidden")
	}
}

func TestFilter_CategoryToggleIsolation(t *testing.T) {
	f := NewFilter(graph.Partition(wideDataset()))
	if err := f.ToggleNode("g2"); err != nil {
		t.Fatalf("ToggleNode failed: %v", err)
	}

	for _, c := range graph.Categories {
		before := map[graph.Category][]string{}
		for _, other := range graph.Categories {
			before[other] = f.VisibleIn(other)
		}
		if err := f.ToggleCategory(c, true); err != nil {
			t.Fatalf("ToggleCategory(%s, true) failed: %v", c, err)
		}
		if err := f.ToggleCategory(c, false); err != nil {
			t.Fatalf("ToggleCategory(%s, false) failed: %v", c, err)
		}
		for _, other := range graph.Categories {
			if other == c {
				continue
			}
			if got := f.VisibleIn(other); !reflect.DeepEqual(got, before[other]) {
				t.Errorf("toggling %s changed %s: %v → %v", c, other, before[other], got)
			}
		}
		if len(f.VisibleIn(c)) != 0 {
			t.Errorf("%s should be fully hidden after unchecking", c)
		}
	}
}

func TestFilter_AllSelectedRelation(t *testing.T) {
	f := NewFilter(graph.Partition(wideDataset()))
	steps := []func(){
		func() { _ = f.ToggleNode("g1") },
		func() { _ = f.ToggleCategory(graph.CategoryPathway, true) },
		func() { _ = f.SetCategorySelection(graph.CategoryDisease, []string{"d2"}) },
		func() { _ = f.ToggleNode("g1") },
		func() { _ = f.ToggleCategory(graph.CategoryGene, false) },
	}
	check := func() {
		for _, st := range f.States() {
			allVisible := st.Visible == st.Total
			want := !st.Indeterminate && st.Total > 0 && allVisible
			if st.Checked != want {
				t.Errorf("%s: checked=%v but indeterminate=%v total=%d visible=%d",
					st.Category, st.Checked, st.Indeterminate, st.Total, st.Visible)
			}
			if st.Checked && st.Indeterminate {
				t.Errorf("%s cannot be both checked and indeterminate", st.Category)
			}
		}
	}
	check()
	for _, step := range steps {
		step()
		check()
	}
}

func TestFilter_Indeterminate(t *testing.T) {
	f := NewFilter(graph.Partition(wideDataset()))
	if f.IsIndeterminate(graph.CategoryGene) {
		t.Error("fully visible genes are not indeterminate")
	}
	_ = f.ToggleNode("g3")
	if !f.IsIndeterminate(graph.CategoryGene) || f.IsAllSelected(graph.CategoryGene) {
		t.Error("partially visible genes should be indeterminate")
	}
	if f.IsIndeterminate(graph.CategoryPathway) {
		t.Error("hidden pathways are not indeterminate")
	}
}

func TestFilter_EmptyBucket(t *testing.T) {
	ds := graph.NewDataset([]graph.Element{&graph.Node{ID: "g1", Type: graph.CategoryGene}})
	f := NewFilter(graph.Partition(ds))
	if !f.IsAllSelected(graph.CategoryDisease) {
		t.Error("an empty bucket is vacuously all selected")
	}
	if st := f.State(graph.CategoryDisease); st.Checked || st.Indeterminate {
		t.Errorf("empty bucket should report unchecked, got %+v", st)
	}
}

func TestFilter_SetCategorySelection(t *testing.T) {
	f := NewFilter(graph.Partition(wideDataset()))
	if err := f.SetCategorySelection(graph.CategoryGene, []string{"g2", "d1", "nope"}); err != nil {
		t.Fatalf("SetCategorySelection failed: %v", err)
	}
	if got := f.VisibleIn(graph.CategoryGene); !reflect.DeepEqual(got, []string{"g2"}) {
		t.Errorf("expected only g2 visible, got %v", got)
	}
	if !f.Contains("d1") || !f.Contains("d2") {
		t.Error("diseases should be untouched")
	}
}

func TestFilter_UnknownInputs(t *testing.T) {
	f := NewFilter(graph.Partition(wideDataset()))
	if err := f.ToggleCategory("Drug", true); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("expected ErrUnknownCategory, got %v", err)
	}
	if err := f.ToggleNode("x1"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("uncategorized nodes cannot be toggled, got %v", err)
	}
	if f.Contains("x1") {
		t.Error("uncategorized nodes never become visible")
	}
}

func TestFilter_VersionBumps(t *testing.T) {
	f := NewFilter(graph.Partition(wideDataset()))
	v := f.Version()
	_ = f.ToggleNode("g1")
	if f.Version() == v {
		t.Error("mutation should bump the version")
	}
	v = f.Version()
	_ = f.ToggleNode("zzz")
	if f.Version() != v {
		t.Error("rejected mutation should not bump the version")
	}
}
