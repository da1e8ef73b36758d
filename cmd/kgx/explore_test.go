package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dossier/kgexplorer/internal/config"
	"github.com/dossier/kgexplorer/internal/explorer"
	"github.com/dossier/kgexplorer/internal/graph"
	"github.com/dossier/kgexplorer/internal/source"
	"github.com/dossier/kgexplorer/internal/storage"
	"github.com/dossier/kgexplorer/internal/ui"
)

type stubSource struct {
	ds  *graph.Dataset
	err error
}

func (s stubSource) Fetch(ctx context.Context, q source.Query) (*graph.Dataset, error) {
	return s.ds, s.err
}
func (stubSource) Name() string { return "stub" }
func (stubSource) Close() error { return nil }

func scenario() *graph.Dataset {
	return graph.NewDataset([]graph.Element{
		&graph.Node{ID: "d1", Label: "atopic eczema", Type: graph.CategoryDisease},
		&graph.Node{ID: "g1", Label: "TNFRSF4", Type: graph.CategoryGene, Properties: map[string]any{
			"name":  "TNFRSF4",
			"xrefs": []any{"HGNC:11918"},
		}},
		&graph.Node{ID: "p1", Label: "TNF signaling", Type: graph.CategoryPathway},
		&graph.Edge{ID: "e1", Source: "d1", Target: "p1", Label: "related_to"},
	})
}

func scenarioQuery() source.Query {
	return source.Query{TargetGene: "TNFRSF4", TargetDiseases: []string{"MONDO:0004980"}}
}

func TestRunExplore_Table(t *testing.T) {
	ui.SetColor(false)
	var buf bytes.Buffer
	err := runExplore(context.Background(), &buf, stubSource{ds: scenario()}, exploreOptions{
		Query:   scenarioQuery(),
		Show:    []string{"pathway"},
		Inspect: "g1",
	})
	if err != nil {
		t.Fatalf("runExplore failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"kgx: TNFRSF4/MONDO:0004980/DGPG",
		"3 of 3 nodes, 1 edges shown",
		"Layout: cose (1/4)",
		`name: "TNFRSF4"`,
		"xrefs:",
		`0: "HGNC:11918"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunExplore_LayoutSteps(t *testing.T) {
	ui.SetColor(false)
	var buf bytes.Buffer
	err := runExplore(context.Background(), &buf, stubSource{ds: scenario()}, exploreOptions{
		Query:       scenarioQuery(),
		LayoutSteps: 5,
	})
	if err != nil {
		t.Fatalf("runExplore failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Layout: breadthfirst (2/4)") {
		t.Errorf("expected breadthfirst after 5 steps:\n%s", buf.String())
	}
}

func TestRunExplore_JSON(t *testing.T) {
	var buf bytes.Buffer
	err := runExplore(context.Background(), &buf, stubSource{ds: scenario()}, exploreOptions{
		Query:   scenarioQuery(),
		Hide:    []string{"Gene"},
		Search:  "d1",
		Inspect: "d1",
		JSON:    true,
	})
	if err != nil {
		t.Fatalf("runExplore failed: %v", err)
	}

	var view explorer.View
	if err := json.Unmarshal(buf.Bytes(), &view); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(view.Visible) != 1 || view.Visible[0] != "d1" {
		t.Errorf("expected only d1 visible, got %v", view.Visible)
	}
	if view.Highlighted != "d1" || view.Canvas.Selected != "d1" {
		t.Errorf("expected d1 highlighted and selected, got %q / %q", view.Highlighted, view.Canvas.Selected)
	}
	if _, ok := view.Canvas.Positions["d1"]; !ok {
		t.Error("expected a position for d1 after the layout finished")
	}
	if !view.Inspector.Open || view.Inspector.ID != "d1" {
		t.Errorf("expected inspector on d1, got %+v", view.Inspector)
	}
}

func TestRunExplore_InspectEdge(t *testing.T) {
	var buf bytes.Buffer
	err := runExplore(context.Background(), &buf, stubSource{ds: scenario()}, exploreOptions{
		Query:   scenarioQuery(),
		Show:    []string{"Pathway"},
		Inspect: "e1",
		JSON:    true,
	})
	if err != nil {
		t.Fatalf("runExplore failed: %v", err)
	}
	var view explorer.View
	json.Unmarshal(buf.Bytes(), &view)
	if view.Inspector.Kind != graph.KindEdge {
		t.Errorf("expected an edge in the inspector, got %+v", view.Inspector)
	}
}

func TestRunExplore_Errors(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	err := runExplore(ctx, &buf, stubSource{ds: scenario()}, exploreOptions{Query: scenarioQuery(), Show: []string{"Drug"}})
	if !errors.Is(err, explorer.ErrUnknownCategory) {
		t.Errorf("expected ErrUnknownCategory, got %v", err)
	}

	err = runExplore(ctx, &buf, stubSource{ds: scenario()}, exploreOptions{Query: scenarioQuery(), Inspect: "p1"})
	if !errors.Is(err, explorer.ErrNotRendered) {
		t.Errorf("hidden p1 should not be inspectable, got %v", err)
	}

	upstream := errors.New("status 502: bad gateway")
	err = runExplore(ctx, &buf, stubSource{err: upstream}, exploreOptions{Query: scenarioQuery()})
	if !errors.Is(err, upstream) {
		t.Errorf("expected the fetch error to be wrapped, got %v", err)
	}

	err = runExplore(ctx, &buf, stubSource{ds: scenario()}, exploreOptions{Query: source.Query{TargetGene: "TNFRSF4"}})
	if err == nil {
		t.Error("expected an error for a query without diseases")
	}
}

func TestRunExplore_Empty(t *testing.T) {
	ui.SetColor(false)
	var buf bytes.Buffer
	if err := runExplore(context.Background(), &buf, stubSource{ds: graph.NewDataset(nil)}, exploreOptions{Query: scenarioQuery()}); err != nil {
		t.Fatalf("runExplore failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No graph found") {
		t.Errorf("expected the empty state:\n%s", buf.String())
	}
}

func TestListCache(t *testing.T) {
	ui.SetColor(false)
	store, err := storage.New(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	var buf bytes.Buffer
	if err := listCache(ctx, &buf, store); err != nil {
		t.Fatalf("listCache failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Cache is empty.") {
		t.Errorf("expected empty message:\n%s", buf.String())
	}

	q := scenarioQuery()
	q.Metapath = source.MetapathDGPG
	ds := scenario()
	entry := storage.Entry{
		Key:            q.CacheKey(),
		TargetGene:     q.TargetGene,
		TargetDiseases: q.TargetDiseases,
		Metapath:       string(q.Metapath),
		Fingerprint:    ds.FingerprintHex(),
		Nodes:          len(ds.Nodes),
		Edges:          len(ds.Edges),
	}
	if err := store.Put(ctx, entry, ds); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	buf.Reset()
	if err := listCache(ctx, &buf, store); err != nil {
		t.Fatalf("listCache failed: %v", err)
	}
	if !strings.Contains(buf.String(), q.CacheKey()) || !strings.Contains(buf.String(), "1 entries") {
		t.Errorf("expected the entry in the listing:\n%s", buf.String())
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{72 * time.Hour, "3d"},
	}
	for _, tt := range tests {
		if got := formatAge(tt.d); got != tt.want {
			t.Errorf("formatAge(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestWarmQueries(t *testing.T) {
	qs, err := warmQueries(" tnfrsf4 ", []string{"MONDO:0004980"}, nil)
	if err != nil {
		t.Fatalf("warmQueries failed: %v", err)
	}
	if len(qs) != len(source.Metapaths()) {
		t.Fatalf("expected one query per metapath, got %d", len(qs))
	}
	if qs[0].CacheKey() == qs[1].CacheKey() {
		t.Errorf("expected distinct cache keys, got %q twice", qs[0].CacheKey())
	}

	if _, err := warmQueries("TNFRSF4", []string{"MONDO:0004980"}, []string{"XYZ"}); !errors.Is(err, source.ErrUnknownMetapath) {
		t.Errorf("expected ErrUnknownMetapath, got %v", err)
	}
	if _, err := warmQueries("", []string{"MONDO:0004980"}, nil); err == nil {
		t.Error("expected an error without a gene")
	}
}

func TestShowConfig_MasksPassword(t *testing.T) {
	t.Setenv("KGX_NEO4J_PASSWORD", "hunter2")
	t.Setenv("KGX_PORT", "9999")

	cfg := config.Default()
	cfg.Neo4j.Password = "hunter2"

	var buf bytes.Buffer
	if err := showConfig(&buf, cfg); err != nil {
		t.Fatalf("showConfig failed: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("password leaked:\n%s", out)
	}
	if !strings.Contains(out, "KGX_PORT=9999") {
		t.Errorf("expected the env override listing:\n%s", out)
	}
}
