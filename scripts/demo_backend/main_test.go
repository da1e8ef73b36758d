package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/dossier/kgexplorer/internal/graph"
	"github.com/dossier/kgexplorer/internal/source"
)

func demoQuery(mp source.Metapath) source.Query {
	return source.Query{TargetGene: "TNFRSF4", TargetDiseases: []string{"MONDO:0004980", "MONDO:0004979"}, Metapath: mp}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := generate(demoQuery(source.MetapathDGPG), 42)
	b := generate(demoQuery(source.MetapathDGPG), 42)
	if !reflect.DeepEqual(a, b) {
		t.Error("same query and seed should produce the same graph")
	}
	c := generate(demoQuery(source.MetapathGGGD), 42)
	if reflect.DeepEqual(a, c) {
		t.Error("different metapaths should produce different graphs")
	}
}

func TestGenerate_Decodes(t *testing.T) {
	for _, mp := range []source.Metapath{source.MetapathDGPG, source.MetapathGGGD} {
		data, err := json.Marshal(generate(demoQuery(mp), 7))
		if err != nil {
			t.Fatal(err)
		}
		ds, rep, err := graph.DecodeDataset(data)
		if err != nil {
			t.Fatalf("%s: decode failed: %v", mp, err)
		}
		if rep.Dropped() != 0 {
			t.Errorf("%s: expected no dropped elements, got %+v", mp, rep)
		}
		if rep.SynthesizedIDs != len(ds.Edges) {
			t.Errorf("%s: every edge id should be synthesized, got %d of %d", mp, rep.SynthesizedIDs, len(ds.Edges))
		}
		b := graph.Partition(ds)
		if b.Len(graph.CategoryDisease) != 2 {
			t.Errorf("%s: expected 2 diseases, got %d", mp, b.Len(graph.CategoryDisease))
		}
		for _, e := range ds.Edges {
			if _, ok := ds.Node(e.Source); !ok {
				t.Errorf("%s: edge %s has unknown source", mp, e.ID)
			}
			if _, ok := ds.Node(e.Target); !ok {
				t.Errorf("%s: edge %s has unknown target", mp, e.ID)
			}
		}
	}
}

func TestHandleFetchGraph(t *testing.T) {
	h := handleFetchGraph(42, 0, 0)

	r := httptest.NewRequest(http.MethodPost, "/fetch-graph/",
		strings.NewReader(`{"target_gene":"TNFRSF4","target_diseases":["MONDO:0004980"]}`))
	w := httptest.NewRecorder()
	h(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, _, err := graph.DecodeDataset(w.Body.Bytes()); err != nil {
		t.Errorf("response should decode: %v", err)
	}

	r = httptest.NewRequest(http.MethodPost, "/fetch-graph/", strings.NewReader(`{"target_gene":""}`))
	w = httptest.NewRecorder()
	h(w, r)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for an invalid query, got %d", w.Code)
	}
}

func TestHandleFetchGraph_InjectedFailure(t *testing.T) {
	h := handleFetchGraph(42, 0, 1)
	r := httptest.NewRequest(http.MethodPost, "/fetch-graph/",
		strings.NewReader(`{"target_gene":"TNFRSF4","target_diseases":["MONDO:0004980"]}`))
	w := httptest.NewRecorder()
	h(w, r)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with fail rate 1, got %d", w.Code)
	}
}
