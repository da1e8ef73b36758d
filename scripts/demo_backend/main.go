// ===========================================================================
// scripts/demo_backend: Synthetic graph endpoint for demos
//
// Serves POST /fetch-graph/ with a deterministic knowledge graph per query,
// so kgexplorer can run without the real graph service.
//
// Usage:
//   go run ./scripts/demo_backend --addr :8000 --seed 42
//   go run ./cmd/server --backend-url http://localhost:8000
//
// Add --fail-rate 0.2 --latency 800ms to rehearse the empty-state and
// timeout paths.
// ===========================================================================
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dossier/kgexplorer/internal/graph"
	"github.com/dossier/kgexplorer/internal/source"
)

// ---------------------------------------------------------------------------
// Flags
// ---------------------------------------------------------------------------

var (
	addr     = flag.String("addr", ":8000", "Listen address")
	seed     = flag.Int64("seed", 42, "Random seed for reproducibility")
	latency  = flag.Duration("latency", 0, "Artificial delay per request")
	failRate = flag.Float64("fail-rate", 0, "Fraction of requests answered with 503")
)

// ---------------------------------------------------------------------------
// Vocabulary
// ---------------------------------------------------------------------------

var geneSymbols = []string{
	"TNFSF4", "TRAF2", "TRAF5", "NFKB1", "RELA", "IL13", "IL4R", "STAT6",
	"FLG", "TSLP", "IL33", "CD28", "ICOS", "CTLA4", "IL2RA", "JAK1",
	"TYK2", "GATA3", "RORC", "IL17A", "IL22", "CCR4", "MAP3K14", "IKBKB",
}

var pathwayNames = []string{
	"TNFR2 non-canonical NF-kB pathway",
	"TNF receptor superfamily members mediating non-canonical NF-kB pathway",
	"Interleukin-4 and Interleukin-13 signaling",
	"Costimulation by the CD28 family",
	"Signaling by Interleukins",
	"Cytokine Signaling in Immune system",
	"TRAF6 mediated NF-kB activation",
	"RUNX1 and FOXP3 control the development of regulatory T lymphocytes",
}

var diseaseNames = map[string]string{
	"MONDO:0004980": "atopic eczema",
	"MONDO:0004979": "asthma",
	"MONDO:0005011": "Crohn disease",
	"MONDO:0007915": "systemic lupus erythematosus",
}

// ---------------------------------------------------------------------------
// Generator
// ---------------------------------------------------------------------------

// generator builds one query's graph from a query-scoped random stream.
type generator struct {
	rng      *rand.Rand
	elements []graph.Element
	nextID   int
}

func newGenerator(q source.Query, seed int64) *generator {
	h := xxhash.Sum64String(q.CacheKey())
	return &generator{rng: rand.New(rand.NewSource(seed ^ int64(h)))}
}

func (g *generator) node(cat graph.Category, label string, props map[string]any) string {
	g.nextID++
	id := fmt.Sprintf("4:demo:%d", g.nextID)
	if props == nil {
		props = map[string]any{}
	}
	props["name"] = label
	g.elements = append(g.elements, &graph.Node{
		ID:         id,
		Label:      label,
		Type:       cat,
		Labels:     []string{graph.BiolinkLabel(cat)},
		Properties: props,
	})
	return id
}

// edge leaves the id empty; the client synthesizes one.
func (g *generator) edge(src, tgt, label string) {
	g.elements = append(g.elements, &graph.Edge{
		Source:     src,
		Target:     tgt,
		Label:      label,
		Properties: map[string]any{"knowledge_source": "infores:demo"},
	})
}

func (g *generator) gene(symbol string) string {
	return g.node(graph.CategoryGene, symbol, map[string]any{
		"id":    fmt.Sprintf("NCBIGene:%d", 1000+g.rng.Intn(90000)),
		"xrefs": []any{fmt.Sprintf("HGNC:%d", 1000+g.rng.Intn(20000))},
	})
}

func (g *generator) pick(pool []string, n int) []string {
	idx := g.rng.Perm(len(pool))
	if n > len(idx) {
		n = len(idx)
	}
	out := make([]string, n)
	for i := range out {
		out[i] = pool[idx[i]]
	}
	return out
}

func (g *generator) diseases(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		name := diseaseNames[id]
		if name == "" {
			name = strings.ToLower(id)
		}
		out = append(out, g.node(graph.CategoryDisease, name, map[string]any{"id": id}))
	}
	return out
}

// dgpg: Disease - Gene - Pathway - Gene(target).
func (g *generator) dgpg(q source.Query) {
	target := g.gene(q.TargetGene)
	diseases := g.diseases(q.TargetDiseases)

	var pathways []string
	for i, name := range g.pick(pathwayNames, 3+g.rng.Intn(3)) {
		p := g.node(graph.CategoryPathway, name, map[string]any{"id": fmt.Sprintf("REACT:R-HSA-%d", 100000+i*7919)})
		pathways = append(pathways, p)
		g.edge(target, p, "biolink:participates_in")
	}
	for _, sym := range g.pick(geneSymbols, 5+g.rng.Intn(6)) {
		gene := g.gene(sym)
		g.edge(gene, pathways[g.rng.Intn(len(pathways))], "biolink:participates_in")
		g.edge(gene, diseases[g.rng.Intn(len(diseases))], "biolink:gene_associated_with_condition")
	}
}

// gggd: Gene(target) - Gene - Gene - Disease.
func (g *generator) gggd(q source.Query) {
	target := g.gene(q.TargetGene)
	diseases := g.diseases(q.TargetDiseases)

	symbols := g.pick(geneSymbols, 6+g.rng.Intn(6))
	half := len(symbols) / 2
	var linked []string
	for _, sym := range symbols[:half] {
		gene := g.gene(sym)
		linked = append(linked, gene)
		g.edge(target, gene, "biolink:interacts_with")
	}
	for _, sym := range symbols[half:] {
		gene := g.gene(sym)
		g.edge(linked[g.rng.Intn(len(linked))], gene, "biolink:physically_interacts_with")
		g.edge(gene, diseases[g.rng.Intn(len(diseases))], "biolink:target_for")
	}
}

// generate returns the wire payload for q.
func generate(q source.Query, seed int64) graph.Payload {
	g := newGenerator(q, seed)
	switch q.Metapath {
	case source.MetapathGGGD:
		g.gggd(q)
	default:
		g.dgpg(q)
	}
	return graph.EncodeElements(g.elements)
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

func handleFetchGraph(seed int64, latency time.Duration, failRate float64) http.HandlerFunc {
	var mu sync.Mutex
	failRng := rand.New(rand.NewSource(seed))

	return func(w http.ResponseWriter, r *http.Request) {
		var req source.Query
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"detail":"invalid JSON body"}`, http.StatusUnprocessableEntity)
			return
		}
		q, err := req.Normalize()
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"detail":%q}`, err.Error()), http.StatusUnprocessableEntity)
			return
		}

		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-r.Context().Done():
				return
			}
		}

		mu.Lock()
		fail := failRng.Float64() < failRate
		mu.Unlock()
		if fail {
			slog.Warn("injected failure", "query", q.String())
			http.Error(w, `{"detail":"graph service unavailable"}`, http.StatusServiceUnavailable)
			return
		}

		payload := generate(q, seed)
		slog.Info("graph served", "query", q.String(), "elements", len(payload.Elements))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	}
}

func main() {
	flag.Parse()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /fetch-graph/", handleFetchGraph(*seed, *latency, *failRate))

	fmt.Printf("demo graph backend on %s (seed %d, fail rate %.2f)\n", *addr, *seed, *failRate)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatalf("demo backend: %v", err)
	}
}
