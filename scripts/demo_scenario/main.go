// ---------------------------------------------------------------------------
// scripts/demo_scenario/main.go: Scripted explorer walkthrough
//
// Drives a running kgexplorer server through one session: load a graph,
// reveal pathways, cycle layouts, inspect a gene, search, and clean up.
// Open the session's event stream in a browser to watch it happen.
//
// Usage:
//   go run ./scripts/demo_scenario --server http://localhost:8080
//
// Flags:
//   --server   Base URL of the kgexplorer server (default: http://localhost:8080)
//   --gene     Target gene                       (default: TNFRSF4)
//   --disease  Comma-separated disease ids       (default: MONDO:0004980)
//   --pause    Delay between phases               (default: 3s)
// ---------------------------------------------------------------------------
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dossier/kgexplorer/internal/explorer"
	"github.com/dossier/kgexplorer/internal/graph"
	"github.com/dossier/kgexplorer/internal/source"
	"github.com/dossier/kgexplorer/internal/ui"
)

const phases = 5

func header(phase int, msg string) {
	bar := strings.Repeat("━", 60)
	fmt.Println()
	ui.Subtle.Println(bar)
	fmt.Printf("  %s  %s\n", ui.Info.Sprintf("Phase %d/%d", phase, phases), msg)
	ui.Subtle.Println(bar)
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

type client struct {
	base string
	http *http.Client
}

// call sends body (if any) as JSON and decodes the {"data": ...} envelope
// into out.
func (c *client) call(method, path string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s returned %d %s: %s", method, path, resp.StatusCode, e.Code, e.Error)
	}
	if out == nil {
		return nil
	}
	env := struct {
		Data interface{} `json:"data"`
	}{Data: out}
	return json.NewDecoder(resp.Body).Decode(&env)
}

func printCategories(v *explorer.View) {
	for _, c := range v.Categories {
		fmt.Printf("    %s %-8s %d/%d\n", ui.CheckBox(c.Checked, c.Indeterminate), c.Category, c.Visible, c.Total)
	}
	fmt.Printf("    %s\n", ui.Subtle.Sprint(v.Summary))
}

func fail(err error) {
	ui.Error(os.Stderr, err)
	os.Exit(1)
}

// ---------------------------------------------------------------------------
// main
// ---------------------------------------------------------------------------

func main() {
	serverFlag := flag.String("server", "http://localhost:8080", "kgexplorer server base URL")
	geneFlag := flag.String("gene", "TNFRSF4", "Target gene")
	diseaseFlag := flag.String("disease", "MONDO:0004980", "Comma-separated disease ids")
	pause := flag.Duration("pause", 3*time.Second, "Delay between phases")
	flag.Parse()

	c := &client{base: strings.TrimRight(*serverFlag, "/"), http: &http.Client{Timeout: 2 * time.Minute}}
	q := source.Query{TargetGene: *geneFlag, TargetDiseases: strings.Split(*diseaseFlag, ",")}

	ui.Banner("explorer walkthrough")

	// ---- Phase 1: load ----------------------------------------------------
	header(1, "Load "+q.TargetGene)
	var view explorer.View
	if err := c.call(http.MethodPost, "/api/sessions", q, &view); err != nil {
		fail(err)
	}
	if view.Empty {
		ui.Warn.Println("  No graph found for this query.")
		return
	}
	fmt.Printf("  Session %s\n", ui.Brand.Sprint(view.ID))
	fmt.Printf("  Stream:  %s/api/sessions/%s/events\n", c.base, view.ID)
	printCategories(&view)
	time.Sleep(*pause)

	base := "/api/sessions/" + view.ID

	// ---- Phase 2: reveal pathways ----------------------------------------
	header(2, "Reveal pathways")
	if err := c.call(http.MethodPut, base+"/categories/Pathway", map[string]bool{"checked": true}, &view); err != nil {
		fail(err)
	}
	printCategories(&view)
	time.Sleep(*pause)

	// ---- Phase 3: cycle layouts ------------------------------------------
	header(3, "Cycle layouts")
	for range view.Layout.Names {
		var resp struct {
			Layout struct {
				Name string `json:"name"`
			} `json:"layout"`
		}
		if err := c.call(http.MethodPost, base+"/layout/next", nil, &resp); err != nil {
			fail(err)
		}
		fmt.Printf("  %s %s\n", ui.StatusIcon(true), resp.Layout.Name)
		time.Sleep(*pause / 2)
	}

	// ---- Phase 4: inspect a gene -----------------------------------------
	header(4, "Inspect a gene")
	var gene *graph.Node
	for _, n := range view.Nodes {
		if n.Type == graph.CategoryGene {
			gene = n
			break
		}
	}
	if gene == nil {
		ui.Warn.Println("  No gene on the canvas.")
	} else {
		var insp explorer.InspectorView
		if err := c.call(http.MethodPost, base+"/tap", map[string]string{"kind": "node", "id": gene.ID}, &insp); err != nil {
			fail(err)
		}
		fmt.Printf("  %s %s\n", ui.Category(graph.CategoryGene), insp.Label)
		for _, p := range insp.Tree {
			fmt.Printf("    %s: %v\n", p.Key, p.Value)
		}
	}
	time.Sleep(*pause)

	// ---- Phase 5: search, then clean up ----------------------------------
	header(5, "Search and close")
	var opts struct {
		Options []graph.Option `json:"options"`
	}
	if err := c.call(http.MethodGet, base+"/options", nil, &opts); err != nil {
		fail(err)
	}
	if len(opts.Options) > 0 {
		last := opts.Options[len(opts.Options)-1]
		if err := c.call(http.MethodPost, base+"/search", map[string]string{"node_id": last.ID}, nil); err != nil {
			fail(err)
		}
		fmt.Printf("  Highlighted %s\n", ui.Select.Sprint(last.Label))
	}
	time.Sleep(*pause)
	if err := c.call(http.MethodDelete, base, nil, nil); err != nil {
		fail(err)
	}

	fmt.Printf("\n  %s\n\n", ui.Good.Sprint("✓ Walkthrough complete."))
}
