package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dossier/kgexplorer/internal/explorer"
	"github.com/dossier/kgexplorer/internal/graph"
	"github.com/dossier/kgexplorer/internal/source"
	"github.com/dossier/kgexplorer/internal/storage"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

type fakeSource struct {
	mu    sync.Mutex
	ds    *graph.Dataset
	err   error
	calls int
}

func (f *fakeSource) Fetch(ctx context.Context, q source.Query) (*graph.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.ds, nil
}

func (f *fakeSource) Name() string { return "fake" }
func (f *fakeSource) Close() error { return nil }

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func scenarioDataset() *graph.Dataset {
	return graph.NewDataset([]graph.Element{
		&graph.Node{ID: "d1", Label: "atopic eczema", Type: graph.CategoryDisease},
		&graph.Node{ID: "g1", Label: "TNFRSF4", Type: graph.CategoryGene, Properties: map[string]any{"name": "TNFRSF4"}},
		&graph.Node{ID: "p1", Label: "TNF signaling", Type: graph.CategoryPathway},
		&graph.Edge{ID: "e1", Source: "d1", Target: "p1", Label: "related_to"},
	})
}

const scenarioBody = `{"target_gene":"TNFRSF4","target_diseases":["MONDO:0004980"],"metapath":"DGPG"}`

type testServer struct {
	srv      *Server
	sessions *explorer.Manager
	handler  http.Handler
}

func newTestServer(t *testing.T, src source.Source, opts Options) *testServer {
	t.Helper()
	sse := NewSSEBroadcaster()
	m := explorer.NewManager(explorer.ManagerOptions{Sinks: sse.SessionSinks()})
	t.Cleanup(m.Close)

	srv := NewServer(m, src, sse, opts)
	srv.RegisterRoutes()
	return &testServer{srv: srv, sessions: m, handler: srv.Handler()}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

type viewResponse struct {
	Data struct {
		ID      string   `json:"id"`
		Empty   bool     `json:"empty"`
		Visible []string `json:"visible"`
		Nodes   []struct {
			ID string `json:"id"`
		} `json:"nodes"`
		Edges []struct {
			ID string `json:"id"`
		} `json:"edges"`
		Categories []struct {
			Category      string `json:"category"`
			Checked       bool   `json:"checked"`
			Indeterminate bool   `json:"indeterminate"`
		} `json:"categories"`
		Summary   string `json:"summary"`
		Inspector struct {
			Open bool   `json:"open"`
			ID   string `json:"id"`
		} `json:"inspector"`
	} `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
	if got := decode[errorResponse](t, w); got.Code != code {
		t.Errorf("expected code %s, got %s", code, got.Code)
	}
}

func createSession(t *testing.T, ts *testServer) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/sessions", scenarioBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: status %d: %s", w.Code, w.Body.String())
	}
	return decode[viewResponse](t, w).Data.ID
}

// ---------------------------------------------------------------------------
// Metadata
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	w := ts.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode[map[string]any](t, w)
	if body["status"] != "ok" || body["source"] != "fake" {
		t.Errorf("unexpected health body %v", body)
	}
}

func TestMetapaths(t *testing.T) {
	ts := newTestServer(t, &fakeSource{}, Options{})
	w := ts.do(t, http.MethodGet, "/api/metapaths", "")
	resp := decode[struct {
		Data struct {
			Metapaths []source.MetapathInfo `json:"metapaths"`
			Default   string                `json:"default"`
		} `json:"data"`
	}](t, w)
	if len(resp.Data.Metapaths) != 2 || resp.Data.Default != "DGPG" {
		t.Errorf("unexpected metapaths response %+v", resp.Data)
	}
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func TestCreateSession_DefaultView(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	w := ts.do(t, http.MethodPost, "/api/sessions", scenarioBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	view := decode[viewResponse](t, w).Data
	if view.ID == "" {
		t.Fatal("expected a session id")
	}
	if want := []string{"d1", "g1"}; !reflect.DeepEqual(view.Visible, want) {
		t.Errorf("expected visible %v, got %v", want, view.Visible)
	}
	if len(view.Edges) != 0 {
		t.Errorf("e1 needs p1, expected no edges, got %v", view.Edges)
	}
	if view.Summary != "2 of 3 nodes, 0 edges shown" {
		t.Errorf("unexpected summary %q", view.Summary)
	}
	if ts.sessions.Len() != 1 {
		t.Errorf("expected 1 live session, got %d", ts.sessions.Len())
	}
}

func TestCreateSession_FetchFailed(t *testing.T) {
	src := &fakeSource{err: fmt.Errorf("source/fake: %w: status 503", source.ErrFetch)}
	ts := newTestServer(t, src, Options{})
	w := ts.do(t, http.MethodPost, "/api/sessions", scenarioBody)
	expectError(t, w, http.StatusBadGateway, "FETCH_FAILED")
	if ts.sessions.Len() != 0 {
		t.Error("a failed fetch must not create a session")
	}
}

func TestCreateSession_GeneNotFound(t *testing.T) {
	ts := newTestServer(t, &fakeSource{err: source.ErrGeneNotFound}, Options{})
	w := ts.do(t, http.MethodPost, "/api/sessions", scenarioBody)
	expectError(t, w, http.StatusNotFound, "GENE_NOT_FOUND")
}

func TestCreateSession_InvalidQuery(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})

	tests := []struct {
		name string
		body string
		code string
	}{
		{"missing gene", `{"target_diseases":["MONDO:1"]}`, "INVALID_QUERY"},
		{"missing diseases", `{"target_gene":"TNFRSF4"}`, "INVALID_QUERY"},
		{"bad metapath", `{"target_gene":"TNFRSF4","target_diseases":["MONDO:1"],"metapath":"XYZ"}`, "UNKNOWN_METAPATH"},
		{"bad json", `{"target_gene":`, "INVALID_BODY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/sessions", tt.body)
			expectError(t, w, http.StatusBadRequest, tt.code)
		})
	}
}

func TestCreateSession_EmptyDataset(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: graph.NewDataset(nil)}, Options{})
	w := ts.do(t, http.MethodPost, "/api/sessions", scenarioBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for an empty dataset, got %d", w.Code)
	}
	if !decode[viewResponse](t, w).Data.Empty {
		t.Error("expected empty: true")
	}
}

func TestSession_NotFound(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/sessions/nope", ""},
		{http.MethodDelete, "/api/sessions/nope", ""},
		{http.MethodPost, "/api/sessions/nope/layout/next", ""},
		{http.MethodPut, "/api/sessions/nope/categories/Gene", `{"checked":true}`},
	} {
		w := ts.do(t, tc.method, tc.path, tc.body)
		expectError(t, w, http.StatusNotFound, "SESSION_NOT_FOUND")
	}
}

func TestListAndDeleteSession(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	id := createSession(t, ts)

	list := decode[struct {
		Data struct {
			Sessions []explorer.Summary `json:"sessions"`
		} `json:"data"`
	}](t, ts.do(t, http.MethodGet, "/api/sessions", ""))
	if len(list.Data.Sessions) != 1 || list.Data.Sessions[0].ID != id {
		t.Fatalf("unexpected listing %+v", list.Data.Sessions)
	}

	if w := ts.do(t, http.MethodDelete, "/api/sessions/"+id, ""); w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
	expectError(t, ts.do(t, http.MethodGet, "/api/sessions/"+id, ""), http.StatusNotFound, "SESSION_NOT_FOUND")
}

// ---------------------------------------------------------------------------
// Filtering
// ---------------------------------------------------------------------------

func TestToggleCategory_ShowsEdges(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	id := createSession(t, ts)

	w := ts.do(t, http.MethodPut, "/api/sessions/"+id+"/categories/pathway", `{"checked":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	view := decode[viewResponse](t, w).Data
	if len(view.Edges) != 1 || view.Edges[0].ID != "e1" {
		t.Errorf("expected [e1], got %v", view.Edges)
	}
	if view.Summary != "3 of 3 nodes, 1 edges shown" {
		t.Errorf("unexpected summary %q", view.Summary)
	}
}

func TestToggleCategory_Unknown(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	id := createSession(t, ts)
	w := ts.do(t, http.MethodPut, "/api/sessions/"+id+"/categories/Drug", `{"checked":true}`)
	expectError(t, w, http.StatusBadRequest, "UNKNOWN_CATEGORY")
}

func TestSetSelectionAndToggleNode(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	id := createSession(t, ts)

	w := ts.do(t, http.MethodPut, "/api/sessions/"+id+"/categories/Gene/selection", `{"ids":[]}`)
	if got := decode[viewResponse](t, w).Data.Visible; !reflect.DeepEqual(got, []string{"d1"}) {
		t.Errorf("expected [d1] after clearing genes, got %v", got)
	}

	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/nodes/p1/toggle", "")
	if got := decode[viewResponse](t, w).Data.Visible; !reflect.DeepEqual(got, []string{"d1", "p1"}) {
		t.Errorf("expected [d1 p1], got %v", got)
	}

	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/nodes/zz/toggle", "")
	expectError(t, w, http.StatusNotFound, "NODE_NOT_FOUND")
}

func TestNeighbours(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	id := createSession(t, ts)

	w := ts.do(t, http.MethodGet, "/api/sessions/"+id+"/nodes/p1/neighbours", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	nb := decode[struct {
		Data explorer.Neighbourhood `json:"data"`
	}](t, w).Data
	if nb.Center != "p1" || len(nb.Nodes) != 2 || len(nb.Edges) != 1 {
		t.Errorf("unexpected neighbourhood %+v", nb)
	}
	if !reflect.DeepEqual(nb.Hidden, []string{"p1"}) {
		t.Errorf("expected p1 hidden, got %v", nb.Hidden)
	}

	expectError(t, ts.do(t, http.MethodGet, "/api/sessions/"+id+"/nodes/zz/neighbours", ""), http.StatusNotFound, "NODE_NOT_FOUND")
}

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

func TestNextLayout_Cycles(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	id := createSession(t, ts)

	var last string
	for i := 0; i < 5; i++ {
		w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/layout/next", "")
		resp := decode[struct {
			Data struct {
				Layout struct {
					Name string `json:"name"`
				} `json:"layout"`
			} `json:"data"`
		}](t, w)
		last = resp.Data.Layout.Name
	}
	if last != "breadthfirst" {
		t.Errorf("five advances over four layouts should land on index 1, got %q", last)
	}
}

func TestSelectLayout_Unknown(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	id := createSession(t, ts)
	w := ts.do(t, http.MethodPut, "/api/sessions/"+id+"/layout", `{"name":"spiral"}`)
	expectError(t, w, http.StatusBadRequest, "UNKNOWN_LAYOUT")

	w = ts.do(t, http.MethodPut, "/api/sessions/"+id+"/layout", `{"name":"grid"}`)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for grid, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Selection
// ---------------------------------------------------------------------------

func TestTap(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	id := createSession(t, ts)
	tap := "/api/sessions/" + id + "/tap"

	w := ts.do(t, http.MethodPost, tap, `{"kind":"node","id":"g1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	insp := decode[struct {
		Data struct {
			Open bool   `json:"open"`
			ID   string `json:"id"`
		} `json:"data"`
	}](t, w).Data
	if !insp.Open || insp.ID != "g1" {
		t.Errorf("expected inspector open on g1, got %+v", insp)
	}

	expectError(t, ts.do(t, http.MethodPost, tap, `{"kind":"node","id":"p1"}`), http.StatusConflict, "NOT_RENDERED")
	expectError(t, ts.do(t, http.MethodPost, tap, `{"kind":"ring","id":"p1"}`), http.StatusBadRequest, "INVALID_TAP")

	if w := ts.do(t, http.MethodPost, tap, `{"kind":"background"}`); w.Code != http.StatusOK {
		t.Errorf("background tap: expected 200, got %d", w.Code)
	}
}

func TestInspector_CloseAndOpen(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	id := createSession(t, ts)
	base := "/api/sessions/" + id

	expectError(t, ts.do(t, http.MethodPost, base+"/inspector/open", ""), http.StatusConflict, "NO_SELECTION")

	ts.do(t, http.MethodPost, base+"/tap", `{"kind":"node","id":"d1"}`)
	ts.do(t, http.MethodPost, base+"/inspector/close", "")
	view := decode[viewResponse](t, ts.do(t, http.MethodGet, base, "")).Data
	if view.Inspector.Open {
		t.Error("inspector should be closed")
	}

	w := ts.do(t, http.MethodPost, base+"/inspector/open", "")
	if w.Code != http.StatusOK {
		t.Fatalf("reopen: expected 200, got %d", w.Code)
	}
	view = decode[viewResponse](t, ts.do(t, http.MethodGet, base, "")).Data
	if !view.Inspector.Open || view.Inspector.ID != "d1" {
		t.Errorf("expected inspector reopened on d1, got %+v", view.Inspector)
	}
}

func TestSearch(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	id := createSession(t, ts)
	base := "/api/sessions/" + id

	opts := decode[struct {
		Data struct {
			Options []graph.Option `json:"options"`
		} `json:"data"`
	}](t, ts.do(t, http.MethodGet, base+"/options", "")).Data.Options
	if len(opts) != 3 {
		t.Fatalf("expected 3 options, got %v", opts)
	}

	if w := ts.do(t, http.MethodPost, base+"/search", `{"node_id":"p1"}`); w.Code != http.StatusOK {
		t.Errorf("search p1: expected 200, got %d", w.Code)
	}
	expectError(t, ts.do(t, http.MethodPost, base+"/search", `{"node_id":"zz"}`), http.StatusNotFound, "NODE_NOT_FOUND")
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{RateLimit: 0.001, Burst: 1})
	if w := ts.do(t, http.MethodPost, "/api/sessions", scenarioBody); w.Code != http.StatusCreated {
		t.Fatalf("first request: expected 201, got %d", w.Code)
	}
	w := ts.do(t, http.MethodPost, "/api/sessions", scenarioBody)
	expectError(t, w, http.StatusTooManyRequests, "RATE_LIMITED")
	if w.Header().Get("Retry-After") != "1" {
		t.Error("expected Retry-After header")
	}

	// Reads are not limited.
	if w := ts.do(t, http.MethodGet, "/api/sessions", ""); w.Code != http.StatusOK {
		t.Errorf("list: expected 200, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

func newCachedServer(t *testing.T, upstream *fakeSource) *testServer {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("storage.New failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return newTestServer(t, source.NewCachedSource(upstream, store), Options{})
}

func TestCache_Disabled(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	expectError(t, ts.do(t, http.MethodGet, "/api/cache", ""), http.StatusServiceUnavailable, "CACHE_DISABLED")
}

func TestCache_ListAndDelete(t *testing.T) {
	upstream := &fakeSource{ds: scenarioDataset()}
	ts := newCachedServer(t, upstream)

	createSession(t, ts)
	createSession(t, ts)
	if upstream.Calls() != 1 {
		t.Errorf("second session should be served from cache, upstream called %d times", upstream.Calls())
	}

	list := decode[struct {
		Data struct {
			Entries []storage.Entry    `json:"entries"`
			Stats   storage.CacheStats `json:"stats"`
		} `json:"data"`
	}](t, ts.do(t, http.MethodGet, "/api/cache", ""))
	if len(list.Data.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(list.Data.Entries))
	}
	key := list.Data.Entries[0].Key
	if key != "DGPG:MONDO:0004980:tnfrsf4" {
		t.Errorf("unexpected cache key %q", key)
	}

	if w := ts.do(t, http.MethodDelete, "/api/cache/"+key, ""); w.Code != http.StatusOK {
		t.Fatalf("delete entry: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	expectError(t, ts.do(t, http.MethodDelete, "/api/cache/"+key, ""), http.StatusNotFound, "CACHE_MISS")
}

func TestCache_Clear(t *testing.T) {
	ts := newCachedServer(t, &fakeSource{ds: scenarioDataset()})
	createSession(t, ts)

	// Fresh entries survive an age-bounded clear.
	w := ts.do(t, http.MethodDelete, "/api/cache?older_than=7d", "")
	if got := decode[struct {
		Data struct {
			Deleted int `json:"deleted"`
		} `json:"data"`
	}](t, w).Data.Deleted; got != 0 {
		t.Errorf("expected nothing older than 7d, deleted %d", got)
	}

	w = ts.do(t, http.MethodDelete, "/api/cache", "")
	if got := decode[struct {
		Data struct {
			Deleted int `json:"deleted"`
		} `json:"data"`
	}](t, w).Data.Deleted; got != 1 {
		t.Errorf("expected 1 deleted, got %d", got)
	}

	expectError(t, ts.do(t, http.MethodDelete, "/api/cache?older_than=soon", ""), http.StatusBadRequest, "INVALID_AGE")
}

func TestRefresh_BypassesCache(t *testing.T) {
	upstream := &fakeSource{ds: scenarioDataset()}
	ts := newCachedServer(t, upstream)
	id := createSession(t, ts)

	upstream.mu.Lock()
	upstream.ds = graph.NewDataset([]graph.Element{
		&graph.Node{ID: "g9", Label: "OX40L", Type: graph.CategoryGene},
	})
	upstream.mu.Unlock()

	w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[viewResponse](t, w).Data.Visible; !reflect.DeepEqual(got, []string{"g9"}) {
		t.Errorf("expected refreshed dataset, visible %v", got)
	}
	if upstream.Calls() != 2 {
		t.Errorf("expected 2 upstream calls, got %d", upstream.Calls())
	}
}

func TestRefresh_FetchFailedKeepsSession(t *testing.T) {
	upstream := &fakeSource{ds: scenarioDataset()}
	ts := newTestServer(t, upstream, Options{})
	id := createSession(t, ts)

	upstream.mu.Lock()
	upstream.err = errors.New("connection refused")
	upstream.mu.Unlock()

	expectError(t, ts.do(t, http.MethodPost, "/api/sessions/"+id+"/refresh", ""), http.StatusBadGateway, "FETCH_FAILED")
	view := decode[viewResponse](t, ts.do(t, http.MethodGet, "/api/sessions/"+id, "")).Data
	if len(view.Nodes) != 2 {
		t.Errorf("session should keep its dataset, got %d nodes", len(view.Nodes))
	}
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"24h", 24 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"0d", 0, true},
		{"-1h", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := parseAge(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseAge(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseAge(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// CORS
// ---------------------------------------------------------------------------

func TestCORS(t *testing.T) {
	src := &fakeSource{ds: scenarioDataset()}
	sse := NewSSEBroadcaster()
	m := explorer.NewManager(explorer.ManagerOptions{})
	t.Cleanup(m.Close)
	srv := NewServer(m, src, sse, Options{Origins: []string{"https://kg.example.org"}})
	srv.RegisterRoutes()
	h := srv.Handler()

	for origin, allowed := range map[string]bool{
		"http://localhost:3000":    true,
		"https://kg.example.org":   true,
		"https://evil.example.com": false,
	} {
		r := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
		r.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusNoContent {
			t.Errorf("%s: expected 204, got %d", origin, w.Code)
		}
		got := w.Header().Get("Access-Control-Allow-Origin") == origin
		if got != allowed {
			t.Errorf("%s: allowed = %v, want %v", origin, got, allowed)
		}
	}
}

// ---------------------------------------------------------------------------
// SSE
// ---------------------------------------------------------------------------

func TestSessionEvents_AttachesCanvas(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	id := createSession(t, ts)
	sess, err := ts.sessions.Get(id)
	if err != nil {
		t.Fatal(err)
	}

	hs := httptest.NewServer(ts.handler)
	defer hs.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, hs.URL+"/api/sessions/"+id+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	events := readEvents(t, resp, 2)
	if events[0] != "view" || events[1] != string(explorer.FrameElements) {
		t.Errorf("expected view then elements, got %v", events)
	}
	if sess.Viewers() != 1 {
		t.Errorf("expected 1 viewer, got %d", sess.Viewers())
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for sess.Viewers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("viewer was not detached after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionEvents_EndsOnDelete(t *testing.T) {
	ts := newTestServer(t, &fakeSource{ds: scenarioDataset()}, Options{})
	id := createSession(t, ts)

	hs := httptest.NewServer(ts.handler)
	defer hs.Close()

	resp, err := http.Get(hs.URL + "/api/sessions/" + id + "/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	readEvents(t, resp, 2)

	if w := ts.do(t, http.MethodDelete, "/api/sessions/"+id, ""); w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}

	rest := make(chan []byte, 1)
	go func() {
		b, _ := io.ReadAll(resp.Body)
		rest <- b
	}()
	select {
	case b := <-rest:
		if !bytes.Contains(b, []byte("event: closed")) {
			t.Errorf("expected a closed event before the stream ended, got %q", b)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("stream stayed open after the session was deleted")
	}
}

func TestSessionEvents_NotFound(t *testing.T) {
	ts := newTestServer(t, &fakeSource{}, Options{})
	expectError(t, ts.do(t, http.MethodGet, "/api/sessions/nope/events", ""), http.StatusNotFound, "SESSION_NOT_FOUND")
}

func TestSSEBroadcaster_PublishIsScoped(t *testing.T) {
	b := NewSSEBroadcaster()
	a := b.Subscribe("c1", "s1")
	other := b.Subscribe("c2", "s2")

	b.Publish("s1", SSEEvent{Event: "elements"})
	select {
	case evt := <-a:
		if evt.Event != "elements" {
			t.Errorf("unexpected event %q", evt.Event)
		}
	default:
		t.Fatal("expected an event for s1")
	}
	select {
	case evt := <-other:
		t.Fatalf("s2 should not receive s1 events, got %q", evt.Event)
	default:
	}

	if b.TopicCount("s1") != 1 || b.ClientCount() != 2 {
		t.Errorf("unexpected counts: topic=%d total=%d", b.TopicCount("s1"), b.ClientCount())
	}
	b.Broadcast(SSEEvent{Event: "shutdown"})
	if evt := <-other; evt.Event != "shutdown" {
		t.Errorf("expected shutdown broadcast, got %q", evt.Event)
	}
	if evt := <-a; evt.Event != "shutdown" {
		t.Errorf("expected shutdown broadcast, got %q", evt.Event)
	}

	b.Unsubscribe("c1")
	if _, ok := <-a; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	b.Unsubscribe("c1")
}

// readEvents returns the names of the first n SSE events on resp.
func readEvents(t *testing.T, resp *http.Response, n int) []string {
	t.Helper()
	var names []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			line := sc.Bytes()
			if name, ok := bytes.CutPrefix(line, []byte("event: ")); ok {
				names = append(names, string(name))
				if len(names) == n {
					return
				}
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %d events", n)
	}
	return names
}
