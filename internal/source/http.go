package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dossier/kgexplorer/internal/graph"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	fetchGraphPath     = "/fetch-graph/"
)

// HTTPSource posts queries to the graph backend's fetch endpoint.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPSource creates a source for cfg.BaseURL. A zero RateLimit leaves
// requests unthrottled.
func NewHTTPSource(cfg Config) *HTTPSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &HTTPSource{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// Name implements Source.
func (h *HTTPSource) Name() string { return "http" }

// Close implements Source.
func (h *HTTPSource) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}

// fetchRequest is the JSON body for the fetch endpoint.
type fetchRequest struct {
	TargetGene     string   `json:"target_gene"`
	TargetDiseases []string `json:"target_diseases"`
	Metapath       Metapath `json:"metapath"`
}

// Fetch implements Source.
func (h *HTTPSource) Fetch(ctx context.Context, q Query) (*graph.Dataset, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fetchError(h.Name(), fmt.Errorf("rate limit: %w", err))
	}

	body, err := h.doJSON(ctx, fetchGraphPath, fetchRequest{
		TargetGene:     q.TargetGene,
		TargetDiseases: q.TargetDiseases,
		Metapath:       q.Metapath,
	})
	if err != nil {
		return nil, fetchError(h.Name(), err)
	}

	ds, rep, err := graph.DecodeDataset(body)
	if err != nil {
		return nil, fetchError(h.Name(), err)
	}
	if rep.Dropped() > 0 {
		slog.Debug("dropped malformed elements",
			"source", h.Name(),
			"query", q.String(),
			"missing_id", rep.MissingID,
			"dangling", rep.DanglingEnd,
			"duplicate", rep.DuplicateNode,
		)
	}
	return ds, nil
}

// doJSON posts reqBody to path and returns the raw response body.
func (h *HTTPSource) doJSON(ctx context.Context, path string, reqBody interface{}) ([]byte, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
