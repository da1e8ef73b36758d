// Package source fetches graph datasets for a query from an upstream
// backend: the HTTP graph endpoint, a Neo4j knowledge graph, or either one
// behind the SQLite response cache.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dossier/kgexplorer/internal/graph"
)

// ErrFetch marks failures reaching or reading the upstream backend.
var ErrFetch = errors.New("fetch failed")

// ---------------------------------------------------------------------------
// Source kinds
// ---------------------------------------------------------------------------

// Kind identifies a supported backend.
type Kind string

const (
	KindHTTP  Kind = "http"
	KindNeo4j Kind = "neo4j"
)

// ---------------------------------------------------------------------------
// Source interface
// ---------------------------------------------------------------------------

// Source produces the dataset for a query.
type Source interface {
	// Fetch returns the dataset for q. Upstream failures wrap ErrFetch.
	Fetch(ctx context.Context, q Query) (*graph.Dataset, error)

	// Name returns a short name for logs, e.g. "http" or "neo4j".
	Name() string

	// Close releases connections held by the source.
	Close() error
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config holds everything New accepts.
type Config struct {
	Kind Kind `json:"kind"`

	// HTTP backend
	BaseURL   string        `json:"base_url,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	RateLimit float64       `json:"rate_limit,omitempty"` // requests per second, 0 = unlimited
	Burst     int           `json:"burst,omitempty"`

	// Neo4j
	URI      string `json:"uri,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"-"`
	Database string `json:"database,omitempty"`
}

// Validate checks that required fields are set.
func (c Config) Validate() error {
	switch c.Kind {
	case KindHTTP:
		if c.BaseURL == "" {
			return fmt.Errorf("source: http backend requires base_url")
		}
	case KindNeo4j:
		if c.URI == "" {
			return fmt.Errorf("source: neo4j backend requires uri")
		}
	default:
		return fmt.Errorf("source: unknown backend kind %q", c.Kind)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Factory
// ---------------------------------------------------------------------------

// New creates a concrete Source from configuration.
func New(ctx context.Context, cfg Config) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindHTTP:
		return NewHTTPSource(cfg), nil
	case KindNeo4j:
		return NewNeo4jSource(ctx, cfg)
	default:
		return nil, fmt.Errorf("source: unsupported backend %q", cfg.Kind)
	}
}

// fetchError wraps err with ErrFetch and the source name.
func fetchError(name string, err error) error {
	return fmt.Errorf("source/%s: %w: %w", name, ErrFetch, err)
}
