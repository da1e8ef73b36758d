package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dossier/kgexplorer/internal/graph"
	"github.com/dossier/kgexplorer/internal/storage"
)

// CachedSource serves queries from the response cache and falls back to an
// upstream source on a miss, storing what it fetched.
type CachedSource struct {
	upstream Source
	store    *storage.Storage
}

// NewCachedSource wraps upstream with store.
func NewCachedSource(upstream Source, store *storage.Storage) *CachedSource {
	return &CachedSource{upstream: upstream, store: store}
}

// Name implements Source.
func (c *CachedSource) Name() string { return "cached:" + c.upstream.Name() }

// Close implements Source. The store is owned by the caller.
func (c *CachedSource) Close() error { return c.upstream.Close() }

// Store returns the underlying cache.
func (c *CachedSource) Store() *storage.Storage { return c.store }

// Fetch implements Source. Cache read and write failures are logged and
// otherwise ignored; only upstream failures are returned.
func (c *CachedSource) Fetch(ctx context.Context, q Query) (*graph.Dataset, error) {
	ds, _, err := c.fetch(ctx, q)
	return ds, err
}

// fetch is Fetch that also reports whether the result came from the cache.
func (c *CachedSource) fetch(ctx context.Context, q Query) (*graph.Dataset, bool, error) {
	key := q.CacheKey()
	e, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		slog.Debug("cache hit", "key", key, "hits", e.Hits)
		return e.Dataset, true, nil
	case errors.Is(err, storage.ErrCacheMiss):
		slog.Debug("cache miss", "key", key)
	default:
		slog.Warn("cache read failed", "key", key, "error", err)
	}
	ds, err := c.FetchFresh(ctx, q)
	return ds, false, err
}

// FetchFresh skips the cache lookup, fetches upstream and overwrites the
// entry.
func (c *CachedSource) FetchFresh(ctx context.Context, q Query) (*graph.Dataset, error) {
	ds, err := c.upstream.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	c.put(ctx, q, ds)
	return ds, nil
}

func (c *CachedSource) put(ctx context.Context, q Query, ds *graph.Dataset) {
	entry := storage.Entry{
		Key:            q.CacheKey(),
		TargetGene:     q.TargetGene,
		TargetDiseases: q.TargetDiseases,
		Metapath:       string(q.Metapath),
	}
	if err := c.store.Put(ctx, entry, ds); err != nil {
		slog.Warn("cache write failed", "key", entry.Key, "error", err)
	}
}

// ---------------------------------------------------------------------------
// Cache management
// ---------------------------------------------------------------------------

// RegenReport summarises a Regenerate or Warm run. Cached counts the
// queries Warm found already stored; they are not in Refreshed.
type RegenReport struct {
	Refreshed int               `json:"refreshed"`
	Cached    int               `json:"cached"`
	Failed    map[string]string `json:"failed,omitempty"`
	Elapsed   time.Duration     `json:"elapsed"`
}

// Regenerate refetches every cached entry with at most parallel fetches in
// flight. Failed entries keep their old payload and are listed in the
// report.
func (c *CachedSource) Regenerate(ctx context.Context, parallel int) (*RegenReport, error) {
	entries, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("source: regenerate: %w", err)
	}
	queries := make([]Query, 0, len(entries))
	for _, e := range entries {
		queries = append(queries, Query{
			TargetGene:     e.TargetGene,
			TargetDiseases: e.TargetDiseases,
			Metapath:       Metapath(e.Metapath),
		})
	}
	return c.refresh(ctx, queries, parallel, true)
}

// Warm fetches every query that is not cached yet.
func (c *CachedSource) Warm(ctx context.Context, queries []Query, parallel int) (*RegenReport, error) {
	return c.refresh(ctx, queries, parallel, false)
}

func (c *CachedSource) refresh(ctx context.Context, queries []Query, parallel int, force bool) (*RegenReport, error) {
	start := time.Now()
	if parallel <= 0 {
		parallel = 1
	}

	var mu sync.Mutex
	report := &RegenReport{Failed: make(map[string]string)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, q := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			key := q.CacheKey()
			var (
				hit bool
				err error
			)
			if force {
				_, err = c.FetchFresh(gctx, q)
			} else {
				_, hit, err = c.fetch(gctx, q)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[key] = err.Error()
				slog.Warn("cache refresh failed", "key", key, "error", err)
				return nil
			}
			if hit {
				report.Cached++
				return nil
			}
			report.Refreshed++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("source: refresh: %w", err)
	}
	report.Elapsed = time.Since(start)
	slog.Info("cache refresh complete",
		"refreshed", report.Refreshed,
		"cached", report.Cached,
		"failed", len(report.Failed),
		"elapsed", report.Elapsed,
	)
	return report, nil
}
