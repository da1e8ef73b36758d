// Package storage persists fetched graph payloads in SQLite so repeated
// queries skip the upstream backend.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dossier/kgexplorer/internal/graph"
)

// ErrCacheMiss is returned by Get when no entry exists for a key.
var ErrCacheMiss = errors.New("storage: cache miss")

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// Entry is one cached query result.
type Entry struct {
	Key            string    `json:"key"`
	TargetGene     string    `json:"target_gene"`
	TargetDiseases []string  `json:"target_diseases"`
	Metapath       string    `json:"metapath"`
	Fingerprint    string    `json:"fingerprint"`
	Nodes          int       `json:"nodes"`
	Edges          int       `json:"edges"`
	Hits           int       `json:"hits"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessed   time.Time `json:"last_accessed"`

	// Dataset is only populated by Get.
	Dataset *graph.Dataset `json:"-"`
}

// CacheStats summarises the cache table.
type CacheStats struct {
	Entries      int       `json:"entries"`
	TotalNodes   int       `json:"total_nodes"`
	TotalEdges   int       `json:"total_edges"`
	TotalHits    int       `json:"total_hits"`
	PayloadBytes int64     `json:"payload_bytes"`
	Oldest       time.Time `json:"oldest,omitempty"`
	Newest       time.Time `json:"newest,omitempty"`
}

// ---------------------------------------------------------------------------
// Storage
// ---------------------------------------------------------------------------

// Storage is a thread-safe wrapper around the SQLite response cache.
type Storage struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// ============================= LIFECYCLE ==================================

// New opens (or creates) the SQLite database at dbPath, applies the
// PRAGMAs, runs any pending migrations and returns a ready *Storage.
func New(dbPath string) (*Storage, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open db %q: %w", dbPath, err)
	}

	// Only one writer at a time for SQLite.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-16000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("storage: set pragma %q: %w", p, err)
		}
	}

	s := &Storage{db: conn, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// ============================ MIGRATIONS ==================================

// migrate ensures the schema_migrations table exists, then applies every
// unapplied Migration in order.
func (s *Storage) migrate() error {
	const createMigTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		description TEXT
	)`
	if _, err := s.db.Exec(createMigTable); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range Migrations {
		var exists int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration v%d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}
		if _, err := s.db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration v%d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := s.db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

// Version returns the highest applied migration.
func (s *Storage) Version(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("storage: schema version: %w", err)
	}
	return int(v.Int64), nil
}

// ========================== CACHE OPERATIONS ==============================

const entryColumns = `cache_key, target_gene, target_diseases, metapath, fingerprint,
	node_count, edge_count, hit_count, created_at, last_accessed`

// Put stores ds under e.Key, replacing any previous entry. The counts,
// fingerprint and timestamps are taken from ds and the clock.
func (s *Storage) Put(ctx context.Context, e Entry, ds *graph.Dataset) error {
	if e.Key == "" {
		return errors.New("storage: put: empty cache key")
	}
	if ds == nil {
		ds = graph.NewDataset(nil)
	}
	payload, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("storage: marshal payload %q: %w", e.Key, err)
	}
	diseases, err := json.Marshal(nonNil(e.TargetDiseases))
	if err != nil {
		return fmt.Errorf("storage: marshal diseases %q: %w", e.Key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixNano()
	const q = `INSERT OR REPLACE INTO graph_cache
		(cache_key, target_gene, target_diseases, metapath, payload, fingerprint,
		 node_count, edge_count, created_at, last_accessed, hit_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`
	_, err = s.db.ExecContext(ctx, q,
		e.Key, e.TargetGene, string(diseases), e.Metapath, payload, ds.FingerprintHex(),
		len(ds.Nodes), len(ds.Edges), now, now,
	)
	if err != nil {
		return fmt.Errorf("storage: put %q: %w", e.Key, err)
	}
	return nil
}

// Get loads the entry for key with its decoded Dataset and records the hit.
// A missing key returns ErrCacheMiss.
func (s *Storage) Get(ctx context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+`, payload FROM graph_cache WHERE cache_key = ?`, key)
	var payload []byte
	e, err := scanEntry(row, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %q: %w", key, err)
	}

	ds, _, err := graph.DecodeDataset(payload)
	if err != nil {
		return nil, fmt.Errorf("storage: decode payload %q: %w", key, err)
	}
	e.Dataset = ds

	now := s.now()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE graph_cache SET hit_count = hit_count + 1, last_accessed = ? WHERE cache_key = ?`,
		now.UnixNano(), key,
	); err != nil {
		return nil, fmt.Errorf("storage: record hit %q: %w", key, err)
	}
	e.Hits++
	e.LastAccessed = now
	return e, nil
}

// List returns every entry without payloads, newest first.
func (s *Storage) List(ctx context.Context) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM graph_cache ORDER BY created_at DESC, cache_key`)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows, nil)
		if err != nil {
			return nil, fmt.Errorf("storage: scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes the entry for key. A missing key returns ErrCacheMiss.
func (s *Storage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM graph_cache WHERE cache_key = ?`, key)
	if err != nil {
		return fmt.Errorf("storage: delete %q: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCacheMiss
	}
	return nil
}

// DeleteOlderThan removes entries created more than age ago and returns how
// many went. A zero age clears the whole cache.
func (s *Storage) DeleteOlderThan(ctx context.Context, age time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		res sql.Result
		err error
	)
	if age <= 0 {
		res, err = s.db.ExecContext(ctx, `DELETE FROM graph_cache`)
	} else {
		cutoff := s.now().Add(-age).UnixNano()
		res, err = s.db.ExecContext(ctx, `DELETE FROM graph_cache WHERE created_at < ?`, cutoff)
	}
	if err != nil {
		return 0, fmt.Errorf("storage: delete older than %s: %w", age, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("storage: rows affected: %w", err)
	}
	return int(n), nil
}

// Stats summarises the cache.
func (s *Storage) Stats(ctx context.Context) (*CacheStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const q = `SELECT COUNT(*),
		COALESCE(SUM(node_count), 0), COALESCE(SUM(edge_count), 0),
		COALESCE(SUM(hit_count), 0), COALESCE(SUM(LENGTH(payload)), 0),
		COALESCE(MIN(created_at), 0), COALESCE(MAX(created_at), 0)
		FROM graph_cache`
	stats := &CacheStats{}
	var oldest, newest int64
	if err := s.db.QueryRowContext(ctx, q).Scan(
		&stats.Entries, &stats.TotalNodes, &stats.TotalEdges,
		&stats.TotalHits, &stats.PayloadBytes, &oldest, &newest,
	); err != nil {
		return nil, fmt.Errorf("storage: stats: %w", err)
	}
	if stats.Entries > 0 {
		stats.Oldest = fromNanos(oldest)
		stats.Newest = fromNanos(newest)
	}
	return stats, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry reads entryColumns, plus the payload when payload is non-nil.
func scanEntry(row rowScanner, payload *[]byte) (*Entry, error) {
	e := &Entry{}
	var diseases string
	var created, accessed int64
	dest := []any{
		&e.Key, &e.TargetGene, &diseases, &e.Metapath, &e.Fingerprint,
		&e.Nodes, &e.Edges, &e.Hits, &created, &accessed,
	}
	if payload != nil {
		dest = append(dest, payload)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(diseases), &e.TargetDiseases); err != nil {
		return nil, fmt.Errorf("unmarshal diseases: %w", err)
	}
	e.CreatedAt = fromNanos(created)
	e.LastAccessed = fromNanos(accessed)
	return e, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
