package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 2

// Migration describes a single schema migration. Migrations are ordered by
// Version and each is applied once.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the ordered list of all schema migrations. Any whose
// Version is already recorded in schema_migrations is skipped.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "graph_cache table keyed by normalized query",
		SQL: `
CREATE TABLE IF NOT EXISTS graph_cache (
    cache_key        TEXT PRIMARY KEY,
    target_gene      TEXT NOT NULL,
    target_diseases  TEXT NOT NULL DEFAULT '[]',
    metapath         TEXT NOT NULL,
    payload          BLOB NOT NULL,
    fingerprint      TEXT NOT NULL,
    node_count       INTEGER NOT NULL DEFAULT 0,
    edge_count       INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_created ON graph_cache(created_at);
CREATE INDEX IF NOT EXISTS idx_cache_gene    ON graph_cache(target_gene);
`,
	},
	{
		Version:     2,
		Description: "track cache hits and last access",
		SQL: `
ALTER TABLE graph_cache ADD COLUMN last_accessed INTEGER NOT NULL DEFAULT 0;
ALTER TABLE graph_cache ADD COLUMN hit_count     INTEGER NOT NULL DEFAULT 0;
UPDATE graph_cache SET last_accessed = created_at;
`,
	},
}
