// Package index implements C3 (schema/migrations for the single embedded
// SQL+FTS database) and C4 (the indexer) from spec §4.3/§4.4. Grounded on
// the teacher's internal/store/db.go migration-slice idiom and
// db.mu-serialised-writer pattern, generalised from single-tenant to
// tenant-keyed tables.
package index

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
	"github.com/bigwolfeman/document-mcp/internal/logx"
)

// DB wraps the embedded SQLite connection. Writes are serialised through
// mu, mirroring the teacher's db.mu sync.Mutex over a single *sql.DB,
// since SQLite's own writer concurrency is effectively single-threaded.
type DB struct {
	sqlDB *sql.DB
	mu    sync.Mutex
	log   *logx.Logger
}

type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
			`CREATE TABLE IF NOT EXISTS note_metadata (
				tenant TEXT NOT NULL,
				path TEXT NOT NULL,
				version INTEGER NOT NULL,
				title TEXT NOT NULL,
				created TEXT NOT NULL,
				updated TEXT NOT NULL,
				size_bytes INTEGER NOT NULL,
				title_slug TEXT NOT NULL,
				path_slug TEXT NOT NULL,
				PRIMARY KEY (tenant, path)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_note_metadata_title_slug ON note_metadata(tenant, title_slug)`,
			`CREATE INDEX IF NOT EXISTS idx_note_metadata_path_slug ON note_metadata(tenant, path_slug)`,
			`CREATE INDEX IF NOT EXISTS idx_note_metadata_updated ON note_metadata(tenant, updated)`,
			`CREATE VIRTUAL TABLE IF NOT EXISTS note_fts USING fts5(
				tenant UNINDEXED,
				path UNINDEXED,
				title,
				body,
				tokenize = 'porter unicode61'
			)`,
			`CREATE TABLE IF NOT EXISTS note_tags (
				tenant TEXT NOT NULL,
				path TEXT NOT NULL,
				tag TEXT NOT NULL,
				PRIMARY KEY (tenant, path, tag)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_note_tags_tag ON note_tags(tenant, tag)`,
			`CREATE TABLE IF NOT EXISTS note_links (
				tenant TEXT NOT NULL,
				source_path TEXT NOT NULL,
				link_text TEXT NOT NULL,
				target_path TEXT,
				is_resolved INTEGER NOT NULL,
				PRIMARY KEY (tenant, source_path, link_text)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_note_links_target ON note_links(tenant, target_path)`,
			`CREATE TABLE IF NOT EXISTS index_health (
				tenant TEXT PRIMARY KEY,
				note_count INTEGER NOT NULL DEFAULT 0,
				last_full_rebuild TEXT,
				last_incremental_update TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS context_trees (
				root_id TEXT PRIMARY KEY,
				tenant TEXT NOT NULL,
				project TEXT NOT NULL,
				current_node_id TEXT NOT NULL,
				created_at TEXT NOT NULL,
				last_activity TEXT NOT NULL,
				node_count INTEGER NOT NULL,
				max_nodes INTEGER NOT NULL,
				label TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_context_trees_tenant_project ON context_trees(tenant, project, last_activity)`,
			`CREATE TABLE IF NOT EXISTS context_nodes (
				id TEXT PRIMARY KEY,
				root_id TEXT NOT NULL,
				parent_id TEXT,
				tenant TEXT NOT NULL,
				project TEXT NOT NULL,
				created_at TEXT NOT NULL,
				question TEXT NOT NULL,
				answer TEXT NOT NULL,
				tool_calls_blob TEXT NOT NULL DEFAULT '[]',
				tokens_used INTEGER NOT NULL DEFAULT 0,
				model_used TEXT NOT NULL DEFAULT '',
				label TEXT,
				is_checkpoint INTEGER NOT NULL DEFAULT 0,
				is_root INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_context_nodes_root ON context_nodes(root_id)`,
			`CREATE TABLE IF NOT EXISTS threads (
				tenant TEXT NOT NULL,
				project TEXT NOT NULL,
				thread_id TEXT NOT NULL,
				created_at TEXT NOT NULL,
				last_activity TEXT NOT NULL,
				PRIMARY KEY (tenant, project, thread_id)
			)`,
			`CREATE TABLE IF NOT EXISTS thread_entries (
				tenant TEXT NOT NULL,
				thread_id TEXT NOT NULL,
				seq INTEGER NOT NULL,
				created_at TEXT NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				PRIMARY KEY (tenant, thread_id, seq)
			)`,
			`CREATE VIRTUAL TABLE IF NOT EXISTS thread_fts USING fts5(
				tenant UNINDEXED,
				thread_id UNINDEXED,
				seq UNINDEXED,
				content,
				tokenize = 'porter unicode61'
			)`,
			`CREATE TABLE IF NOT EXISTS tenant_settings (
				tenant TEXT PRIMARY KEY,
				default_model TEXT,
				thinking_mode TEXT
			)`,
		},
	},
}

// SchemaVersion is the highest migration version this build knows about,
// for GET /api/system/status (spec.md §4.C's "schema version").
func SchemaVersion() int {
	v := 0
	for _, m := range migrations {
		if m.version > v {
			v = m.version
		}
	}
	return v
}

// Open initialises (creating if needed) and migrates the embedded
// database at path, applying every migration in a single transaction.
func Open(path string) (*DB, error) {
	dsn := path + "?_journal_mode=WAL&_foreign_keys=on"
	if strings.Contains(path, "?") {
		dsn = path + "&_journal_mode=WAL&_foreign_keys=on"
	}
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperr.Internal("failed to open index database", err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB: sqlDB, log: logx.New("index")}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

var memSeq int64

// OpenMemory opens an in-memory database for tests, mirroring the
// teacher's store.OpenMemory() helper. Each call gets its own named
// database, so tests do not see each other's rows.
func OpenMemory() (*DB, error) {
	return Open(fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", atomic.AddInt64(&memSeq, 1)))
}

func (db *DB) migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.sqlDB.Begin()
	if err != nil {
		return apperr.Internal("failed to begin migration transaction", err)
	}
	defer tx.Rollback()

	applied := 0
	row := tx.QueryRow(`SELECT value FROM sqlite_master WHERE type='table' AND name='schema_meta'`)
	var dummy string
	_ = row.Scan(&dummy) // best-effort; absence is fine on first run

	for _, m := range migrations {
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return apperr.Internal(fmt.Sprintf("migration v%d failed", m.version), err)
			}
		}
		applied++
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal("failed to commit migration transaction", err)
	}
	db.log.Infof("applied %d migration group(s)", applied)
	return nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	return db.sqlDB.Close()
}

// Tx runs fn inside a single write transaction, serialised through mu, per
// spec §4.3 "writes use a single transaction per logical operation".
func (db *DB) Tx(fn func(tx *sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.sqlDB.Begin()
	if err != nil {
		return apperr.Internal("failed to begin transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal("failed to commit transaction", err)
	}
	return nil
}

// Query exposes read-only access without the writer lock (SQLite permits
// concurrent readers under WAL).
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	return db.sqlDB.Query(query, args...)
}

func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	return db.sqlDB.QueryRow(query, args...)
}
