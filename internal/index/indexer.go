package index

import (
	"database/sql"
	"strings"
	"time"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
	"github.com/bigwolfeman/document-mcp/internal/vault"
	"github.com/bigwolfeman/document-mcp/internal/wikilink"
)

// Indexer implements C4: on every vault mutation, rewrite metadata, FTS,
// tag, and link rows; bump per-note version; update health stats.
// Grounded on the teacher's internal/indexer/indexer.go Reindex/
// IndexSingleFile worker-pool-over-WalkVault shape for Rebuild, and its
// buildRecords delete-then-insert-per-path transaction shape for Index;
// chunking/embedding are dropped (out of spec scope).
type Indexer struct {
	db    *DB
	vault *vault.Store
}

func NewIndexer(db *DB, v *vault.Store) *Indexer {
	return &Indexer{db: db, vault: v}
}

// Index performs spec §4.4's seven steps in a single transaction and
// returns the new version.
func (ix *Indexer) Index(tenant string, note *vault.Note) (int, error) {
	var newVersion int
	err := ix.db.Tx(func(tx *sql.Tx) error {
		var current int
		row := tx.QueryRow(`SELECT version FROM note_metadata WHERE tenant = ? AND path = ?`, tenant, note.Path)
		if err := row.Scan(&current); err != nil && err != sql.ErrNoRows {
			return apperr.Internal("failed to read current version", err)
		}
		newVersion = current + 1

		if _, err := tx.Exec(`DELETE FROM note_metadata WHERE tenant = ? AND path = ?`, tenant, note.Path); err != nil {
			return apperr.Internal("failed to delete note_metadata", err)
		}
		if _, err := tx.Exec(`DELETE FROM note_fts WHERE tenant = ? AND path = ?`, tenant, note.Path); err != nil {
			return apperr.Internal("failed to delete note_fts", err)
		}
		if _, err := tx.Exec(`DELETE FROM note_tags WHERE tenant = ? AND path = ?`, tenant, note.Path); err != nil {
			return apperr.Internal("failed to delete note_tags", err)
		}
		if _, err := tx.Exec(`DELETE FROM note_links WHERE tenant = ? AND source_path = ?`, tenant, note.Path); err != nil {
			return apperr.Internal("failed to delete note_links", err)
		}

		titleSlug := wikilink.Slug(note.Title)
		pathSlug := wikilink.PathSlug(note.Path)
		if _, err := tx.Exec(`INSERT INTO note_metadata
			(tenant, path, version, title, created, updated, size_bytes, title_slug, path_slug)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tenant, note.Path, newVersion, note.Title,
			note.Created.Format(time.RFC3339), note.Updated.Format(time.RFC3339),
			note.SizeBytes, titleSlug, pathSlug); err != nil {
			return apperr.Internal("failed to insert note_metadata", err)
		}

		if _, err := tx.Exec(`INSERT INTO note_fts (tenant, path, title, body) VALUES (?, ?, ?, ?)`,
			tenant, note.Path, note.Title, note.Body); err != nil {
			return apperr.Internal("failed to insert note_fts", err)
		}

		for _, tag := range normaliseTags(note.Metadata) {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO note_tags (tenant, path, tag) VALUES (?, ?, ?)`,
				tenant, note.Path, tag); err != nil {
				return apperr.Internal("failed to insert note_tags", err)
			}
		}

		candidates, err := candidatesFromTx(tx, tenant)
		if err != nil {
			return err
		}
		for _, link := range wikilink.Extract(note.Body) {
			target, resolved := wikilink.Resolve(note.Path, link.Text, candidates)
			var targetArg any
			if resolved {
				targetArg = target
			}
			if _, err := tx.Exec(`INSERT OR REPLACE INTO note_links
				(tenant, source_path, link_text, target_path, is_resolved) VALUES (?, ?, ?, ?, ?)`,
				tenant, note.Path, link.Text, targetArg, resolved); err != nil {
				return apperr.Internal("failed to insert note_links", err)
			}
		}

		return recomputeHealth(tx, tenant, false)
	})
	if err != nil {
		return 0, err
	}
	return newVersion, nil
}

// DeleteIndex symmetrically removes rows for (tenant, path) and sweeps
// inbound links to target_path=null, is_resolved=false, per spec §4.4.
func (ix *Indexer) DeleteIndex(tenant, path string) error {
	return ix.db.Tx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM note_metadata WHERE tenant = ? AND path = ?`, tenant, path); err != nil {
			return apperr.Internal("failed to delete note_metadata", err)
		}
		if _, err := tx.Exec(`DELETE FROM note_fts WHERE tenant = ? AND path = ?`, tenant, path); err != nil {
			return apperr.Internal("failed to delete note_fts", err)
		}
		if _, err := tx.Exec(`DELETE FROM note_tags WHERE tenant = ? AND path = ?`, tenant, path); err != nil {
			return apperr.Internal("failed to delete note_tags", err)
		}
		if _, err := tx.Exec(`DELETE FROM note_links WHERE tenant = ? AND source_path = ?`, tenant, path); err != nil {
			return apperr.Internal("failed to delete note_links", err)
		}
		if _, err := tx.Exec(`UPDATE note_links SET target_path = NULL, is_resolved = 0
			WHERE tenant = ? AND target_path = ?`, tenant, path); err != nil {
			return apperr.Internal("failed to sweep inbound links", err)
		}
		return recomputeHealth(tx, tenant, false)
	})
}

// Rebuild clears all index rows for tenant, walks every note via the
// vault store, and calls Index for each, grounded on the teacher's
// WalkVault+Reindex pattern (sequential here; the teacher's worker pool
// exists because it also computes embeddings, which this index does not).
func (ix *Indexer) Rebuild(tenant string) (int, error) {
	if err := ix.db.Tx(func(tx *sql.Tx) error {
		for _, table := range []string{"note_metadata", "note_fts", "note_tags", "note_links"} {
			col := "tenant"
			if table == "note_links" {
				col = "tenant"
			}
			_, err := tx.Exec(`DELETE FROM `+table+` WHERE `+col+` = ?`, tenant)
			if err != nil {
				return apperr.Internal("failed to clear "+table, err)
			}
		}
		return nil
	}); err != nil {
		return 0, err
	}

	listed, err := ix.vault.List(tenant, "")
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range listed {
		note, err := ix.vault.Read(tenant, entry.Path)
		if err != nil {
			continue // a note removed mid-walk is not a rebuild failure
		}
		if _, err := ix.Index(tenant, note); err != nil {
			return count, err
		}
		count++
	}

	if err := ix.db.Tx(func(tx *sql.Tx) error {
		return recomputeHealth(tx, tenant, true)
	}); err != nil {
		return count, err
	}
	return count, nil
}

func normaliseTags(meta vault.Metadata) []string {
	raw, ok := meta["tags"]
	if !ok {
		return nil
	}
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	default:
		return nil
	}

	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			continue
		}
		tag := strings.ToLower(strings.TrimSpace(s))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func candidatesFromTx(tx *sql.Tx, tenant string) ([]wikilink.Candidate, error) {
	rows, err := tx.Query(`SELECT path, title_slug, path_slug FROM note_metadata WHERE tenant = ?`, tenant)
	if err != nil {
		return nil, apperr.Internal("failed to load wikilink candidates", err)
	}
	defer rows.Close()

	var out []wikilink.Candidate
	for rows.Next() {
		var c wikilink.Candidate
		if err := rows.Scan(&c.Path, &c.TitleSlug, &c.PathSlug); err != nil {
			return nil, apperr.Internal("failed to scan wikilink candidate", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func recomputeHealth(tx *sql.Tx, tenant string, fullRebuild bool) error {
	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM note_metadata WHERE tenant = ?`, tenant).Scan(&count); err != nil {
		return apperr.Internal("failed to count notes", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	if fullRebuild {
		_, err := tx.Exec(`INSERT INTO index_health (tenant, note_count, last_full_rebuild, last_incremental_update)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(tenant) DO UPDATE SET note_count = excluded.note_count,
				last_full_rebuild = excluded.last_full_rebuild,
				last_incremental_update = excluded.last_incremental_update`,
			tenant, count, now, now)
		return err
	}

	_, err := tx.Exec(`INSERT INTO index_health (tenant, note_count, last_full_rebuild, last_incremental_update)
		VALUES (?, ?, NULL, ?)
		ON CONFLICT(tenant) DO UPDATE SET note_count = excluded.note_count,
			last_incremental_update = excluded.last_incremental_update`,
		tenant, count, now)
	return err
}

// Version returns the current indexed version for (tenant, path), and
// false if the note has never been indexed. The HTTP façade (C12) uses
// this to evaluate an optimistic-concurrency `if_version` precondition
// before calling Index (spec §4.12, invariant 3's version monotonicity).
func (ix *Indexer) Version(tenant, path string) (int, bool, error) {
	var v int
	row := ix.db.QueryRow(`SELECT version FROM note_metadata WHERE tenant = ? AND path = ?`, tenant, path)
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, apperr.Internal("failed to read note version", err)
	}
	return v, true, nil
}

// Health returns the IndexHealth entity for a tenant.
type Health struct {
	Tenant                string
	NoteCount             int
	LastFullRebuild       *time.Time
	LastIncrementalUpdate *time.Time
}

func (ix *Indexer) Health(tenant string) (Health, error) {
	row := ix.db.QueryRow(`SELECT note_count, last_full_rebuild, last_incremental_update
		FROM index_health WHERE tenant = ?`, tenant)
	var count int
	var fullRebuild, incUpdate sql.NullString
	if err := row.Scan(&count, &fullRebuild, &incUpdate); err != nil {
		if err == sql.ErrNoRows {
			return Health{Tenant: tenant}, nil
		}
		return Health{}, apperr.Internal("failed to read index health", err)
	}
	h := Health{Tenant: tenant, NoteCount: count}
	if fullRebuild.Valid {
		if t, err := time.Parse(time.RFC3339, fullRebuild.String); err == nil {
			h.LastFullRebuild = &t
		}
	}
	if incUpdate.Valid {
		if t, err := time.Parse(time.RFC3339, incUpdate.String); err == nil {
			h.LastIncrementalUpdate = &t
		}
	}
	return h, nil
}
