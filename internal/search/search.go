// Package search implements C5: sanitise query, run field-weighted BM25
// join, apply recency bonus, return ranked snippets; backlinks; tag
// counts (spec §4.5). Grounded on the teacher's internal/store/search.go
// ExtractSearchTerms-style tokenisation; the vector/hybrid-fusion
// machinery in that file is dropped (out of scope — FTS5 BM25 only).
package search

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
	"github.com/bigwolfeman/document-mcp/internal/index"
)

const maxQueryChars = 256

var tokenPattern = regexp.MustCompile(`[0-9A-Za-z]+\*?`)

// Engine runs queries against the index database.
type Engine struct {
	db *index.DB
}

func New(db *index.DB) *Engine {
	return &Engine{db: db}
}

// Result is one ranked hit from Search.
type Result struct {
	Path    string
	Title   string
	Snippet string
	Score   float64
	Updated time.Time
}

// sanitiseQuery implements spec §4.5's tokeniser: alphanumeric tokens via
// [0-9A-Za-z]+\*?, each double-quoted to neutralise FTS operators, a
// trailing "*" preserved for prefix search, tokens joined with implicit
// AND. Fails query_invalid if no tokens remain.
func sanitiseQuery(raw string) (string, error) {
	if len(raw) > maxQueryChars {
		return "", apperr.Validation("query_invalid: query exceeds 256 characters")
	}
	matches := tokenPattern.FindAllString(raw, -1)
	if len(matches) == 0 {
		return "", apperr.Validation("query_invalid: no tokens found")
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.HasSuffix(m, "*") {
			term := strings.TrimSuffix(m, "*")
			parts = append(parts, `"`+term+`"*`)
		} else {
			parts = append(parts, `"`+m+`"`)
		}
	}
	return strings.Join(parts, " "), nil
}

// Search implements spec §4.5: sanitise, BM25(title=3,body=1) + recency
// bonus, descending by score then updated desc then path asc.
func (e *Engine) Search(tenant, rawQuery string, limit int) ([]Result, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	ftsQuery, err := sanitiseQuery(rawQuery)
	if err != nil {
		return nil, err
	}

	rows, err := e.db.Query(`
		SELECT m.path, m.title, m.updated,
		       bm25(note_fts, 0.0, 0.0, 3.0, 1.0) AS base_score,
		       snippet(note_fts, 3, '<mark>', '</mark>', '...', 32) AS snip
		FROM note_fts
		JOIN note_metadata m ON m.tenant = note_fts.tenant AND m.path = note_fts.path
		WHERE note_fts.tenant = ? AND note_fts MATCH ?
		ORDER BY base_score
		LIMIT ?`, tenant, ftsQuery, limit*4) // overfetch; bm25 is negative-is-better, final ranking applies recency after
	if err != nil {
		return nil, apperr.Internal("search query failed", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var out []Result
	for rows.Next() {
		var path, title, updatedStr, snip string
		var baseScore float64
		if err := rows.Scan(&path, &title, &updatedStr, &baseScore, &snip); err != nil {
			return nil, apperr.Internal("failed to scan search row", err)
		}
		updated, _ := time.Parse(time.RFC3339, updatedStr)

		// sqlite's bm25() returns lower-is-better; invert so higher is better
		// and matches the "title=3.0,body=1.0" weighting the spec describes
		// as a base score to which a recency bonus is added.
		score := -baseScore + recencyBonus(now, updated)
		out = append(out, Result{Path: path, Title: title, Snippet: snip, Score: score, Updated: updated})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("failed to iterate search rows", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].Updated.Equal(out[j].Updated) {
			return out[i].Updated.After(out[j].Updated)
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func recencyBonus(now, updated time.Time) float64 {
	age := now.Sub(updated)
	switch {
	case age <= 7*24*time.Hour:
		return 1.0
	case age <= 30*24*time.Hour:
		return 0.5
	default:
		return 0
	}
}

// BacklinkResult is one entry from Backlinks.
type BacklinkResult struct {
	Path  string
	Title string
}

// Backlinks returns DISTINCT source paths whose resolved link targets
// equal `target`, ordered by updated desc (spec §4.5).
func (e *Engine) Backlinks(tenant, target string) ([]BacklinkResult, error) {
	rows, err := e.db.Query(`
		SELECT DISTINCT m.path, m.title
		FROM note_links l
		JOIN note_metadata m ON m.tenant = l.tenant AND m.path = l.source_path
		WHERE l.tenant = ? AND l.target_path = ?
		ORDER BY m.updated DESC`, tenant, target)
	if err != nil {
		return nil, apperr.Internal("backlinks query failed", err)
	}
	defer rows.Close()

	var out []BacklinkResult
	for rows.Next() {
		var r BacklinkResult
		if err := rows.Scan(&r.Path, &r.Title); err != nil {
			return nil, apperr.Internal("failed to scan backlink row", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TagCount is one entry from Tags.
type TagCount struct {
	Tag   string
	Count int
}

// Tags counts DISTINCT paths per tag, sorted by count desc then tag asc
// (spec §4.5).
func (e *Engine) Tags(tenant string) ([]TagCount, error) {
	rows, err := e.db.Query(`
		SELECT tag, COUNT(DISTINCT path) AS c
		FROM note_tags WHERE tenant = ?
		GROUP BY tag
		ORDER BY c DESC, tag ASC`, tenant)
	if err != nil {
		return nil, apperr.Internal("tags query failed", err)
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, apperr.Internal("failed to scan tag row", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
