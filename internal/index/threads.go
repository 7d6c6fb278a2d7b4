package index

import (
	"database/sql"
	"time"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
)

// ThreadEntry is one pushed turn in a project thread (spec §4.8
// thread_push/read/seek/list; supplemented from original_source's
// thread_service.py/thread_retriever.py per SPEC_FULL.md §4.C).
type ThreadEntry struct {
	ThreadID  string
	Seq       int
	CreatedAt time.Time
	Role      string
	Content   string
}

// ThreadPush appends a turn to a project thread, auto-creating the thread
// if absent and assigning the next sequence id.
func (db *DB) ThreadPush(tenant, project, threadID, role, content string) (*ThreadEntry, error) {
	var entry ThreadEntry
	err := db.Tx(func(tx *sql.Tx) error {
		now := time.Now().UTC()
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM threads WHERE tenant=? AND project=? AND thread_id=?`,
			tenant, project, threadID).Scan(&exists); err != nil {
			return apperr.Internal("failed to check thread existence", err)
		}
		if exists == 0 {
			if _, err := tx.Exec(`INSERT INTO threads (tenant, project, thread_id, created_at, last_activity)
				VALUES (?, ?, ?, ?, ?)`, tenant, project, threadID, now.Format(time.RFC3339), now.Format(time.RFC3339)); err != nil {
				return apperr.Internal("failed to create thread", err)
			}
		} else {
			if _, err := tx.Exec(`UPDATE threads SET last_activity = ? WHERE tenant=? AND project=? AND thread_id=?`,
				now.Format(time.RFC3339), tenant, project, threadID); err != nil {
				return apperr.Internal("failed to touch thread", err)
			}
		}

		var maxSeq sql.NullInt64
		if err := tx.QueryRow(`SELECT MAX(seq) FROM thread_entries WHERE tenant=? AND thread_id=?`,
			tenant, threadID).Scan(&maxSeq); err != nil {
			return apperr.Internal("failed to read max sequence", err)
		}
		seq := 1
		if maxSeq.Valid {
			seq = int(maxSeq.Int64) + 1
		}

		if _, err := tx.Exec(`INSERT INTO thread_entries (tenant, thread_id, seq, created_at, role, content)
			VALUES (?, ?, ?, ?, ?, ?)`, tenant, threadID, seq, now.Format(time.RFC3339), role, content); err != nil {
			return apperr.Internal("failed to insert thread entry", err)
		}
		if _, err := tx.Exec(`INSERT INTO thread_fts (tenant, thread_id, seq, content) VALUES (?, ?, ?, ?)`,
			tenant, threadID, seq, content); err != nil {
			return apperr.Internal("failed to insert thread_fts", err)
		}

		entry = ThreadEntry{ThreadID: threadID, Seq: seq, CreatedAt: now, Role: role, Content: content}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ThreadRead returns the last N entries in chronological order.
func (db *DB) ThreadRead(tenant, threadID string, n int) ([]ThreadEntry, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := db.Query(`SELECT seq, created_at, role, content FROM thread_entries
		WHERE tenant = ? AND thread_id = ? ORDER BY seq DESC LIMIT ?`, tenant, threadID, n)
	if err != nil {
		return nil, apperr.Internal("thread read failed", err)
	}
	defer rows.Close()

	var out []ThreadEntry
	for rows.Next() {
		var e ThreadEntry
		var created string
		e.ThreadID = threadID
		if err := rows.Scan(&e.Seq, &created, &e.Role, &e.Content); err != nil {
			return nil, apperr.Internal("failed to scan thread entry", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, e)
	}
	// reverse to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// ThreadSeek runs FTS over thread entries for a project.
func (db *DB) ThreadSeek(tenant, project, rawQuery string, limit int) ([]ThreadEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.Query(`
		SELECT f.thread_id, f.seq, e.created_at, e.role, e.content
		FROM thread_fts f
		JOIN thread_entries e ON e.tenant = f.tenant AND e.thread_id = f.thread_id AND e.seq = f.seq
		JOIN threads t ON t.tenant = f.tenant AND t.thread_id = f.thread_id
		WHERE f.tenant = ? AND t.project = ? AND thread_fts MATCH ?
		ORDER BY bm25(thread_fts) LIMIT ?`, tenant, project, rawQuery, limit)
	if err != nil {
		return nil, apperr.Internal("thread seek failed", err)
	}
	defer rows.Close()

	var out []ThreadEntry
	for rows.Next() {
		var e ThreadEntry
		var created string
		if err := rows.Scan(&e.ThreadID, &e.Seq, &created, &e.Role, &e.Content); err != nil {
			return nil, apperr.Internal("failed to scan thread seek result", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ThreadSummary is one row from ThreadList.
type ThreadSummary struct {
	ThreadID     string
	CreatedAt    time.Time
	LastActivity time.Time
}

// ThreadList lists active threads for a project.
func (db *DB) ThreadList(tenant, project string) ([]ThreadSummary, error) {
	rows, err := db.Query(`SELECT thread_id, created_at, last_activity FROM threads
		WHERE tenant = ? AND project = ? ORDER BY last_activity DESC`, tenant, project)
	if err != nil {
		return nil, apperr.Internal("thread list failed", err)
	}
	defer rows.Close()

	var out []ThreadSummary
	for rows.Next() {
		var s ThreadSummary
		var created, last string
		if err := rows.Scan(&s.ThreadID, &created, &last); err != nil {
			return nil, apperr.Internal("failed to scan thread summary", err)
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339, created)
		s.LastActivity, _ = time.Parse(time.RFC3339, last)
		out = append(out, s)
	}
	return out, rows.Err()
}
