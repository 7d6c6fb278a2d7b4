package index

import (
	"testing"

	"github.com/bigwolfeman/document-mcp/internal/vault"
)

func newTestIndexer(t *testing.T) (*Indexer, *vault.Store, *DB) {
	t.Helper()
	db, err := Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	v := vault.New(t.TempDir())
	v.Initialise("t1")
	return NewIndexer(db, v), v, db
}

func TestIndexVersionMonotonicity(t *testing.T) {
	ix, v, _ := newTestIndexer(t)
	note, _ := v.Write("t1", "n.md", "body one", nil, "")
	v1, err := ix.Index("t1", note)
	if err != nil {
		t.Fatal(err)
	}
	if v1 != 1 {
		t.Fatalf("first version = %d, want 1", v1)
	}
	note2, _ := v.Write("t1", "n.md", "body two", nil, "")
	v2, err := ix.Index("t1", note2)
	if err != nil {
		t.Fatal(err)
	}
	if v2 != 2 {
		t.Fatalf("second version = %d, want 2", v2)
	}
}

func TestIndexCoherenceOneRowPerTable(t *testing.T) {
	ix, v, db := newTestIndexer(t)
	note, _ := v.Write("t1", "n.md", "See [[Other]] and [[Other]]", vault.Metadata{"tags": []any{"Foo", "foo", "Bar"}}, "")
	if _, err := ix.Index("t1", note); err != nil {
		t.Fatal(err)
	}

	var metaCount int
	db.QueryRow(`SELECT COUNT(*) FROM note_metadata WHERE tenant='t1' AND path='n.md'`).Scan(&metaCount)
	if metaCount != 1 {
		t.Fatalf("note_metadata rows = %d, want 1", metaCount)
	}

	var tagCount int
	db.QueryRow(`SELECT COUNT(*) FROM note_tags WHERE tenant='t1' AND path='n.md'`).Scan(&tagCount)
	if tagCount != 2 {
		t.Fatalf("note_tags rows = %d, want 2 (foo, bar deduped)", tagCount)
	}

	var linkCount int
	db.QueryRow(`SELECT COUNT(*) FROM note_links WHERE tenant='t1' AND source_path='n.md'`).Scan(&linkCount)
	if linkCount != 1 {
		t.Fatalf("note_links rows = %d, want 1 (deduped)", linkCount)
	}
}

func TestDeleteCascadeClearsInboundLinks(t *testing.T) {
	ix, v, db := newTestIndexer(t)
	target, _ := v.Write("t1", "target.md", "body", nil, "")
	ix.Index("t1", target)
	src, _ := v.Write("t1", "src.md", "See [[Target]]", nil, "")
	ix.Index("t1", src)

	if err := ix.DeleteIndex("t1", "target.md"); err != nil {
		t.Fatal(err)
	}

	var metaCount int
	db.QueryRow(`SELECT COUNT(*) FROM note_metadata WHERE tenant='t1' AND path='target.md'`).Scan(&metaCount)
	if metaCount != 0 {
		t.Fatalf("expected target_path metadata gone")
	}

	var targetPath *string
	var resolved bool
	db.QueryRow(`SELECT target_path, is_resolved FROM note_links WHERE tenant='t1' AND source_path='src.md'`).Scan(&targetPath, &resolved)
	if targetPath != nil || resolved {
		t.Fatalf("expected inbound link nulled out, got target=%v resolved=%v", targetPath, resolved)
	}
}

func TestRebuildRestoresHealth(t *testing.T) {
	ix, v, _ := newTestIndexer(t)
	v.Write("t1", "a.md", "a", nil, "")
	v.Write("t1", "b.md", "b", nil, "")
	count, err := ix.Rebuild("t1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("rebuild count = %d, want 2", count)
	}
	health, err := ix.Health("t1")
	if err != nil {
		t.Fatal(err)
	}
	if health.NoteCount != 2 {
		t.Fatalf("NoteCount = %d, want 2", health.NoteCount)
	}
	if health.LastFullRebuild == nil {
		t.Fatalf("expected LastFullRebuild to be set")
	}
}
