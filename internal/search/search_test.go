package search

import (
	"testing"

	"github.com/bigwolfeman/document-mcp/internal/index"
	"github.com/bigwolfeman/document-mcp/internal/vault"
)

func setup(t *testing.T) (*Engine, *index.Indexer, *vault.Store) {
	t.Helper()
	db, err := index.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	v := vault.New(t.TempDir())
	v.Initialise("t1")
	ix := index.NewIndexer(db, v)
	return New(db), ix, v
}

func TestSanitiseQueryRejectsEmpty(t *testing.T) {
	if _, err := sanitiseQuery("!!!"); err == nil {
		t.Fatalf("expected query_invalid for a query with no tokens")
	}
}

func TestSanitiseQueryPreservesPrefixStar(t *testing.T) {
	got, err := sanitiseQuery("auth*")
	if err != nil {
		t.Fatal(err)
	}
	if got != `"auth"*` {
		t.Fatalf("got %q", got)
	}
}

func TestSearchTitleWeightBeatsBodyWeight(t *testing.T) {
	e, ix, v := setup(t)

	noteA, _ := v.Write("t1", "a.md", "x", vault.Metadata{"title": "alpha"}, "")
	ix.Index("t1", noteA)
	noteB, _ := v.Write("t1", "b.md", "alpha", vault.Metadata{"title": "x"}, "")
	ix.Index("t1", noteB)

	results, err := e.Search("t1", "alpha", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) < 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Path != "a.md" {
		t.Fatalf("expected a.md (title match) to rank first, got %s", results[0].Path)
	}
}

func TestBacklinksReturnsLinkingNote(t *testing.T) {
	e, ix, v := setup(t)
	target, _ := v.Write("t1", "target.md", "body", nil, "")
	ix.Index("t1", target)
	src, _ := v.Write("t1", "src.md", "See [[Target]]", nil, "")
	ix.Index("t1", src)

	backlinks, err := e.Backlinks("t1", "target.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(backlinks) != 1 || backlinks[0].Path != "src.md" {
		t.Fatalf("unexpected backlinks: %+v", backlinks)
	}
}

func TestTagsSortedByCountThenName(t *testing.T) {
	e, ix, v := setup(t)
	n1, _ := v.Write("t1", "a.md", "a", vault.Metadata{"tags": []any{"go", "db"}}, "")
	ix.Index("t1", n1)
	n2, _ := v.Write("t1", "b.md", "b", vault.Metadata{"tags": []any{"go"}}, "")
	ix.Index("t1", n2)

	tags, err := e.Tags("t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 2 || tags[0].Tag != "go" || tags[0].Count != 2 {
		t.Fatalf("unexpected tags: %+v", tags)
	}
}
