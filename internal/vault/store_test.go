package vault

import (
	"strings"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Initialise("tenant-a"); err != nil {
		t.Fatal(err)
	}
	note, err := s.Write("tenant-a", "a/b.md", "Hello", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if note.Title != "B" {
		t.Fatalf("title = %q, want B", note.Title)
	}

	got, err := s.Read("tenant-a", "a/b.md")
	if err != nil {
		t.Fatal(err)
	}
	if got.Body != "Hello" {
		t.Fatalf("body = %q", got.Body)
	}
	if got.Title != "B" {
		t.Fatalf("title = %q", got.Title)
	}
}

func TestWritePreservesCreatedAcrossRewrites(t *testing.T) {
	s := New(t.TempDir())
	s.Initialise("t1")
	first, err := s.Write("t1", "n.md", "v1", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Write("t1", "n.md", "v2", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if !second.Created.Equal(first.Created) {
		t.Fatalf("created changed across rewrite: %v != %v", first.Created, second.Created)
	}
}

func TestPathEscapeRejected(t *testing.T) {
	s := New(t.TempDir())
	s.Initialise("t1")
	if _, err := s.Read("t1", "../../etc/passwd.md"); err == nil {
		t.Fatalf("expected path_invalid/escape error")
	}
}

func TestDeleteNotFound(t *testing.T) {
	s := New(t.TempDir())
	s.Initialise("t1")
	if err := s.Delete("t1", "missing.md"); err == nil {
		t.Fatalf("expected not_found")
	}
}

func TestMoveExistsConflict(t *testing.T) {
	s := New(t.TempDir())
	s.Initialise("t1")
	s.Write("t1", "a.md", "A", nil, "")
	s.Write("t1", "b.md", "B", nil, "")
	if _, err := s.Move("t1", "a.md", "b.md"); err == nil {
		t.Fatalf("expected version_conflict (exists) error")
	}
}

func TestTenantIsolation(t *testing.T) {
	s := New(t.TempDir())
	s.Initialise("tenant-a")
	s.Initialise("tenant-b")
	s.Write("tenant-a", "secret.md", "shh", nil, "")
	if _, err := s.Read("tenant-b", "secret.md"); err == nil {
		t.Fatalf("tenant-b must not see tenant-a's note")
	}
}

func TestListSortedByLowercasePath(t *testing.T) {
	s := New(t.TempDir())
	s.Initialise("t1")
	s.Write("t1", "B.md", "b", nil, "")
	s.Write("t1", "a.md", "a", nil, "")
	notes, err := s.List("t1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 2 || notes[0].Path != "a.md" || notes[1].Path != "B.md" {
		t.Fatalf("unexpected order: %+v", notes)
	}
}

func TestSerialiseOmitsEmptyFrontmatter(t *testing.T) {
	out, err := Serialise(Metadata{}, "body text")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "---") {
		t.Fatalf("expected no frontmatter block for empty metadata, got %q", out)
	}
}

func TestParseRejectsReservedVersionKey(t *testing.T) {
	_, _, err := Parse([]byte("---\nversion: 5\n---\nbody"))
	if err == nil {
		t.Fatalf("expected metadata_reserved_key error")
	}
}
