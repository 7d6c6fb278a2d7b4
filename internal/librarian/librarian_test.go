package librarian

import (
	"context"
	"strings"
	"testing"

	"github.com/bigwolfeman/document-mcp/internal/index"
	"github.com/bigwolfeman/document-mcp/internal/oracle"
	"github.com/bigwolfeman/document-mcp/internal/vault"
)

type fakeProvider struct {
	content string
	calls   int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) GenerateWithTools(ctx context.Context, model string, messages []oracle.Message, tools []oracle.ToolSchema, maxTokens int) (oracle.GenerateResult, error) {
	return oracle.GenerateResult{Content: f.content, FinishReason: "stop"}, nil
}

func (f *fakeProvider) Generate(ctx context.Context, model string, messages []oracle.Message, maxTokens int, temperature float64) (oracle.GenerateResult, error) {
	f.calls++
	return oracle.GenerateResult{Content: f.content, FinishReason: "stop", ModelUsed: model}, nil
}

func newTestLibrarian(t *testing.T, provider oracle.Provider) (*Librarian, string) {
	t.Helper()
	dir := t.TempDir()
	v := vault.New(dir)
	if err := v.Initialise("t1"); err != nil {
		t.Fatalf("initialise: %v", err)
	}
	db, err := index.OpenMemory()
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	idx := index.NewIndexer(db, v)
	return New(v, idx, provider, "", 0.3), dir
}

func TestSummariseCacheMissThenHit(t *testing.T) {
	provider := &fakeProvider{content: "a dense summary"}
	lib, _ := newTestLibrarian(t, provider)

	if _, err := lib.vault.Write("t1", "notes/a.md", "Some content about widgets.", nil, "A"); err != nil {
		t.Fatalf("write note: %v", err)
	}

	var chunks []Chunk
	lib.SummariseStream(context.Background(), "t1", "summarise widgets", []string{"notes/a.md"}, 100, false, func(c Chunk) {
		chunks = append(chunks, c)
	})

	last := chunks[len(chunks)-1]
	if last.Type != "done" || last.FromCache {
		t.Fatalf("expected a fresh (non-cache) done chunk, got %+v", last)
	}
	if provider.calls != 1 {
		t.Fatalf("expected provider to be called once, got %d", provider.calls)
	}

	var secondChunks []Chunk
	lib.SummariseStream(context.Background(), "t1", "summarise widgets", []string{"notes/a.md"}, 100, false, func(c Chunk) {
		secondChunks = append(secondChunks, c)
	})
	secondLast := secondChunks[len(secondChunks)-1]
	if !secondLast.FromCache {
		t.Fatalf("expected second call to hit cache, got %+v", secondLast)
	}
	if provider.calls != 1 {
		t.Fatalf("expected provider not to be called again on cache hit, got %d calls", provider.calls)
	}
}

func TestSummariseForceRefreshBypassesCache(t *testing.T) {
	provider := &fakeProvider{content: "summary v1"}
	lib, _ := newTestLibrarian(t, provider)
	lib.vault.Write("t1", "notes/a.md", "content", nil, "A")

	lib.SummariseStream(context.Background(), "t1", "task", []string{"notes/a.md"}, 100, false, func(Chunk) {})
	provider.content = "summary v2"
	var chunks []Chunk
	lib.SummariseStream(context.Background(), "t1", "task", []string{"notes/a.md"}, 100, true, func(c Chunk) {
		chunks = append(chunks, c)
	})
	last := chunks[len(chunks)-1]
	if last.FromCache {
		t.Fatalf("force_refresh should bypass cache")
	}
	if provider.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", provider.calls)
	}
}

func TestOrganiseBuildsIndexNote(t *testing.T) {
	provider := &fakeProvider{}
	lib, _ := newTestLibrarian(t, provider)
	lib.vault.Write("t1", "projects/one.md", "Intro paragraph about project one.\n\nMore detail.", nil, "Project One")
	lib.vault.Write("t1", "projects/two.md", "Intro paragraph about project two.", nil, "Project Two")

	var chunks []Chunk
	lib.Organise(context.Background(), "t1", "projects", true, "", func(c Chunk) {
		chunks = append(chunks, c)
	})

	var gotIndex, gotDone bool
	for _, c := range chunks {
		if c.Type == "index" {
			gotIndex = true
		}
		if c.Type == "done" {
			gotDone = true
			if c.FilesOrganized != 2 {
				t.Fatalf("expected 2 files organized, got %d", c.FilesOrganized)
			}
		}
	}
	if !gotIndex || !gotDone {
		t.Fatalf("expected index and done chunks, got %+v", chunks)
	}

	note, err := lib.vault.Read("t1", "projects/index.md")
	if err != nil {
		t.Fatalf("read index note: %v", err)
	}
	if !strings.Contains(note.Body, "[[Project One]]") || !strings.Contains(note.Body, "[[Project Two]]") {
		t.Fatalf("index body missing wikilinks: %s", note.Body)
	}
	if note.Title != "Projects" {
		t.Fatalf("expected capitalised leaf title, got %q", note.Title)
	}
}

func TestSummariseSyncForDelegateTool(t *testing.T) {
	provider := &fakeProvider{content: "concise summary"}
	lib, _ := newTestLibrarian(t, provider)
	lib.vault.Write("t1", "notes/a.md", "content", nil, "A")

	summary, err := lib.Summarise(context.Background(), "t1", "task", []string{"notes/a.md"}, 100, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != "concise summary" {
		t.Fatalf("summary = %q", summary)
	}
}
