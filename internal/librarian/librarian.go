// Package librarian implements C10: the summarisation/organisation
// subagent with a content-addressed cache under oracle-cache/summaries/
// (spec §4.10). Grounded on original_source's librarian_agent.py /
// librarian_service.py cache-key and cache-path scheme, expressed in the
// teacher's Go idiom; reads/writes notes the same way the vault_read/
// vault_write tools do (via internal/vault directly, since those tool
// handlers don't expose the custom frontmatter this package needs to
// stamp onto a cached summary).
package librarian

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
	"github.com/bigwolfeman/document-mcp/internal/index"
	"github.com/bigwolfeman/document-mcp/internal/oracle"
	"github.com/bigwolfeman/document-mcp/internal/vault"
)

const summarisePromptTemplate = `Summarise the following material for the task: %q

Write a clear, dense summary. Do not repeat the material verbatim.

%s`

// Chunk is one unit of a Librarian stream (spec §4.10).
type Chunk struct {
	Type             string `json:"type"` // thinking|summary|cache_hit|index|error|done
	Summary          string `json:"summary,omitempty"`
	CachePath        string `json:"cache_path,omitempty"`
	FromCache        bool   `json:"from_cache,omitempty"`
	TokenCount       int    `json:"token_count,omitempty"`
	FilesOrganized   int    `json:"files_organized,omitempty"`
	WikilinksCreated int    `json:"wikilinks_created,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Librarian runs Summarise/Organise against a tenant's vault.
type Librarian struct {
	vault       *vault.Store
	indexer     *index.Indexer
	provider    oracle.Provider
	model       string
	temperature float64
}

func New(v *vault.Store, idx *index.Indexer, provider oracle.Provider, model string, temperature float64) *Librarian {
	if temperature <= 0 {
		temperature = 0.3
	}
	return &Librarian{vault: v, indexer: idx, provider: provider, model: model, temperature: temperature}
}

// SummariseStream streams the cache-check / generate / cache-write flow of
// spec §4.10. It never panics or returns an error directly — failures
// surface as an `error` chunk, matching "the generator never raises".
func (l *Librarian) SummariseStream(ctx context.Context, tenant, task string, paths []string, maxTokens int, forceRefresh bool, emit func(Chunk)) {
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	emit(Chunk{Type: "thinking"})

	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	contents := make(map[string]string, len(sorted))
	for _, p := range sorted {
		note, err := l.vault.Read(tenant, p)
		if err != nil {
			emit(Chunk{Type: "error", Error: fmt.Sprintf("failed to read %s: %s", p, apperr.As(err).Message)})
			return
		}
		contents[p] = note.Body
	}

	key := cacheKey(task, sorted, contents)
	cachePath := cachePathFor(task, "vault", key)

	if !forceRefresh {
		if cached, err := l.vault.Read(tenant, cachePath); err == nil {
			emit(Chunk{Type: "cache_hit"})
			emit(Chunk{Type: "done", FromCache: true, CachePath: cachePath, Summary: cached.Body})
			return
		}
	}

	var sb strings.Builder
	for _, p := range sorted {
		sb.WriteString("### ")
		sb.WriteString(p)
		sb.WriteString("\n")
		sb.WriteString(contents[p])
		sb.WriteString("\n\n")
	}

	messages := []oracle.Message{
		{Role: "system", Content: "You are the Librarian, a careful technical summariser."},
		{Role: "user", Content: fmt.Sprintf(summarisePromptTemplate, task, sb.String())},
	}
	result, err := l.provider.Generate(ctx, l.modelOrDefault(), messages, maxTokens, l.temperature)
	if err != nil {
		emit(Chunk{Type: "error", Error: apperr.As(err).Message})
		return
	}

	emit(Chunk{Type: "summary", Summary: result.Content})

	tokenCount := len(result.Content) / 4
	meta := vault.Metadata{
		"created":     time.Now().UTC().Format(time.RFC3339),
		"sources":     sorted,
		"token_count": tokenCount,
		"cache_key":   key,
		"task":        task,
		"source_type": "vault",
	}
	if _, err := l.vault.Write(tenant, cachePath, result.Content, meta, ""); err != nil {
		emit(Chunk{Type: "error", Error: fmt.Sprintf("failed to write cache: %s", apperr.As(err).Message)})
		return
	}
	if note, err := l.vault.Read(tenant, cachePath); err == nil {
		_, _ = l.indexer.Index(tenant, note)
	}

	emit(Chunk{Type: "done", FromCache: false, CachePath: cachePath, TokenCount: tokenCount, Summary: result.Content})
}

// Organise lists folder, builds a leaf-capitalised index note of
// [[Title]] bullets with each note's lead snippet, and writes it to
// <folder>/index.md (spec §4.10).
func (l *Librarian) Organise(ctx context.Context, tenant, folder string, createIndex bool, task string, emit func(Chunk)) {
	notes, err := l.vault.List(tenant, folder)
	if err != nil {
		emit(Chunk{Type: "error", Error: apperr.As(err).Message})
		return
	}

	type entry struct {
		title   string
		snippet string
	}
	entries := make([]entry, 0, len(notes))
	for _, n := range notes {
		note, err := l.vault.Read(tenant, n.Path)
		if err != nil {
			continue
		}
		entries = append(entries, entry{title: note.Title, snippet: leadParagraph(note.Body, 200)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].title < entries[j].title })

	if !createIndex {
		emit(Chunk{Type: "done", FilesOrganized: len(entries), WikilinksCreated: 0})
		return
	}

	leaf := folder
	if idx := strings.LastIndex(folder, "/"); idx >= 0 {
		leaf = folder[idx+1:]
	}
	title := capitalise(leaf)

	var body strings.Builder
	body.WriteString("# " + title + "\n\n")
	for _, e := range entries {
		body.WriteString(fmt.Sprintf("- [[%s]] — %s\n", e.title, e.snippet))
	}

	indexPath := strings.TrimSuffix(folder, "/") + "/index.md"
	note, err := l.vault.Write(tenant, indexPath, body.String(), nil, title)
	if err != nil {
		emit(Chunk{Type: "error", Error: apperr.As(err).Message})
		return
	}
	if _, err := l.indexer.Index(tenant, note); err != nil {
		emit(Chunk{Type: "error", Error: apperr.As(err).Message})
		return
	}

	emit(Chunk{Type: "index", CachePath: indexPath})
	emit(Chunk{Type: "done", FilesOrganized: len(entries), WikilinksCreated: len(entries)})
}

// Summarise implements tools.LibrarianRunner: a synchronous call for the
// delegate_librarian tool that runs the stream to completion and returns
// only the final text.
func (l *Librarian) Summarise(ctx context.Context, tenant, task string, paths []string, maxTokens int, forceRefresh bool) (string, error) {
	var final string
	var failure string
	l.SummariseStream(ctx, tenant, task, paths, maxTokens, forceRefresh, func(c Chunk) {
		switch c.Type {
		case "done":
			final = c.Summary
		case "error":
			failure = c.Error
		}
	})
	if failure != "" {
		return "", fmt.Errorf("%s", failure)
	}
	return final, nil
}

// CreateIndex implements tools.LibrarianRunner: a synchronous call for the
// vault_create_index tool that runs Organise to completion and returns the
// written index note's path (spec §4.8/§4.10).
func (l *Librarian) CreateIndex(ctx context.Context, tenant, folder, task string) (string, error) {
	var indexPath string
	var failure string
	l.Organise(ctx, tenant, folder, true, task, func(c Chunk) {
		switch c.Type {
		case "index":
			indexPath = c.CachePath
		case "error":
			failure = c.Error
		}
	})
	if failure != "" {
		return "", fmt.Errorf("%s", failure)
	}
	return indexPath, nil
}

func (l *Librarian) modelOrDefault() string {
	if l.model != "" {
		return l.model
	}
	return "claude-haiku-4-5"
}

// cacheKey is the first 16 hex chars of SHA-256 over
// task | sorted(paths) | concatenated(content[:1000] each, sorted by path).
func cacheKey(task string, sortedPaths []string, contents map[string]string) string {
	h := sha256.New()
	h.Write([]byte(task))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.Join(sortedPaths, ",")))
	h.Write([]byte{'|'})
	for _, p := range sortedPaths {
		c := contents[p]
		if len(c) > 1000 {
			c = c[:1000]
		}
		h.Write([]byte(c))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

var nonWord = regexp.MustCompile(`\W+`)

// safe replaces non-word characters with '-', collapses runs, trims
// edges, and caps the result at 64 chars (spec §4.10).
func safe(s string) string {
	out := nonWord.ReplaceAllString(s, "-")
	out = strings.Trim(out, "-")
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

func cachePathFor(task, primaryType, key string) string {
	now := time.Now().UTC()
	safeTask := safe(task)
	if len(safeTask) > 30 {
		safeTask = safeTask[:30]
	}
	return fmt.Sprintf("oracle-cache/summaries/%s/%s/%s-%s.md",
		primaryType, now.Format("2006-01-02"), safeTask, key)
}

func leadParagraph(body string, max int) string {
	trimmed := strings.TrimSpace(body)
	if idx := strings.Index(trimmed, "\n\n"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	trimmed = strings.TrimSpace(trimmed)
	if len(trimmed) > max {
		trimmed = trimmed[:max]
	}
	return trimmed
}

func capitalise(s string) string {
	if s == "" {
		return s
	}
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
