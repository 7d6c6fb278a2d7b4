// Package wikilink implements C6: [[text]] extraction and slug-based
// resolution with deterministic same-folder-preference tie-breaking
// (spec §4.6). Grounded on the teacher's general use of regexp for
// structural extraction (internal/indexer/indexer.go's heading regex);
// no wikilink-slug library appears anywhere in the examples corpus.
package wikilink

import (
	"path"
	"regexp"
	"sort"
	"strings"
)

var linkPattern = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)

// Link is one extracted, not-yet-resolved wikilink occurrence.
type Link struct {
	Text string
}

// Extract returns the unique (first-occurrence order) [[text]] occurrences
// in body, per spec §3's Wikilink entity ("ordered-then-deduplicated").
func Extract(body string) []Link {
	matches := linkPattern.FindAllStringSubmatch(body, -1)
	seen := make(map[string]bool, len(matches))
	var out []Link
	for _, m := range matches {
		text := strings.TrimSpace(m[1])
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, Link{Text: text})
	}
	return out
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
var slugDashes = regexp.MustCompile(`-+`)
var slugWhitespaceOrUnderscore = regexp.MustCompile(`[\s_]+`)

// Slug normalises text per spec §4.6: lowercase; runs of whitespace or "_"
// become "-"; characters outside [a-z0-9-] are dropped; repeated "-" are
// collapsed; leading/trailing "-" are trimmed. Pure function (invariant 9).
func Slug(text string) string {
	s := strings.ToLower(text)
	s = slugWhitespaceOrUnderscore.ReplaceAllString(s, "-")
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Candidate is a note eligible to resolve a wikilink: whatever the index
// store knows about title_slug/path_slug for one (tenant, path).
type Candidate struct {
	Path      string
	TitleSlug string
	PathSlug  string
}

// Resolve picks the target for link text `t` written inside a note at
// srcPath, per spec §4.6: gather every candidate whose title_slug or
// path_slug equals slug(t); same-folder wins; ties break lexicographically
// by path. Returns ("", false) when unresolved.
func Resolve(srcPath string, t string, candidates []Candidate) (string, bool) {
	target := Slug(t)
	if target == "" {
		return "", false
	}
	srcDir := path.Dir(srcPath)

	var matches []Candidate
	for _, c := range candidates {
		if c.TitleSlug == target || c.PathSlug == target {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return "", false
	}

	sort.Slice(matches, func(i, j int) bool {
		keyI := path.Dir(matches[i].Path) != srcDir // false = same folder, sorts first
		keyJ := path.Dir(matches[j].Path) != srcDir
		if keyI != keyJ {
			return !keyI
		}
		return matches[i].Path < matches[j].Path
	})
	return matches[0].Path, true
}

// PathSlug derives the path_slug used for note_metadata rows: the slug of
// the path without its .md suffix, folder separators included as dashes.
func PathSlug(p string) string {
	stem := strings.TrimSuffix(p, ".md")
	stem = strings.ReplaceAll(stem, "/", "-")
	return Slug(stem)
}
