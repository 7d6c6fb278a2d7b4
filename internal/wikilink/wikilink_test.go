package wikilink

import "testing"

func TestExtractDedupesPreservingOrder(t *testing.T) {
	links := Extract("See [[Guide]] and [[Other]] and [[Guide]] again")
	if len(links) != 2 || links[0].Text != "Guide" || links[1].Text != "Other" {
		t.Fatalf("unexpected links: %+v", links)
	}
}

func TestSlugNormalisation(t *testing.T) {
	cases := map[string]string{
		"Hello World":  "hello-world",
		"foo_bar baz":  "foo-bar-baz",
		"  --Trim--  ": "trim",
		"Weird!!Chars": "weirdchars",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveSameFolderWins(t *testing.T) {
	candidates := []Candidate{
		{Path: "guide.md", TitleSlug: "guide", PathSlug: "guide"},
		{Path: "stuff/guide.md", TitleSlug: "guide", PathSlug: "stuff-guide"},
	}
	target, ok := Resolve("intro.md", "Guide", candidates)
	if !ok {
		t.Fatalf("expected resolution")
	}
	if target != "guide.md" {
		t.Fatalf("target = %q, want guide.md (root wins, same folder as intro.md + lexicographic)", target)
	}
}

func TestResolveUnresolvedWhenNoMatch(t *testing.T) {
	_, ok := Resolve("intro.md", "Nonexistent", nil)
	if ok {
		t.Fatalf("expected unresolved")
	}
}

func TestResolveDeterministic(t *testing.T) {
	candidates := []Candidate{
		{Path: "b/x.md", TitleSlug: "x", PathSlug: "b-x"},
		{Path: "a/x.md", TitleSlug: "x", PathSlug: "a-x"},
	}
	t1, _ := Resolve("root.md", "X", candidates)
	t2, _ := Resolve("root.md", "X", candidates)
	if t1 != t2 {
		t.Fatalf("resolution not deterministic: %q vs %q", t1, t2)
	}
}
