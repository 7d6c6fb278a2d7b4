package vault

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/adrg/frontmatter"
	"github.com/bigwolfeman/document-mcp/internal/apperr"
	yaml "go.yaml.in/yaml/v3"
)

// MaxBodyBytes is the §3 invariant: body <=1 MiB after UTF-8 encoding.
const MaxBodyBytes = 1 << 20

// Metadata is the frontmatter mapping described in spec §3: string keys,
// YAML-serialisable values. "version" is reserved and rejected.
type Metadata map[string]any

// Parse accepts a file's raw bytes with or without a "---" YAML preamble
// (spec §4.1) and returns the metadata map and body, grounded on the
// teacher's adrg/frontmatter ParseNote (internal/indexer/frontmatter.go),
// generalised from a fixed struct to an open metadata map.
func Parse(fileBytes []byte) (Metadata, string, error) {
	var meta map[string]any
	rest, err := frontmatter.Parse(bytes.NewReader(fileBytes), &meta)
	if err != nil {
		// No (or malformed) preamble: treat the whole file as body, per
		// spec §4.1 "must accept files with or without a preamble".
		return Metadata{}, string(fileBytes), nil
	}
	if meta == nil {
		meta = map[string]any{}
	}
	if _, reserved := meta["version"]; reserved {
		return nil, "", apperr.New(apperr.KindValidation, "metadata_reserved_key: \"version\" must not appear in frontmatter")
	}
	if tagsRaw, ok := meta["tags"]; ok {
		if _, ok := normaliseTagsField(tagsRaw); !ok {
			return nil, "", apperr.New(apperr.KindValidation, "metadata_invalid: tags must be a sequence of strings")
		}
	}
	return Metadata(meta), string(rest), nil
}

func normaliseTagsField(raw any) ([]string, bool) {
	seq, ok := raw.([]any)
	if !ok {
		if strs, ok := raw.([]string); ok {
			return strs, true
		}
		return nil, false
	}
	out := make([]string, 0, len(seq))
	for _, v := range seq {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Serialise emits a "---"-delimited YAML block when metadata is non-empty,
// omitting it otherwise, preserving body bytes verbatim after the closing
// delimiter (spec §4.1). Key order is stabilised so repeated serialisation
// of the same map is byte-identical (spec §9's "structural comparisons").
func Serialise(meta Metadata, body string) ([]byte, error) {
	if len(meta) == 0 {
		return []byte(body), nil
	}
	if _, reserved := meta["version"]; reserved {
		return nil, apperr.New(apperr.KindValidation, "metadata_reserved_key: \"version\" must not appear in frontmatter")
	}

	ordered := orderedMap(meta)
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(ordered); err != nil {
		return nil, apperr.Internal("failed to encode frontmatter", err)
	}
	enc.Close()

	var out bytes.Buffer
	out.WriteString("---\n")
	out.Write(buf.Bytes())
	out.WriteString("---\n")
	out.WriteString(body)
	return out.Bytes(), nil
}

// orderedMap builds a yaml mapping node with a deterministic key ordering:
// "title" and "tags" lead (the keys readers/tests care most about), the
// rest follow alphabetically.
func orderedMap(meta Metadata) *yaml.Node {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		rank := func(k string) int {
			switch k {
			case "title":
				return 0
			case "tags":
				return 1
			default:
				return 2
			}
		}
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})

	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: k}
		valNode := &yaml.Node{}
		_ = valNode.Encode(meta[k])
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node
}

// DeriveTitle applies spec §3's derivation order: frontmatter title, then
// the first H1, then the filename stem with "-"/"_" replaced by spaces.
func DeriveTitle(path string, meta Metadata, body string) string {
	if t, ok := meta["title"]; ok {
		if s, ok := t.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			if h := strings.TrimSpace(strings.TrimPrefix(trimmed, "# ")); h != "" {
				return h
			}
		}
	}
	stem := path
	if idx := strings.LastIndex(stem, "/"); idx >= 0 {
		stem = stem[idx+1:]
	}
	stem = strings.TrimSuffix(stem, ".md")
	stem = strings.Map(func(r rune) rune {
		if r == '-' || r == '_' {
			return ' '
		}
		return r
	}, stem)
	stem = strings.TrimSpace(stem)
	if stem == "" {
		return "Untitled"
	}
	return titleCase(stem)
}

// titleCase capitalises the first letter of the filename-derived stem,
// matching S1's "a/b.md" -> title "B" expectation.
func titleCase(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// ValidateBody enforces the <=1 MiB body size invariant from spec §3.
func ValidateBody(body string) error {
	if len(body) > MaxBodyBytes {
		return apperr.PayloadTooLarge(fmt.Sprintf("body_too_large: body exceeds %d bytes", MaxBodyBytes))
	}
	return nil
}
