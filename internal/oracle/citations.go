package oracle

import "encoding/json"

// extractCitations implements spec §4.9's per-tool citation table. It is
// deliberately lenient about shape: tool results are untyped JSON crossing
// the dispatcher boundary, so a missing field just yields its zero value
// rather than an error.
func extractCitations(toolName string, raw json.RawMessage) []Source {
	switch toolName {
	case "search_code":
		return fromList(raw, 5, func(m map[string]any) Source {
			return Source{
				Path:       str(m["file_path"]),
				SourceType: "code",
				Line:       int(num(m["line_start"])),
				Snippet:    truncate(str(m["content"]), 500),
				Score:      num(m["score"]),
			}
		})
	case "vault_search":
		return fromList(raw, 5, func(m map[string]any) Source {
			return Source{
				Path:       str(m["path"]),
				SourceType: "vault",
				Snippet:    str(m["snippet"]),
				Score:      num(m["score"]),
			}
		})
	case "vault_read":
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil
		}
		if _, isErr := m["error"]; isErr {
			return nil
		}
		return []Source{{
			Path:       str(m["path"]),
			SourceType: "vault",
			Snippet:    truncate(str(m["content"]), 500),
		}}
	case "thread_read", "thread_seek":
		return fromList(raw, 5, func(m map[string]any) Source {
			return Source{
				Path:       "thread:" + str(m["thread_id"]),
				SourceType: "thread",
				Snippet:    str(m["content"]),
				Score:      num(m["score"]),
			}
		})
	default:
		return nil
	}
}

func fromList(raw json.RawMessage, limit int, build func(map[string]any) Source) []Source {
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]Source, 0, len(list))
	for _, m := range list {
		if _, isErr := m["error"]; isErr {
			continue
		}
		out = append(out, build(m))
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
