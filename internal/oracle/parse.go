package oracle

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Some providers (and some prompts against providers that do support
// native tool-calling) emit calls as inline XML instead of populating the
// structured tool_use block. parseXMLToolCalls is the fallback parser
// spec §4.9 requires: it scans content for
//
//	<function_calls>
//	  <invoke name="X">
//	    <parameter name="k">v</parameter>
//	  </invoke>
//	</function_calls>
//
// and coerces each parameter value: a pure-integer string becomes an int,
// then valid JSON (which covers the boolean literals), else the raw
// string.
var (
	invokeRe    = regexp.MustCompile(`(?s)<invoke\s+name="([^"]+)">(.*?)</invoke>`)
	parameterRe = regexp.MustCompile(`(?s)<parameter\s+name="([^"]+)">(.*?)</parameter>`)
)

// ParsedCall is one XML-fallback-parsed invocation.
type ParsedCall struct {
	Name      string
	Arguments map[string]any
}

// parseXMLToolCalls extracts every <invoke> block from content. Returns
// nil if content has no <function_calls> block at all, so callers can
// tell "no fallback calls" apart from "calls with zero parameters".
func parseXMLToolCalls(content string) []ParsedCall {
	if !strings.Contains(content, "<function_calls>") {
		return nil
	}
	matches := invokeRe.FindAllStringSubmatch(content, -1)
	if matches == nil {
		return nil
	}
	calls := make([]ParsedCall, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		body := m[2]
		args := map[string]any{}
		for _, p := range parameterRe.FindAllStringSubmatch(body, -1) {
			key := p[1]
			raw := strings.TrimSpace(p[2])
			args[key] = coerceValue(raw)
		}
		calls = append(calls, ParsedCall{Name: name, Arguments: args})
	}
	return calls
}

// coerceValue applies spec §4.9's value-coercion order: a pure-integer
// string first (so it becomes an int rather than JSON's float64), then
// JSON (so arrays/objects/other numbers/booleans written as literal JSON
// round-trip correctly), then the bool literals, and finally the raw
// string unchanged.
func coerceValue(raw string) any {
	if isPureInteger(raw) {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}

func isPureInteger(s string) bool {
	if s == "" {
		return false
	}
	start := 0
	if s[0] == '-' {
		start = 1
	}
	if start == len(s) {
		return false
	}
	for _, c := range s[start:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// stripFunctionCallsBlock removes the <function_calls>...</function_calls>
// region from content so it is not echoed back to the user as prose once
// its calls have been extracted and dispatched.
func stripFunctionCallsBlock(content string) string {
	idx := strings.Index(content, "<function_calls>")
	if idx < 0 {
		return content
	}
	end := strings.Index(content, "</function_calls>")
	if end < 0 {
		return strings.TrimSpace(content[:idx])
	}
	end += len("</function_calls>")
	return strings.TrimSpace(content[:idx] + content[end:])
}
