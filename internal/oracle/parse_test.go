package oracle

import "testing"

func TestParseXMLToolCallsBasic(t *testing.T) {
	content := `Let me check that.
<function_calls>
<invoke name="vault_read">
<parameter name="path">notes/intro.md</parameter>
</invoke>
</function_calls>`

	calls := parseXMLToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "vault_read" {
		t.Fatalf("name = %s", calls[0].Name)
	}
	if calls[0].Arguments["path"] != "notes/intro.md" {
		t.Fatalf("path arg = %v", calls[0].Arguments["path"])
	}
}

func TestParseXMLToolCallsCoercion(t *testing.T) {
	content := `<function_calls>
<invoke name="vault_search">
<parameter name="query">foo</parameter>
<parameter name="limit">10</parameter>
<parameter name="include_archived">true</parameter>
<parameter name="tags">["a","b"]</parameter>
</invoke>
</function_calls>`

	calls := parseXMLToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	args := calls[0].Arguments
	if v, ok := args["limit"].(int); !ok || v != 10 {
		t.Fatalf("limit = %#v, want int 10", args["limit"])
	}
	if v, ok := args["include_archived"].(bool); !ok || v != true {
		t.Fatalf("include_archived = %#v, want true", args["include_archived"])
	}
	tags, ok := args["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Fatalf("tags = %#v, want 2-elem array", args["tags"])
	}
}

func TestParseXMLToolCallsNoBlockReturnsNil(t *testing.T) {
	if calls := parseXMLToolCalls("just plain text, no calls here"); calls != nil {
		t.Fatalf("expected nil, got %#v", calls)
	}
}

func TestParseXMLToolCallsMultipleInvokes(t *testing.T) {
	content := `<function_calls>
<invoke name="a"><parameter name="x">1</parameter></invoke>
<invoke name="b"><parameter name="y">2</parameter></invoke>
</function_calls>`
	calls := parseXMLToolCalls(content)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Name != "a" || calls[1].Name != "b" {
		t.Fatalf("unexpected call names: %+v", calls)
	}
}

func TestStripFunctionCallsBlock(t *testing.T) {
	content := "before\n<function_calls><invoke name=\"x\"></invoke></function_calls>\nafter"
	stripped := stripFunctionCallsBlock(content)
	if stripped != "before\n\nafter" && stripped != "before\nafter" {
		t.Fatalf("unexpected stripped content: %q", stripped)
	}
}
