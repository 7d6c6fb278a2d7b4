package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/bigwolfeman/document-mcp/internal/logx"
	"github.com/bigwolfeman/document-mcp/internal/tools"
)

// fakeProvider scripts a fixed sequence of GenerateResult responses, one
// per call, to drive the loop through tool_calls then stop.
type fakeProvider struct {
	responses []GenerateResult
	calls     int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) GenerateWithTools(ctx context.Context, model string, messages []Message, toolSchemas []ToolSchema, maxTokens int) (GenerateResult, error) {
	if f.calls >= len(f.responses) {
		return GenerateResult{Content: "done", FinishReason: "stop"}, nil
	}
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

func (f *fakeProvider) Generate(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (GenerateResult, error) {
	return f.GenerateWithTools(ctx, model, messages, nil, maxTokens)
}

func newDispatcherWithEcho() *tools.Dispatcher {
	d := tools.NewDispatcher(5 * time.Second)
	d.Register(&tools.Tool{
		Name:       "vault_search",
		AgentScope: []string{"oracle"},
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			return []map[string]any{{"path": "notes/a.md", "title": "A", "snippet": "hit", "score": 1.5}}, nil
		},
	})
	return d
}

func TestQueryStopsOnFirstContentOnlyResponse(t *testing.T) {
	p := &fakeProvider{responses: []GenerateResult{
		{Content: "the answer", FinishReason: "stop", TokensUsed: 42, ModelUsed: "test-model"},
	}}
	d := newDispatcherWithEcho()
	a := New(p, d, nil, nil, logx.New("test"))

	var chunks []Chunk
	a.Query(context.Background(), Query{Tenant: "t1", Question: "what is it?"}, func(c Chunk) {
		chunks = append(chunks, c)
	})

	if chunks[0].Type != "thinking" {
		t.Fatalf("first chunk should be thinking, got %s", chunks[0].Type)
	}
	last := chunks[len(chunks)-1]
	if last.Type != "done" || last.TokensUsed != 42 || last.ModelUsed != "test-model" {
		t.Fatalf("unexpected final chunk: %+v", last)
	}
}

func TestQueryDispatchesToolCallsAndContinuesLoop(t *testing.T) {
	p := &fakeProvider{responses: []GenerateResult{
		{
			ToolCalls:    []ToolCallRequest{{ID: "1", Name: "vault_search", Arguments: map[string]any{"query": "foo"}}},
			FinishReason: "tool_calls",
		},
		{Content: "found it", FinishReason: "stop", TokensUsed: 10, ModelUsed: "test-model"},
	}}
	d := newDispatcherWithEcho()
	a := New(p, d, nil, nil, logx.New("test"))

	var types []string
	var sawSource bool
	a.Query(context.Background(), Query{Tenant: "t1", Question: "find foo"}, func(c Chunk) {
		types = append(types, c.Type)
		if c.Type == "source" {
			sawSource = true
			if c.Source.Path != "notes/a.md" || c.Source.SourceType != "vault" {
				t.Fatalf("unexpected source: %+v", c.Source)
			}
		}
	})

	wantSeen := map[string]bool{"tool_call": false, "tool_result": false, "done": false}
	for _, ty := range types {
		if _, ok := wantSeen[ty]; ok {
			wantSeen[ty] = true
		}
	}
	for ty, seen := range wantSeen {
		if !seen {
			t.Fatalf("expected to see chunk type %q in %v", ty, types)
		}
	}
	if !sawSource {
		t.Fatalf("expected a source chunk from the vault_search citation")
	}
}

func TestQueryEmitsErrorAfterMaxTurns(t *testing.T) {
	responses := make([]GenerateResult, 0, MaxTurns)
	for i := 0; i < MaxTurns; i++ {
		responses = append(responses, GenerateResult{
			ToolCalls:    []ToolCallRequest{{ID: "1", Name: "vault_search", Arguments: map[string]any{"query": "x"}}},
			FinishReason: "tool_calls",
		})
	}
	p := &fakeProvider{responses: responses}
	d := newDispatcherWithEcho()
	a := New(p, d, nil, nil, logx.New("test"))

	var last Chunk
	a.Query(context.Background(), Query{Tenant: "t1", Question: "loop forever"}, func(c Chunk) {
		last = c
	})
	if last.Type != "error" || last.Error != "Maximum conversation turns reached" {
		t.Fatalf("unexpected final chunk: %+v", last)
	}
}

func TestQueryCancellationStopsBetweenTurns(t *testing.T) {
	p := &fakeProvider{responses: []GenerateResult{
		{ToolCalls: []ToolCallRequest{{ID: "1", Name: "vault_search", Arguments: map[string]any{}}}, FinishReason: "tool_calls"},
		{Content: "never reached", FinishReason: "stop"},
	}}
	d := newDispatcherWithEcho()
	a := New(p, d, nil, nil, logx.New("test"))

	var last Chunk
	a.Query(context.Background(), Query{Tenant: "t1", Question: "q"}, func(c Chunk) {
		if c.Type == "tool_call" {
			a.Cancel("t1") // arrives during the first turn
		}
		last = c
	})
	if last.Type != "error" || last.Error != "cancelled" {
		t.Fatalf("expected cancellation before the second turn, got %+v", last)
	}
}

func TestParseXMLFallbackWiresIntoQuery(t *testing.T) {
	p := &fakeProvider{responses: []GenerateResult{
		{
			Content: "Looking it up.\n<function_calls><invoke name=\"vault_search\"><parameter name=\"query\">foo</parameter></invoke></function_calls>",
		},
		{Content: "here you go", FinishReason: "stop"},
	}}
	d := newDispatcherWithEcho()
	a := New(p, d, nil, nil, logx.New("test"))

	var sawToolCall bool
	a.Query(context.Background(), Query{Tenant: "t1", Question: "q"}, func(c Chunk) {
		if c.Type == "tool_call" && c.ToolName == "vault_search" {
			sawToolCall = true
		}
	})
	if !sawToolCall {
		t.Fatalf("expected the XML-embedded call to be dispatched as a tool_call chunk")
	}
}
