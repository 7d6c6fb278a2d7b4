package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestExecuteBatchPreservesOrderAndIsolatesFailures(t *testing.T) {
	d := NewDispatcher(5 * time.Second)
	d.Register(&Tool{
		Name: "ok_a", AgentScope: []string{"oracle"},
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			return map[string]any{"v": "a"}, nil
		},
	})
	d.Register(&Tool{
		Name: "fails", AgentScope: []string{"oracle"},
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			return nil, errString("boom")
		},
	})
	d.Register(&Tool{
		Name: "ok_b", AgentScope: []string{"oracle"},
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			return map[string]any{"v": "b"}, nil
		},
	})

	calls := []Call{{Name: "ok_a"}, {Name: "fails"}, {Name: "ok_b"}}
	results := d.ExecuteBatch(context.Background(), calls, "t1", 0)
	if len(results) != 3 {
		t.Fatalf("expected 3 results")
	}

	var a map[string]any
	json.Unmarshal(results[0], &a)
	if a["v"] != "a" {
		t.Fatalf("results[0] = %s, want ok_a's result", results[0])
	}
	var mid map[string]any
	json.Unmarshal(results[1], &mid)
	if mid["error"] != "boom" {
		t.Fatalf("results[1] = %s, want {error: boom}", results[1])
	}
	var b map[string]any
	json.Unmarshal(results[2], &b)
	if b["v"] != "b" {
		t.Fatalf("results[2] = %s, want ok_b's result", results[2])
	}
}

func TestExecuteTimeoutIsolated(t *testing.T) {
	d := NewDispatcher(5 * time.Second)
	d.Register(&Tool{
		Name: "slow", AgentScope: []string{"oracle"}, Timeout: 10 * time.Millisecond,
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	out := d.Execute(context.Background(), "slow", nil, "t1", 0)
	var m map[string]any
	json.Unmarshal(out, &m)
	if m["timed_out"] != true {
		t.Fatalf("expected timed_out=true, got %s", out)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	d := NewDispatcher(time.Second)
	out := d.Execute(context.Background(), "nope", nil, "t1", 0)
	var m map[string]any
	json.Unmarshal(out, &m)
	if m["error"] != "Unknown tool: nope" {
		t.Fatalf("got %s", out)
	}
}

func TestGetToolSchemasScopedByAgent(t *testing.T) {
	d := NewDispatcher(time.Second)
	d.Register(&Tool{Name: "oracle_only", AgentScope: []string{"oracle"}, Schema: map[string]any{}})
	d.Register(&Tool{Name: "librarian_only", AgentScope: []string{"librarian"}, Schema: map[string]any{}})

	oracleSchemas := d.GetToolSchemas("oracle")
	if len(oracleSchemas) != 1 || oracleSchemas[0]["name"] != "oracle_only" {
		t.Fatalf("unexpected oracle schemas: %+v", oracleSchemas)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
