// Package tools implements C8: a static registry of named tool handlers,
// JSON-schema manifest, per-tool timeouts, and concurrent execute_batch
// preserving input order (spec §4.8). Grounded on the teacher's
// internal/mcp/server.go mcp.AddTool registration shape and its
// per-tool rate-limiting/size-constant idiom.
package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Handler executes one tool call. Handlers never return a raw error up
// through the dispatcher in a way that aborts the batch — Execute/
// ExecuteBatch always convert a handler error into the {"error": ...}
// JSON shape spec §4.8/§7 describes; the handler signature still returns
// error for ordinary Go control flow within the handler body.
type Handler func(ctx context.Context, tenant string, args map[string]any) (any, error)

// Tool is one registry entry.
type Tool struct {
	Name        string
	Description string
	AgentScope  []string // e.g. {"oracle"}, {"librarian"}, {"oracle","librarian"}
	Schema      map[string]any
	Timeout     time.Duration
	Handler     Handler
}

func (t *Tool) scoped(agent string) bool {
	for _, s := range t.AgentScope {
		if s == agent {
			return true
		}
	}
	return false
}

// Dispatcher holds the static registry.
type Dispatcher struct {
	tools          map[string]*Tool
	defaultTimeout time.Duration
}

func NewDispatcher(defaultTimeout time.Duration) *Dispatcher {
	return &Dispatcher{tools: map[string]*Tool{}, defaultTimeout: defaultTimeout}
}

// Register adds a tool to the static registry. Called once at startup.
func (d *Dispatcher) Register(t *Tool) {
	if t.Timeout <= 0 {
		t.Timeout = d.defaultTimeout
	}
	d.tools[t.Name] = t
}

// Call is one input to ExecuteBatch.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Execute wraps the handler with its effective timeout. Never raises: a
// timeout, panic, or handler error all become a JSON-serialisable result
// (spec §4.8).
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any, tenant string, timeout time.Duration) json.RawMessage {
	tool, ok := d.tools[name]
	if !ok {
		return mustJSON(map[string]any{"error": fmt.Sprintf("Unknown tool: %s", name)})
	}
	effective := tool.Timeout
	if timeout > 0 {
		effective = timeout
	}

	callCtx, cancel := context.WithTimeout(ctx, effective)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := tool.Handler(callCtx, tenant, args)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-callCtx.Done():
		return mustJSON(map[string]any{
			"error":     fmt.Sprintf("%s timed out after %ds; consider narrower scope", name, int(effective.Seconds())),
			"timed_out": true,
			"timeout":   effective.Seconds(),
			"tool":      name,
		})
	case o := <-done:
		if o.err != nil {
			return mustJSON(map[string]any{"error": o.err.Error()})
		}
		return mustJSON(o.result)
	}
}

// ExecuteBatch runs all calls concurrently, preserves input order in the
// output vector, and never lets one call's failure affect another
// (invariants 10/11).
func (d *Dispatcher) ExecuteBatch(ctx context.Context, calls []Call, tenant string, timeout time.Duration) []json.RawMessage {
	results := make([]json.RawMessage, len(calls))
	done := make(chan struct{}, len(calls))

	for i, c := range calls {
		i, c := i, c
		go func() {
			defer func() { done <- struct{}{} }()
			results[i] = d.Execute(ctx, c.Name, c.Args, tenant, timeout)
		}()
	}
	for range calls {
		<-done
	}
	return results
}

// GetToolSchemas returns the subset of the manifest tagged for agent, in
// the format an LLM provider expects ({name, description, parameters}).
func (d *Dispatcher) GetToolSchemas(agent string) []map[string]any {
	var names []string
	for name, t := range d.tools {
		if t.scoped(agent) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		t := d.tools[name]
		out = append(out, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Schema,
		})
	}
	return out
}

// Manifest returns the full {name, description, agent_scope, parameters}
// document (spec §6 "MCP tools manifest").
func (d *Dispatcher) Manifest() []map[string]any {
	var names []string
	for name := range d.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		t := d.tools[name]
		out = append(out, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"agent_scope": t.AgentScope,
			"parameters":  t.Schema,
		})
	}
	return out
}

// ManifestVersion is a short fingerprint of the registered tool set (name
// + description per tool, sorted), for GET /api/system/status (spec.md
// §4.C's "tool-manifest version"). It changes whenever a tool is added,
// removed, or redescribed.
func (d *Dispatcher) ManifestVersion() string {
	var names []string
	for name := range d.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		t := d.tools[name]
		h.Write([]byte(name))
		h.Write([]byte{'|'})
		h.Write([]byte(t.Description))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]any{"error": "failed to serialise tool result"})
	}
	return b
}
