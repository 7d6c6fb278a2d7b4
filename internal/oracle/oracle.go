package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
	"github.com/bigwolfeman/document-mcp/internal/contexttree"
	"github.com/bigwolfeman/document-mcp/internal/index"
	"github.com/bigwolfeman/document-mcp/internal/logx"
	"github.com/bigwolfeman/document-mcp/internal/tools"
)

// defaultModel is used only when a tenant has never set
// tenant_settings.default_model (spec §4.10: derived from per-tenant
// settings, never hard-coded into the request path).
const defaultModel = "claude-sonnet-4-5"

// MaxTurns bounds the agent loop (spec §4.9 invariant 12).
const MaxTurns = 15

const systemPromptTemplate = `You are the Oracle, a research and editing agent over a personal
knowledge vault belonging to tenant %q (project %q). Use the available
tools to read, search, and write notes before answering. Cite what you
find. Prefer delegating heavy rewrites or multi-note reorganisation to
the Librarian tool.`

// Chunk is one unit of the Query stream (spec §4.9).
type Chunk struct {
	Type       string  `json:"type"` // thinking|content|tool_call|tool_result|source|done|error
	Content    string  `json:"content,omitempty"`
	ToolName   string  `json:"tool_name,omitempty"`
	ToolArgs   any     `json:"tool_args,omitempty"`
	ToolResult string  `json:"tool_result,omitempty"`
	Source     *Source `json:"source,omitempty"`
	TokensUsed int     `json:"tokens_used,omitempty"`
	ModelUsed  string  `json:"model_used,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Source is one extracted citation (spec §4.9 "Citations extraction").
type Source struct {
	Path       string  `json:"path"`
	SourceType string  `json:"source_type"` // code|vault|thread
	Line       int     `json:"line,omitempty"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score,omitempty"`
}

// Query is the inputs to one Oracle invocation. TreeRootID, when set,
// names the conversation tree this turn attaches to on completion
// (spec §4.9 "Context update"); when empty the turn runs without
// updating any tree.
type Query struct {
	Tenant     string
	Question   string
	Project    string
	Model      string
	Thinking   bool
	MaxTokens  int
	TreeRootID string
}

// Agent runs the tool-calling loop described in spec §4.9.
type Agent struct {
	provider   Provider
	dispatcher *tools.Dispatcher
	tree       *contexttree.Store
	db         *index.DB
	log        *logx.Logger

	mu        sync.Mutex
	cancelled map[string]bool // tenant -> cancellation requested
}

func New(provider Provider, dispatcher *tools.Dispatcher, tree *contexttree.Store, db *index.DB, log *logx.Logger) *Agent {
	return &Agent{
		provider:   provider,
		dispatcher: dispatcher,
		tree:       tree,
		db:         db,
		log:        log,
		cancelled:  map[string]bool{},
	}
}

// resolveModel picks q.Model when the caller specified one, else the
// tenant's stored default_model, else defaultModel (spec §4.10).
func (a *Agent) resolveModel(q Query) string {
	if q.Model != "" {
		return q.Model
	}
	if a.db != nil {
		if settings, ok, err := a.db.GetTenantSettings(q.Tenant); err == nil && ok && settings.DefaultModel != "" {
			return settings.DefaultModel
		}
	}
	return defaultModel
}

// Cancel signals the running session (if any) for tenant to stop at the
// next turn boundary or stream read (spec §4.9 "Cancellation").
func (a *Agent) Cancel(tenant string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelled[tenant] = true
}

func (a *Agent) checkCancelled(tenant string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled[tenant]
}

func (a *Agent) clearCancelled(tenant string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cancelled, tenant)
}

// Query runs the agent loop, sending chunks to emit until the stream
// ends (either via "done" or "error" chunk, both terminal).
func (a *Agent) Query(ctx context.Context, q Query, emit func(Chunk)) {
	a.clearCancelled(q.Tenant)
	defer a.clearCancelled(q.Tenant)

	if q.MaxTokens <= 0 {
		q.MaxTokens = 4000
	}
	model := a.resolveModel(q)

	messages := []Message{
		{Role: "system", Content: fmt.Sprintf(systemPromptTemplate, q.Tenant, q.Project)},
		{Role: "user", Content: q.Question},
	}

	emit(Chunk{Type: "thinking"})

	toolSchemas := a.dispatcher.GetToolSchemas("oracle")
	providerTools := make([]ToolSchema, 0, len(toolSchemas))
	for _, t := range toolSchemas {
		providerTools = append(providerTools, ToolSchema{
			Name:        fmt.Sprint(t["name"]),
			Description: fmt.Sprint(t["description"]),
			Parameters:  toMapAny(t["parameters"]),
		})
	}

	var citations []Source
	var totalTokens int
	var modelUsed string
	var finalContent strings.Builder
	var toolCallLog []contexttree.ToolCall

	for turn := 0; turn < MaxTurns; turn++ {
		if a.checkCancelled(q.Tenant) {
			emit(Chunk{Type: "error", Error: "cancelled"})
			return
		}

		result, err := a.provider.GenerateWithTools(ctx, model, messages, providerTools, q.MaxTokens)
		if err != nil {
			emit(Chunk{Type: "error", Error: apperr.As(err).Message})
			return
		}
		totalTokens += result.TokensUsed
		modelUsed = result.ModelUsed

		if a.checkCancelled(q.Tenant) {
			emit(Chunk{Type: "error", Error: "cancelled"})
			return
		}

		content := result.Content
		calls := result.ToolCalls
		if len(calls) == 0 {
			if xmlCalls := parseXMLToolCalls(content); len(xmlCalls) > 0 {
				content = stripFunctionCallsBlock(content)
				for i, c := range xmlCalls {
					calls = append(calls, ToolCallRequest{
						ID:        fmt.Sprintf("xml_call_%d", i),
						Name:      c.Name,
						Arguments: c.Arguments,
					})
				}
			}
		}

		if content != "" {
			emit(Chunk{Type: "content", Content: content})
			finalContent.WriteString(content)
		}

		if len(calls) == 0 {
			for _, c := range citations {
				c := c
				emit(Chunk{Type: "source", Source: &c})
			}
			a.recordTurn(q, finalContent.String(), toolCallLog, totalTokens, modelUsed)
			emit(Chunk{Type: "done", TokensUsed: totalTokens, ModelUsed: modelUsed})
			return
		}

		assistantMsg := Message{Role: "assistant", Content: content, ToolCalls: calls}
		messages = append(messages, assistantMsg)

		batchCalls := make([]tools.Call, 0, len(calls))
		for _, c := range calls {
			emit(Chunk{Type: "tool_call", ToolName: c.Name, ToolArgs: c.Arguments})
			batchCalls = append(batchCalls, tools.Call{ID: c.ID, Name: c.Name, Args: c.Arguments})
		}

		results := a.dispatcher.ExecuteBatch(ctx, batchCalls, q.Tenant, 0)

		for i, raw := range results {
			call := calls[i]
			text := string(raw)
			emit(Chunk{Type: "tool_result", ToolName: call.Name, ToolResult: truncate(text, 1000)})
			citations = append(citations, extractCitations(call.Name, raw)...)
			messages = append(messages, Message{Role: "tool", ToolCallID: call.ID, Content: text})

			status := "ok"
			if strings.Contains(text, `"error"`) {
				status = "error"
			}
			toolCallLog = append(toolCallLog, contexttree.ToolCall{
				Name: call.Name, Status: status, Result: truncate(text, 1000),
			})
		}
	}

	emit(Chunk{Type: "error", Error: "Maximum conversation turns reached"})
}

// recordTurn implements spec §4.9's "Context update": append a
// ConversationNode as child of current HEAD, move HEAD, and prune if the
// tree has grown past its max_nodes budget. Failures here are logged but
// never surface to the caller — the answer has already been delivered.
func (a *Agent) recordTurn(q Query, answer string, calls []contexttree.ToolCall, tokensUsed int, modelUsed string) {
	if a.tree == nil || q.TreeRootID == "" {
		return
	}
	t, err := a.tree.GetTree(q.Tenant, q.TreeRootID)
	if err != nil {
		a.log.Warnf("oracle: failed to load conversation tree %s: %v", q.TreeRootID, err)
		return
	}
	if _, err := a.tree.CreateNode(q.Tenant, q.TreeRootID, t.CurrentNodeID, q.Project, q.Question, answer, calls, tokensUsed, modelUsed); err != nil {
		a.log.Warnf("oracle: failed to append conversation node: %v", err)
		return
	}
	if t.NodeCount+1 > t.MaxNodes {
		if removed, remaining, err := a.tree.PruneTree(q.Tenant, q.TreeRootID); err != nil {
			a.log.Warnf("oracle: failed to prune conversation tree: %v", err)
		} else {
			a.log.Infof("oracle: pruned tree %s (removed=%d remaining=%d)", q.TreeRootID, removed, remaining)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func toMapAny(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
