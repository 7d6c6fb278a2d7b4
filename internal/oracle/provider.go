// Package oracle implements C9: the LLM-driven agent loop that dispatches
// model-requested tool calls with per-tool timeouts, collects citations,
// and streams chunks to the caller (spec §4.9). Grounded on the teacher's
// internal/llm/client.go Client interface and provider-resolution idiom,
// extended with a tool-calling-capable provider grounded on
// steveyegge-beads/internal/compact/haiku.go's anthropic-sdk-go usage.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
)

// Message is a provider-agnostic chat message.
type Message struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCallID string // set on role=tool
	ToolCalls  []ToolCallRequest
}

// ToolCallRequest is one model-emitted tool invocation.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// GenerateResult is one provider round-trip's outcome.
type GenerateResult struct {
	Content      string
	ToolCalls    []ToolCallRequest
	FinishReason string // "stop" | "tool_calls" | "max_tokens"
	TokensUsed   int
	ModelUsed    string
}

// ToolSchema mirrors what Provider.GenerateWithTools needs to advertise
// tool-calling capability.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Provider is the "generate with tools" capability boundary spec §1
// treats as an external collaborator — the core only consumes this
// interface.
type Provider interface {
	GenerateWithTools(ctx context.Context, model string, messages []Message, tools []ToolSchema, maxTokens int) (GenerateResult, error)
	// Generate is a plain completion (no tool schemas) at an explicit
	// temperature, used by the Librarian subagent's lower-temperature
	// summarisation calls (spec §4.10).
	Generate(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (GenerateResult, error)
	Name() string
}

// AnthropicProvider implements Provider over anthropic-sdk-go, grounded on
// the teacher-sibling's haikuClient wrapper (steveyegge-beads), with
// retry-with-backoff via cenkalti/backoff/v4 in place of that file's
// hand-rolled callWithRetry loop.
type AnthropicProvider struct {
	client anthropic.Client
}

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) GenerateWithTools(ctx context.Context, model string, messages []Message, tools []ToolSchema, maxTokens int) (GenerateResult, error) {
	return p.generate(ctx, model, messages, tools, maxTokens, -1)
}

// Generate issues a plain completion at an explicit temperature (spec
// §4.10's lower-temperature summarisation calls) with no tool schemas.
func (p *AnthropicProvider) Generate(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (GenerateResult, error) {
	return p.generate(ctx, model, messages, nil, maxTokens, temperature)
}

// temperature < 0 means "use the provider default".
func (p *AnthropicProvider) generate(ctx context.Context, model string, messages []Message, tools []ToolSchema, maxTokens int, temperature float64) (GenerateResult, error) {
	var result GenerateResult

	operation := func() error {
		msgs := make([]anthropic.MessageParam, 0, len(messages))
		var system string
		for _, m := range messages {
			switch m.Role {
			case "system":
				system = m.Content
			case "user":
				msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			case "assistant":
				var blocks []anthropic.ContentBlockParamUnion
				if m.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(m.Content))
				}
				for _, tc := range m.ToolCalls {
					blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
				}
				msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
			case "tool":
				msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
			}
		}

		toolParams := make([]anthropic.ToolUnionParam, 0, len(tools))
		for _, t := range tools {
			toolParams = append(toolParams, anthropic.ToolUnionParam{
				OfTool: &anthropic.ToolParam{
					Name:        t.Name,
					Description: anthropic.String(t.Description),
					InputSchema: anthropic.ToolInputSchemaParam{Properties: t.Parameters["properties"]},
				},
			})
		}

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: int64(maxTokens),
			Messages:  msgs,
			Tools:     toolParams,
		}
		if system != "" {
			params.System = []anthropic.TextBlockParam{{Text: system}}
		}
		if temperature >= 0 {
			params.Temperature = anthropic.Float(temperature)
		}

		resp, err := p.client.Messages.New(ctx, params)
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		var content string
		var calls []ToolCallRequest
		for _, block := range resp.Content {
			switch b := block.AsAny().(type) {
			case anthropic.TextBlock:
				content += b.Text
			case anthropic.ToolUseBlock:
				var args map[string]any
				_ = json.Unmarshal(b.Input, &args)
				calls = append(calls, ToolCallRequest{ID: b.ID, Name: b.Name, Arguments: args})
			}
		}

		finish := "stop"
		if len(calls) > 0 {
			finish = "tool_calls"
		} else if string(resp.StopReason) == "max_tokens" {
			finish = "max_tokens"
		}

		result = GenerateResult{
			Content:      content,
			ToolCalls:    calls,
			FinishReason: finish,
			TokensUsed:   int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			ModelUsed:    model,
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return GenerateResult{}, apperr.BadGateway("oracle LLM provider call failed", err)
	}
	return result, nil
}

func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	}
	return false
}

// OllamaProvider is a local-dev fallback, adapted from the teacher's
// internal/ollama.Client (the single-prompt /api/generate call and its
// plain-HTTP error handling) into this package's Provider interface. The
// teacher's client took one flat prompt string; promptFromMessages below
// does the flattening the chat-style Provider interface needs.
type OllamaProvider struct {
	httpClient *http.Client
	baseURL    string
}

func NewOllamaProvider(baseURL string) *OllamaProvider {
	return &OllamaProvider{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    baseURL,
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

// GenerateWithTools for Ollama has no native tool-calling in this repo's
// scope; it returns content-only so the oracle loop's XML fallback parser
// (spec §4.9.b) is what picks up any tool calls the model emits as text.
func (p *OllamaProvider) GenerateWithTools(ctx context.Context, model string, messages []Message, tools []ToolSchema, maxTokens int) (GenerateResult, error) {
	return p.Generate(ctx, model, messages, maxTokens, 0)
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Generate sends only the model and the flattened prompt; maxTokens and
// temperature are not passed to Ollama, so its own defaults apply.
func (p *OllamaProvider) Generate(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (GenerateResult, error) {
	reqBody, err := json.Marshal(ollamaGenerateRequest{
		Model:  model,
		Prompt: promptFromMessages(messages),
		Stream: false,
	})
	if err != nil {
		return GenerateResult{}, apperr.Internal("failed to marshal ollama request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return GenerateResult{}, apperr.Internal("failed to build ollama request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return GenerateResult{}, apperr.Internal("ollama provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return GenerateResult{}, apperr.Internal(fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, body), nil)
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16*1024*1024)).Decode(&out); err != nil {
		return GenerateResult{}, apperr.Internal("failed to decode ollama response", err)
	}

	return GenerateResult{
		Content:      strings.TrimSpace(out.Response),
		FinishReason: "stop",
		ModelUsed:    model,
	}, nil
}

// promptFromMessages flattens a chat-style message list into the single
// prompt string Ollama's /api/generate expects (it has no separate chat
// endpoint in this repo's scope).
func promptFromMessages(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n\n", strings.ToUpper(m.Role), m.Content)
	}
	b.WriteString("ASSISTANT: ")
	return b.String()
}
