package server

import (
	"context"
	"fmt"
	"net/http"

	gosdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
)

// buildMCPServer tunnels C8's dynamic registry (scoped to "oracle", spec
// §4.12) onto a go-sdk *mcp.Server, grounded on the teacher's
// internal/mcp/server.go mcp.AddTool(server, &mcp.Tool{...}, handler)
// registration shape and textResult helper — generalised from the
// teacher's fixed compile-time tool set to C8's runtime manifest, since
// the tool set here is the oracle-scoped subset of a registry built at
// startup rather than a handful of named functions.
func (s *Server) buildMCPServer(tenant string) *gosdkmcp.Server {
	srv := gosdkmcp.NewServer(&gosdkmcp.Implementation{Name: "vault", Version: "1"}, nil)

	for _, entry := range s.disp.Manifest() {
		scopes, _ := entry["agent_scope"].([]string)
		if !containsScope(scopes, "oracle") {
			continue
		}
		name := fmt.Sprint(entry["name"])
		desc := fmt.Sprint(entry["description"])

		gosdkmcp.AddTool(srv, &gosdkmcp.Tool{
			Name:        name,
			Description: desc,
		}, func(ctx context.Context, req *gosdkmcp.CallToolRequest, input map[string]any) (*gosdkmcp.CallToolResult, any, error) {
			raw := s.disp.Execute(ctx, name, input, tenant, 0)
			return mcpTextResult(string(raw)), nil, nil
		})
	}
	return srv
}

func containsScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

func mcpTextResult(text string) *gosdkmcp.CallToolResult {
	return &gosdkmcp.CallToolResult{
		Content: []gosdkmcp.Content{&gosdkmcp.TextContent{Text: text}},
	}
}

// ServeStdio runs the MCP tunnel over stdio — a long-lived process, one
// session for one tenant, used by CLI-style MCP clients (spec §4.12
// "both stdio and streamable HTTP").
func (s *Server) ServeStdio(ctx context.Context, tenant string) error {
	srv := s.buildMCPServer(tenant)
	return srv.Run(ctx, &gosdkmcp.StdioTransport{})
}

// handleMCPHTTP implements the streamable-HTTP transport of the single
// MCP endpoint: stateless, request-scoped sessions, one fresh *mcp.Server
// built per tenant per request (spec §4.12's "stateless request-scoped
// sessions" — there is no cross-request MCP session state to leak
// between tenants).
func (s *Server) handleMCPHTTP(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	handler := gosdkmcp.NewStreamableHTTPHandler(func(*http.Request) *gosdkmcp.Server {
		return s.buildMCPServer(tenant)
	}, nil)
	handler.ServeHTTP(w, r)
}

// mcpManifest exposes C8's manifest shape directly for non-MCP callers
// that just want the {name, description, agent_scope, parameters}
// document spec §6 describes, without speaking JSON-RPC.
func (s *Server) mcpManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, apperr.Validation("method not allowed"))
		return
	}
	writeJSON(w, s.disp.Manifest())
}
