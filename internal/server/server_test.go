package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigwolfeman/document-mcp/internal/auth"
	"github.com/bigwolfeman/document-mcp/internal/config"
	"github.com/bigwolfeman/document-mcp/internal/contexttree"
	"github.com/bigwolfeman/document-mcp/internal/index"
	"github.com/bigwolfeman/document-mcp/internal/librarian"
	"github.com/bigwolfeman/document-mcp/internal/logx"
	"github.com/bigwolfeman/document-mcp/internal/oracle"
	"github.com/bigwolfeman/document-mcp/internal/search"
	"github.com/bigwolfeman/document-mcp/internal/tools"
	"github.com/bigwolfeman/document-mcp/internal/vault"
)

type noToolsProvider struct{}

func (noToolsProvider) Name() string { return "fake" }
func (noToolsProvider) GenerateWithTools(ctx context.Context, model string, messages []oracle.Message, t []oracle.ToolSchema, maxTokens int) (oracle.GenerateResult, error) {
	return oracle.GenerateResult{Content: "done", FinishReason: "stop"}, nil
}
func (noToolsProvider) Generate(ctx context.Context, model string, messages []oracle.Message, maxTokens int, temperature float64) (oracle.GenerateResult, error) {
	return oracle.GenerateResult{Content: "summary"}, nil
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	v := vault.New(dir)
	const tenant = "t1"
	if err := v.Initialise(tenant); err != nil {
		t.Fatalf("initialise vault: %v", err)
	}
	db, err := index.OpenMemory()
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	idx := index.NewIndexer(db, v)
	se := search.New(db)
	tree := contexttree.New(db)

	cfg := config.Defaults()
	cfg.Auth.DevTenant = tenant
	authSvc := auth.New(cfg)

	disp := tools.NewDispatcher(cfg.Tools.DefaultTimeout)
	agent := oracle.New(noToolsProvider{}, disp, tree, db, logx.New("test"))
	lib := librarian.New(v, idx, noToolsProvider{}, "", 0)

	return New(cfg, v, idx, se, tree, authSvc, disp, agent, lib, logx.New("test")), tenant
}

func authedRequest(t *testing.T, srv *Server, tenant, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	token, _, err := srv.authSvc.Issue(tenant, 0)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestNotesCreateReadRoundTrip(t *testing.T) {
	srv, tenant := newTestServer(t)
	h := srv.Handler()

	req := authedRequest(t, srv, tenant, http.MethodPost, "/api/notes", map[string]any{
		"path": "notes/hello.md", "content": "# Hello\n\nWorld.",
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created noteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1 on first write, got %d", created.Version)
	}
	if created.Title == "" {
		t.Fatalf("expected a derived title")
	}

	getReq := authedRequest(t, srv, tenant, http.MethodGet, "/api/notes/notes/hello.md", nil)
	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", getRec.Code, getRec.Body.String())
	}
	var got noteResponse
	if err := json.Unmarshal(getRec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if got.Body != "# Hello\n\nWorld." {
		t.Fatalf("body mismatch: %q", got.Body)
	}
}

func TestNoteUpdateVersionConflictOnStaleIfVersion(t *testing.T) {
	srv, tenant := newTestServer(t)
	h := srv.Handler()

	createReq := authedRequest(t, srv, tenant, http.MethodPost, "/api/notes", map[string]any{
		"path": "notes/a.md", "content": "v1",
	})
	createRec := httptest.NewRecorder()
	h.ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", createRec.Code)
	}

	staleReq := authedRequest(t, srv, tenant, http.MethodPut, "/api/notes/notes/a.md", map[string]any{
		"content": "v2", "if_version": 99,
	})
	staleRec := httptest.NewRecorder()
	h.ServeHTTP(staleRec, staleReq)
	if staleRec.Code != http.StatusConflict {
		t.Fatalf("expected 409 version_conflict, got %d: %s", staleRec.Code, staleRec.Body.String())
	}
	var body map[string]any
	json.Unmarshal(staleRec.Body.Bytes(), &body)
	if body["error"] != "version_conflict" {
		t.Fatalf("expected error=version_conflict, got %+v", body)
	}

	okReq := authedRequest(t, srv, tenant, http.MethodPut, "/api/notes/notes/a.md", map[string]any{
		"content": "v2", "if_version": 1,
	})
	okRec := httptest.NewRecorder()
	h.ServeHTTP(okRec, okReq)
	if okRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on correct if_version, got %d: %s", okRec.Code, okRec.Body.String())
	}
}

func TestSearchRequiresQueryParam(t *testing.T) {
	srv, tenant := newTestServer(t)
	h := srv.Handler()

	req := authedRequest(t, srv, tenant, http.MethodGet, "/api/search", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing q, got %d", rec.Code)
	}
}

func TestRequestWithoutBearerIsUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", rec.Code)
	}
}

func TestDemoTokenEndpointRequiresNoAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/demo/token", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from the unauthenticated demo token endpoint, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode demo token response: %v", err)
	}
	if body["token"] == "" || body["token"] == nil {
		t.Fatalf("expected a token in the demo response, got %+v", body)
	}
}

func TestIndexHealthReflectsWrites(t *testing.T) {
	srv, tenant := newTestServer(t)
	h := srv.Handler()

	createReq := authedRequest(t, srv, tenant, http.MethodPost, "/api/notes", map[string]any{
		"path": "notes/a.md", "content": "content",
	})
	h.ServeHTTP(httptest.NewRecorder(), createReq)

	healthReq := authedRequest(t, srv, tenant, http.MethodGet, "/api/index/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, healthReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var health map[string]any
	json.Unmarshal(rec.Body.Bytes(), &health)
	if count, _ := health["NoteCount"].(float64); count != 1 {
		t.Fatalf("expected note_count 1, got %+v", health)
	}
}

func TestOracleNonStreamingEndToEnd(t *testing.T) {
	srv, tenant := newTestServer(t)
	h := srv.Handler()

	req := authedRequest(t, srv, tenant, http.MethodPost, "/api/oracle", map[string]any{
		"question": "what is in my vault?",
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("oracle status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Chunks []oracle.Chunk `json:"chunks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode oracle response: %v", err)
	}
	var gotDone bool
	for _, c := range body.Chunks {
		if c.Type == "done" {
			gotDone = true
		}
	}
	if !gotDone {
		t.Fatalf("expected a done chunk, got %+v", body.Chunks)
	}
}
