// Package server implements C12: the HTTP/MCP façade over every other
// component, plus C13's health read. Grounded on the teacher's
// internal/web/server.go plain-net/http-mux routing, writeJSON/writeError
// helpers, and path-decode-validate middleware chain; the MCP tunnel is
// grounded on internal/mcp/server.go's tool-registration pattern, adapted
// to tunnel C8's dynamic registry instead of a fixed compile-time tool set.
//
// Unlike both teacher packages, this façade carries no package-level
// mutable state (spec §9's anti-global-mutable-state redesign flag) and
// does not restrict callers to localhost (spec §4.7 is bearer-token
// multi-tenant auth, not a local-only dashboard).
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

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

// Server wires every core component into handlers. It is built once per
// process and carries no mutable fields of its own beyond those of its
// dependencies (the oracle agent's per-tenant cancellation map, the index
// DB's serialised writer) — no façade-level globals.
type Server struct {
	cfg     config.Config
	vault   *vault.Store
	idx     *index.Indexer
	search  *search.Engine
	tree    *contexttree.Store
	authSvc *auth.Service
	disp    *tools.Dispatcher
	agent   *oracle.Agent
	lib     *librarian.Librarian
	log     *logx.Logger

	metrics   *metricsSet
	startedAt time.Time
}

// New builds a Server from already-constructed components (cmd/vaultd
// wires these in the teacher's cmd/same dependency-construction order:
// config -> vault -> index -> search/tools/oracle/librarian).
func New(cfg config.Config, v *vault.Store, idx *index.Indexer, se *search.Engine, tree *contexttree.Store,
	authSvc *auth.Service, disp *tools.Dispatcher, agent *oracle.Agent, lib *librarian.Librarian, log *logx.Logger) *Server {
	return &Server{
		cfg: cfg, vault: v, idx: idx, search: se, tree: tree,
		authSvc: authSvc, disp: disp, agent: agent, lib: lib, log: log,
		metrics:   newMetricsSet(),
		startedAt: time.Now(),
	}
}

// Handler builds the complete routed, middleware-wrapped http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(path string, h http.HandlerFunc) {
		mux.HandleFunc(path, s.withMetrics(path, h))
	}

	route("/api/demo/token", s.handleDemoToken)
	route("/api/tokens", s.withAuth(s.handleIssueToken))
	route("/api/me", s.withAuth(s.handleMe))

	route("/api/notes", s.withAuth(s.handleNotesCollection))
	route("/api/notes/", s.withAuth(s.handleNoteItem))
	route("/api/search", s.withAuth(s.handleSearch))
	route("/api/backlinks/", s.withAuth(s.handleBacklinks))
	route("/api/tags", s.withAuth(s.handleTags))
	route("/api/graph", s.withAuth(s.handleGraph))

	route("/api/index/health", s.withAuth(s.handleIndexHealth))
	route("/api/index/rebuild", s.withAuth(s.handleIndexRebuild))

	route("/api/system/status", s.withAuth(s.handleSystemStatus))

	route("/api/oracle", s.withAuth(s.handleOracle))
	route("/api/oracle/stream", s.withAuth(s.handleOracleStream))
	route("/api/oracle/cancel", s.withAuth(s.handleOracleCancel))
	route("/api/oracle/history", s.withAuth(s.handleOracleHistory))

	route("/api/trees", s.withAuth(s.handleTreesCollection))
	route("/api/trees/", s.withAuth(s.handleTreeItem))

	route("/mcp", s.withAuth(s.handleMCPHTTP))
	route("/api/mcp/manifest", s.withAuth(s.mcpManifest))
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	return securityHeaders(mux)
}

// securityHeaders mirrors the teacher's internal/web/server.go middleware
// (same header set), minus the localhost-only wrapper that package also
// carries — this façade is reached by many tenants over the network, not
// a single local dashboard user.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

type tenantKey struct{}

func tenantFrom(r *http.Request) string {
	v, _ := r.Context().Value(tenantKey{}).(string)
	return v
}

// withAuth extracts and verifies the bearer token via C7 on every
// endpoint except the two the spec exempts (demo token issuance is wired
// directly to handleDemoToken, never through withAuth).
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.authSvc.ExtractBearer(r.Header.Get("Authorization"))
		if err != nil {
			writeErr(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), tenantKey{}, tenant)
		next(w, r.WithContext(ctx))
	}
}
