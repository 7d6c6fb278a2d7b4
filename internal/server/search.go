package server

import (
	"net/http"
	"strings"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
)

// handleSearch implements GET /api/search?q=…&limit=… (spec §4.5/§4.12).
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	q := r.URL.Query().Get("q")
	if q == "" {
		writeErr(w, apperr.Validation("missing query parameter q"))
		return
	}
	limit := parseLimit(r, 20, 100)
	results, err := s.search.Search(tenant, q, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, results)
}

// handleBacklinks implements GET /api/backlinks/{path}.
func (s *Server) handleBacklinks(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	path, err := notePath(r, "/api/backlinks/")
	if err != nil {
		writeErr(w, err)
		return
	}
	path = strings.TrimSuffix(path, "/")
	results, err := s.search.Backlinks(tenant, path)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, results)
}

// handleTags implements GET /api/tags.
func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	tags, err := s.search.Tags(tenant)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, tags)
}

// handleGraph implements GET /api/graph: derives nodes/edges from
// note_metadata + note_links (spec §3, §4.12).
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	nodes, edges, err := s.search.Graph(tenant)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"nodes": nodes, "edges": edges})
}
