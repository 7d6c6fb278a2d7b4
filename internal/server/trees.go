package server

import (
	"net/http"
	"strings"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
)

// handleTreesCollection implements GET/POST /api/trees: list trees for a
// project, or create one (spec §4.11).
func (s *Server) handleTreesCollection(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	switch r.Method {
	case http.MethodGet:
		project := r.URL.Query().Get("project")
		trees, err := s.tree.GetTrees(tenant, project)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, trees)

	case http.MethodPost:
		var body struct {
			Project  string  `json:"project"`
			Label    *string `json:"label"`
			MaxNodes int     `json:"max_nodes"`
		}
		if err := readJSON(r, &body); err != nil {
			writeErr(w, err)
			return
		}
		if body.MaxNodes <= 0 {
			body.MaxNodes = 30
		}
		t, err := s.tree.CreateTree(tenant, body.Project, body.Label, body.MaxNodes)
		if err != nil {
			writeErr(w, err)
			return
		}
		if err := s.tree.SetActiveTree(tenant, t.RootID); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, t)

	default:
		writeErr(w, apperr.Validation("method not allowed"))
	}
}

// handleTreeItem implements GET|DELETE /api/trees/{root_id} and the
// /api/trees/{root_id}/checkout, /api/trees/{root_id}/path,
// /api/trees/{root_id}/prune sub-resources (spec §4.11).
func (s *Server) handleTreeItem(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	rest := strings.TrimPrefix(r.URL.Path, "/api/trees/")
	parts := strings.SplitN(rest, "/", 2)
	rootID := parts[0]
	if rootID == "" {
		writeErr(w, apperr.Validation("missing tree root_id"))
		return
	}
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		t, err := s.tree.GetTree(tenant, rootID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, t)

	case sub == "" && r.Method == http.MethodDelete:
		if err := s.tree.DeleteTree(tenant, rootID); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case sub == "checkout" && r.Method == http.MethodPost:
		var body struct {
			NodeID string `json:"node_id"`
		}
		if err := readJSON(r, &body); err != nil {
			writeErr(w, err)
			return
		}
		if err := s.tree.Checkout(tenant, rootID, body.NodeID); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case sub == "path" && r.Method == http.MethodGet:
		ids, err := s.tree.PathToHead(tenant, rootID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"path": ids})

	case sub == "prune" && r.Method == http.MethodPost:
		removed, remaining, err := s.tree.PruneTree(tenant, rootID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"removed": removed, "remaining": remaining})

	default:
		writeErr(w, apperr.NotFound("route"))
	}
}
