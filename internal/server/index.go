package server

import "net/http"

// handleIndexHealth implements GET /api/index/health (spec §4.13).
func (s *Server) handleIndexHealth(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	h, err := s.idx.Health(tenant)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, h)
}

// handleIndexRebuild implements POST /api/index/rebuild: a synchronous,
// idempotent full reindex (spec §5's rebuild-reconciles-inconsistency
// requirement).
func (s *Server) handleIndexRebuild(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	count, err := s.idx.Rebuild(tenant)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"indexed": count})
}
