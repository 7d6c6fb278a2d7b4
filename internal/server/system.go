package server

import (
	"net/http"
	"time"

	"github.com/bigwolfeman/document-mcp/internal/index"
)

// handleSystemStatus implements GET /api/system/status (C13, spec.md §4.C
// "schema version, tool-manifest version, uptime") — a harmless ambient
// endpoint the distillation dropped and the expansion restores.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"schema_version":        index.SchemaVersion(),
		"tool_manifest_version": s.disp.ManifestVersion(),
		"uptime_seconds":        time.Since(s.startedAt).Seconds(),
	})
}
