package server

import (
	"net/http"
	"time"
)

// handleDemoToken implements POST /api/demo/token, the one endpoint spec
// §4.12/§4.7 exempts from bearer auth: it issues a short-lived token for
// a fixed demo tenant so a new caller can try the API without a signed
// secret.
func (s *Server) handleDemoToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, map[string]any{"error": "method not allowed"})
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	const demoTTL = 15 * time.Minute
	token, expires, err := s.authSvc.Issue(s.cfg.Auth.DemoTenant, demoTTL)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"token": token, "tenant": s.cfg.Auth.DemoTenant, "expires_at": expires.UTC().Format(time.RFC3339)})
}

// handleIssueToken implements POST /api/tokens: the authenticated tenant
// mints a new bearer token for itself, optionally with a caller-supplied
// TTL in seconds (defaulting to the configured Auth.TokenTTL).
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	var body struct {
		TTLSeconds int64 `json:"ttl_seconds"`
	}
	_ = readJSON(r, &body) // an empty body is fine; defaults apply

	ttl := s.cfg.Auth.TokenTTL
	if body.TTLSeconds > 0 {
		ttl = time.Duration(body.TTLSeconds) * time.Second
	}
	token, expires, err := s.authSvc.Issue(tenant, ttl)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"token": token, "tenant": tenant, "expires_at": expires.UTC().Format(time.RFC3339)})
}

// handleMe implements GET /api/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"tenant": tenantFrom(r)})
}
