package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
	"github.com/bigwolfeman/document-mcp/internal/oracle"
)

type oracleRequest struct {
	Question    string `json:"question"`
	Project     string `json:"project"`
	Model       string `json:"model"`
	Thinking    bool   `json:"thinking"`
	MaxTokens   int    `json:"max_tokens"`
	TreeRootID  string `json:"tree_root_id"`
}

func (s *Server) toQuery(tenant string, body oracleRequest) oracle.Query {
	return oracle.Query{
		Tenant: tenant, Question: body.Question, Project: body.Project,
		Model: body.Model, Thinking: body.Thinking, MaxTokens: body.MaxTokens,
		TreeRootID: body.TreeRootID,
	}
}

// handleOracle implements POST /api/oracle: runs the full Query loop and
// returns the accumulated chunks as one JSON document (spec §4.9/§4.12's
// "non-streaming" variant).
func (s *Server) handleOracle(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	var body oracleRequest
	if err := readJSON(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	if body.Question == "" {
		writeErr(w, apperr.Validation("question is required"))
		return
	}

	var chunks []oracle.Chunk
	s.agent.Query(r.Context(), s.toQuery(tenant, body), func(c oracle.Chunk) {
		chunks = append(chunks, c)
	})
	s.metrics.oracleTurns.Observe(float64(countTurns(chunks)))
	writeJSON(w, map[string]any{"chunks": chunks})
}

// handleOracleStream implements POST /api/oracle/stream over SSE, one
// JSON object per event per spec §6's chunk envelope.
func (s *Server) handleOracleStream(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	var body oracleRequest
	if err := readJSON(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	if body.Question == "" {
		writeErr(w, apperr.Validation("question is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, apperr.Internal("streaming unsupported by this response writer", nil))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	var chunks []oracle.Chunk
	s.agent.Query(r.Context(), s.toQuery(tenant, body), func(c oracle.Chunk) {
		chunks = append(chunks, c)
		payload, err := json.Marshal(c)
		if err != nil {
			return
		}
		fmt.Fprintf(bw, "data: %s\n\n", payload)
		bw.Flush()
		flusher.Flush()
	})
	s.metrics.oracleTurns.Observe(float64(countTurns(chunks)))
}

// handleOracleCancel implements POST /api/oracle/cancel: signals the
// per-tenant cooperative cancellation flag checked between turns (spec
// §4.9 "Cancellation").
func (s *Server) handleOracleCancel(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	s.agent.Cancel(tenant)
	writeJSON(w, map[string]any{"cancelled": true})
}

// handleOracleHistory implements GET|DELETE /api/oracle/history, backed
// by the active conversation tree's node path (spec §4.11's path_to_head).
func (s *Server) handleOracleHistory(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	project := r.URL.Query().Get("project")

	switch r.Method {
	case http.MethodGet:
		rootID, err := s.tree.GetActiveTreeID(tenant, project)
		if err != nil {
			writeErr(w, err)
			return
		}
		if rootID == "" {
			writeJSON(w, map[string]any{"nodes": []any{}})
			return
		}
		ids, err := s.tree.PathToHead(tenant, rootID)
		if err != nil {
			writeErr(w, err)
			return
		}
		nodes := make([]*struct {
			ID       string `json:"id"`
			Question string `json:"question"`
			Answer   string `json:"answer"`
		}, 0, len(ids))
		for _, id := range ids {
			n, err := s.tree.GetNode(tenant, id)
			if err != nil {
				continue
			}
			nodes = append(nodes, &struct {
				ID       string `json:"id"`
				Question string `json:"question"`
				Answer   string `json:"answer"`
			}{ID: n.ID, Question: n.Question, Answer: n.Answer})
		}
		writeJSON(w, map[string]any{"root_id": rootID, "nodes": nodes})

	case http.MethodDelete:
		rootID, err := s.tree.GetActiveTreeID(tenant, project)
		if err != nil {
			writeErr(w, err)
			return
		}
		if rootID != "" {
			if err := s.tree.DeleteTree(tenant, rootID); err != nil {
				writeErr(w, err)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeErr(w, apperr.Validation("method not allowed"))
	}
}
