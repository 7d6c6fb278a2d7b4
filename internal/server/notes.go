package server

import (
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
	"github.com/bigwolfeman/document-mcp/internal/vault"
)

// notePath extracts and decodes the {path} segment after prefix, grounded
// on the teacher's internal/web/server.go handleNoteByPath decode-then-
// Clean-then-reject-".." idiom. vault.ValidatePath performs the full §6
// path-safety check afterwards; this only recovers the raw segment.
func notePath(r *http.Request, prefix string) (string, error) {
	raw := strings.TrimPrefix(r.URL.Path, prefix)
	if raw == "" {
		return "", apperr.Validation("missing note path")
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", apperr.Validation("invalid path encoding")
	}
	return filepath.ToSlash(decoded), nil
}

type noteResponse struct {
	Path      string         `json:"path"`
	Title     string         `json:"title"`
	Metadata  vault.Metadata `json:"metadata"`
	Body      string         `json:"body"`
	Version   int            `json:"version"`
	Created   string         `json:"created"`
	Updated   string         `json:"updated"`
	SizeBytes int64          `json:"size_bytes"`
}

func (s *Server) toResponse(tenant string, n *vault.Note) noteResponse {
	version, _, _ := s.idx.Version(tenant, n.Path)
	return noteResponse{
		Path: n.Path, Title: n.Title, Metadata: n.Metadata, Body: n.Body,
		Version: version, Created: n.Created.UTC().Format("2006-01-02T15:04:05Z"),
		Updated: n.Updated.UTC().Format("2006-01-02T15:04:05Z"), SizeBytes: n.SizeBytes,
	}
}

// handleNotesCollection implements GET/POST /api/notes (list / create).
func (s *Server) handleNotesCollection(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	switch r.Method {
	case http.MethodGet:
		folder := r.URL.Query().Get("folder")
		notes, err := s.vault.List(tenant, folder)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, notes)
	case http.MethodPost:
		var body struct {
			Path     string         `json:"path"`
			Content  string         `json:"content"`
			Title    string         `json:"title"`
			Metadata vault.Metadata `json:"metadata"`
		}
		if err := readJSON(r, &body); err != nil {
			writeErr(w, err)
			return
		}
		if err := vault.ValidatePath(body.Path); err != nil {
			writeErr(w, err)
			return
		}
		if _, exists, err := s.idx.Version(tenant, body.Path); err != nil {
			writeErr(w, err)
			return
		} else if exists {
			writeErr(w, apperr.VersionConflict("a note already exists at this path"))
			return
		}
		note, err := s.vault.Write(tenant, body.Path, body.Content, body.Metadata, body.Title)
		if err != nil {
			writeErr(w, err)
			return
		}
		if _, err := s.idx.Index(tenant, note); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, s.toResponse(tenant, note))
	default:
		writeErr(w, apperr.Validation("method not allowed"))
	}
}

// handleNoteItem implements GET|PUT|PATCH|DELETE /api/notes/{path}.
func (s *Server) handleNoteItem(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	path, err := notePath(r, "/api/notes/")
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := vault.ValidatePath(path); err != nil {
		writeErr(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		note, err := s.vault.Read(tenant, path)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, s.toResponse(tenant, note))

	case http.MethodPut, http.MethodPatch:
		var body struct {
			Content    string         `json:"content"`
			Title      string         `json:"title"`
			Metadata   vault.Metadata `json:"metadata"`
			NewPath    string         `json:"new_path"`
			IfVersion  *int           `json:"if_version"`
		}
		if err := readJSON(r, &body); err != nil {
			writeErr(w, err)
			return
		}

		if body.IfVersion != nil {
			current, exists, err := s.idx.Version(tenant, path)
			if err != nil {
				writeErr(w, err)
				return
			}
			if !exists || current != *body.IfVersion {
				writeErr(w, apperr.VersionConflict("note has been modified since if_version was read"))
				return
			}
		}

		if body.NewPath != "" && body.NewPath != path {
			if err := vault.ValidatePath(body.NewPath); err != nil {
				writeErr(w, err)
				return
			}
			moved, err := s.vault.Move(tenant, path, body.NewPath)
			if err != nil {
				writeErr(w, err)
				return
			}
			if err := s.idx.DeleteIndex(tenant, path); err != nil {
				writeErr(w, err)
				return
			}
			if _, err := s.idx.Index(tenant, moved); err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, s.toResponse(tenant, moved))
			return
		}

		existing, err := s.vault.Read(tenant, path)
		if err != nil && r.Method == http.MethodPatch {
			writeErr(w, err)
			return
		}
		content := body.Content
		meta := body.Metadata
		title := body.Title
		if r.Method == http.MethodPatch && existing != nil {
			if meta == nil {
				meta = existing.Metadata
			}
			if title == "" {
				title = existing.Title
			}
		}
		note, err := s.vault.Write(tenant, path, content, meta, title)
		if err != nil {
			writeErr(w, err)
			return
		}
		if _, err := s.idx.Index(tenant, note); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, s.toResponse(tenant, note))

	case http.MethodDelete:
		if err := s.vault.Delete(tenant, path); err != nil {
			writeErr(w, err)
			return
		}
		if err := s.idx.DeleteIndex(tenant, path); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeErr(w, apperr.Validation("method not allowed"))
	}
}

func parseLimit(r *http.Request, def, max int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
