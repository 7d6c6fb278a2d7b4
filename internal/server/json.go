package server

import (
	"encoding/json"
	"net/http"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
)

// writeJSON mirrors the teacher's internal/web/server.go helper of the
// same name and shape.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// writeErr maps any error into the §7 taxonomy envelope and status code,
// in place of the teacher's plain writeError(w, code, msg) — every
// façade error response goes through apperr so callers get a stable
// {error, message, detail} shape regardless of which component failed.
func writeErr(w http.ResponseWriter, err error) {
	e := apperr.As(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.Status(e.Kind))
	json.NewEncoder(w).Encode(e.Body())
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("malformed JSON body: " + err.Error())
	}
	return nil
}
