package web

// errors.go provides unified error response handling for the API.
//
// All errors are logged with full technical detail server-side and
// returned to clients as a stable JSON shape with a machine-readable
// code and, where it helps, a suggested next action.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dealpage/importer/internal/engine"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Action string `json:"action,omitempty"`
}

// respondError maps an engine error to an HTTP status and writes the
// JSON error body. The technical error is logged with the request ID
// for correlation.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, action := classify(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "30")
	}
	writeJSONError(w, status, ErrorResponse{Error: err.Error(), Code: code, Action: action})
}

// classify maps engine sentinel errors to status codes, API error codes
// and user-facing action hints.
func classify(err error) (status int, code, action string) {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND",
			"The session may have expired. Upload the file again."
	case errors.Is(err, engine.ErrNotCSV):
		return http.StatusBadRequest, "NOT_CSV",
			"Re-export the spreadsheet as CSV and upload it again."
	case errors.Is(err, engine.ErrMappingIncomplete):
		return http.StatusConflict, "MAPPING_INCOMPLETE",
			"Map the listed required fields before starting."
	case errors.Is(err, engine.ErrYearAmbiguous):
		return http.StatusConflict, "YEAR_AMBIGUOUS",
			"Set a fallback year before starting."
	case errors.Is(err, engine.ErrImportRunning):
		return http.StatusConflict, "IMPORT_RUNNING", ""
	case errors.Is(err, engine.ErrNotStarted):
		return http.StatusConflict, "NOT_STARTED",
			"Start the import before requesting its result."
	case errors.Is(err, engine.ErrTooManyImports):
		return http.StatusTooManyRequests, "TOO_MANY_IMPORTS",
			"Wait for a running import to finish and try again."
	default:
		return http.StatusInternalServerError, "INTERNAL", ""
	}
}

// badRequest writes a 400 for request-shape problems that never reach
// the engine (missing file part, unparseable JSON body).
func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	slog.Warn("bad request",
		"path", r.URL.Path,
		"method", r.Method,
		"error", msg,
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeJSONError(w, http.StatusBadRequest, ErrorResponse{Error: msg, Code: "BAD_REQUEST"})
}

// writeJSONError writes an error body with the given status.
func writeJSONError(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode", "error", err)
	}
}
