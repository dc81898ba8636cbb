package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dealpage/importer/internal/engine"
	"github.com/dealpage/importer/internal/logging"
	"github.com/go-chi/chi/v5"
)

// flowResponse describes one import flow for the catalog endpoint.
type flowResponse struct {
	Key    string          `json:"key"`
	Label  string          `json:"label"`
	Ledger bool            `json:"ledger"`
	Fields []fieldResponse `json:"fields"`
}

type fieldResponse struct {
	Key        string   `json:"key"`
	Label      string   `json:"label"`
	Type       string   `json:"type"`
	Required   bool     `json:"required"`
	EnumValues []string `json:"enumValues,omitempty"`
}

// handleListFlows returns the registered import flows and their schemas.
func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	flows := engine.Flows()
	out := make([]flowResponse, 0, len(flows))
	for _, flow := range flows {
		fr := flowResponse{
			Key:    flow.Info.Key,
			Label:  flow.Info.Label,
			Ledger: flow.Ledger(),
		}
		for _, spec := range flow.Fields {
			fr.Fields = append(fr.Fields, fieldResponse{
				Key:        spec.Key,
				Label:      spec.Label,
				Type:       fieldTypeName(spec.Type),
				Required:   spec.Required,
				EnumValues: spec.EnumValues,
			})
		}
		out = append(out, fr)
	}
	writeJSON(w, http.StatusOK, out)
}

// fieldTypeName converts a FieldType to its wire name.
func fieldTypeName(ft engine.FieldType) string {
	switch ft {
	case engine.FieldMoney:
		return "money"
	case engine.FieldNumber:
		return "number"
	case engine.FieldBool:
		return "bool"
	case engine.FieldEnum:
		return "enum"
	case engine.FieldList:
		return "list"
	case engine.FieldPeriod:
		return "period"
	default:
		return "text"
	}
}

// handleCreateImport stages an uploaded CSV file as a new import session.
// The response carries the proposed column mapping and a data preview so
// the client can render the mapping screen.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	flowKey := chi.URLParam(r, "flowKey")
	if flowKey == "" {
		badRequest(w, r, "missing flow key")
		return
	}
	if _, ok := engine.GetFlow(flowKey); !ok {
		badRequest(w, r, fmt.Sprintf("unknown flow %q", flowKey))
		return
	}

	fileName, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	ownerID := ownerFrom(r)
	if ownerID == "" {
		badRequest(w, r, "missing owner id")
		return
	}

	view, err := s.service.CreateSession(flowKey, ownerID, fileName, data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("import staged",
		"session_id", view.ID,
		"flow", flowKey,
		"file", fileName,
		"rows", view.RowCount,
	)
	writeJSON(w, http.StatusCreated, view)
}

// handleAttachFile stages another file on an existing session. Ledger
// flows use this to accumulate several statements into one ledger.
func (s *Server) handleAttachFile(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	fileName, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	view, err := s.service.AttachFile(sessionID, fileName, data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// readUpload extracts the multipart file from the request, enforcing the
// configured size ceiling. Writes the error response itself on failure.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		badRequest(w, r, "file too large or invalid form")
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, r, "no file provided")
		return "", nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		badRequest(w, r, "failed to read file")
		return "", nil, false
	}
	return header.Filename, data, true
}

// ownerFrom resolves the owner the import writes rows for.
func ownerFrom(r *http.Request) string {
	if owner := r.Header.Get("X-Owner-ID"); owner != "" {
		return strings.TrimSpace(owner)
	}
	return strings.TrimSpace(r.FormValue("owner"))
}

// handleSessionView returns the current session state.
func (s *Server) handleSessionView(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.View(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// mappingRequest is the body for PUT mapping.
type mappingRequest struct {
	Mapping map[string]string `json:"mapping"`
}

// handleSetMapping replaces the session's field-to-header bindings.
func (s *Server) handleSetMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid mapping body")
		return
	}

	view, err := s.service.SetMapping(chi.URLParam(r, "sessionID"), req.Mapping)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// yearRequest is the body for PUT year.
type yearRequest struct {
	Year int `json:"year"`
}

// handleSetYear sets the fallback year used when the date column carries
// no plausible year of its own.
func (s *Server) handleSetYear(w http.ResponseWriter, r *http.Request) {
	var req yearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid year body")
		return
	}

	view, err := s.service.SetFallbackYear(chi.URLParam(r, "sessionID"), req.Year)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleStart begins batch submission for the session. Direct flows
// return immediately while rows stream to storage in the background;
// ledger flows merge synchronously and return the updated view.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	view, err := s.service.Start(r.Context(), sessionID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("import started",
		"session_id", sessionID,
		"flow", view.FlowKey,
	)
	writeJSON(w, http.StatusAccepted, view)
}

// handleProgress streams import progress via Server-Sent Events.
// Supports resumption via the lastEventId query parameter: the event ID
// is the progress percentage, so a reconnecting client skips
// already-received events.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(sessionID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError,
			ErrorResponse{Error: "streaming not supported", Code: "INTERNAL"})
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed: run complete, cancelled or failed
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			currentPercent := progress.Percent()
			if lastEventIDStr != "" && currentPercent <= lastEventID {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", currentPercent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleResult returns the final result of the session's last run,
// blocking until the run finishes.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Result(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancel requests cancellation of the running import. The record
// currently being written always finishes; cancellation takes effect
// before the next one.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.service.Cancel(sessionID); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("import cancel requested", "session_id", sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// ledgerRowResponse is one merged ledger entry in chronological order.
type ledgerRowResponse struct {
	Period string             `json:"period"`
	Year   int                `json:"year"`
	Values map[string]float64 `json:"values"`
}

// handleLedgerRows returns the session's merged ledger.
func (s *Server) handleLedgerRows(w http.ResponseWriter, r *http.Request) {
	rows, err := s.service.LedgerRows(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]ledgerRowResponse, 0, len(rows))
	for _, rec := range rows {
		row := ledgerRowResponse{Values: make(map[string]float64)}
		for key, val := range rec.Fields {
			switch v := val.(type) {
			case engine.Period:
				row.Period = v.Label
				row.Year = v.Year
			case float64:
				row.Values[key] = v
			}
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSaveLedger replaces the owner's stored ledger with the merged
// session ledger. Runs in the background like a direct import; track it
// through the progress and result endpoints.
func (s *Server) handleSaveLedger(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	view, err := s.service.SaveLedger(r.Context(), sessionID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("ledger save started", "session_id", sessionID)
	writeJSON(w, http.StatusAccepted, view)
}
