package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dealpage/importer/internal/config"
	"github.com/dealpage/importer/internal/engine"
)

// webTestRows collects records written by the test flow's insert func.
var (
	webTestMu   sync.Mutex
	webTestRows []*engine.Record
)

func init() {
	engine.Register(engine.FlowDefinition{
		Info: engine.FlowInfo{Key: "demo_items", Label: "Demo Items"},
		Fields: []engine.FieldSpec{
			{Key: "name", Label: "Name", Type: engine.FieldText, Required: true},
			{Key: "amount", Label: "Amount", Type: engine.FieldMoney},
		},
		Rules: []engine.MatchRule{
			{Field: "name", Contains: []string{"name"}},
			{Field: "amount", Contains: []string{"amount"}},
		},
		Primary: []string{"name"},
		Insert: func(ctx context.Context, db engine.DBTX, ownerID string, rec *engine.Record) error {
			webTestMu.Lock()
			defer webTestMu.Unlock()
			webTestRows = append(webTestRows, rec)
			return nil
		},
	})
}

func resetWebTestRows() {
	webTestMu.Lock()
	defer webTestMu.Unlock()
	webTestRows = nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.Import.MaxFileSize = 1 << 20

	service := engine.NewService(nil, engine.Options{
		MaxConcurrent: 2,
		MaxWait:       time.Second,
		RunTimeout:    5 * time.Second,
		Retention:     time.Minute,
	})
	return NewServer(service, cfg)
}

// multipartUpload builds a multipart body with one file part.
func multipartUpload(t *testing.T, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write([]byte(content))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func createSession(t *testing.T, srv *Server, csv string) engine.SessionView {
	t.Helper()
	body, contentType := multipartUpload(t, "items.csv", csv)
	req := httptest.NewRequest(http.MethodPost, "/api/import/demo_items", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Owner-ID", "owner-1")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, body %s", rec.Code, rec.Body.String())
	}
	var view engine.SessionView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return view
}

func TestCreateImportStagesSession(t *testing.T) {
	srv := newTestServer(t)

	view := createSession(t, srv, "Name,Amount\nWidget,100\nGadget,\"$2,500\"\n")

	if view.FlowKey != "demo_items" {
		t.Errorf("FlowKey = %q, want demo_items", view.FlowKey)
	}
	if view.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", view.RowCount)
	}
	if view.Mapping["name"] != "Name" || view.Mapping["amount"] != "Amount" {
		t.Errorf("auto-mapping incomplete: %v", view.Mapping)
	}
	if len(view.MissingRequired) != 0 {
		t.Errorf("MissingRequired = %v, want none", view.MissingRequired)
	}
}

func TestCreateImportUnknownFlow(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartUpload(t, "items.csv", "a,b\n1,2\n")
	req := httptest.NewRequest(http.MethodPost, "/api/import/nope", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Owner-ID", "owner-1")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateImportMissingOwner(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartUpload(t, "items.csv", "Name\nWidget\n")
	req := httptest.NewRequest(http.MethodPost, "/api/import/demo_items", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "owner") {
		t.Errorf("body should mention owner: %s", rec.Body.String())
	}
}

func TestCreateImportRejectsNonCSV(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartUpload(t, "items.xlsx", "binary junk")
	req := httptest.NewRequest(http.MethodPost, "/api/import/demo_items", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Owner-ID", "owner-1")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Code != "NOT_CSV" {
		t.Errorf("Code = %q, want NOT_CSV", resp.Code)
	}
}

func TestSessionNotFound(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/import/no-such-session", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStartAndResult(t *testing.T) {
	resetWebTestRows()
	srv := newTestServer(t)

	view := createSession(t, srv, "Name,Amount\nWidget,100\nGadget,200\nDoohickey,300\n")

	req := httptest.NewRequest(http.MethodPost, "/api/import/"+view.ID+"/start", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/import/"+view.ID+"/result", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("result status = %d, body %s", rec.Code, rec.Body.String())
	}

	var result engine.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Phase != engine.PhaseComplete {
		t.Errorf("Phase = %q, want %q", result.Phase, engine.PhaseComplete)
	}
	if result.Inserted != 3 {
		t.Errorf("Inserted = %d, want 3", result.Inserted)
	}

	webTestMu.Lock()
	written := len(webTestRows)
	webTestMu.Unlock()
	if written != 3 {
		t.Errorf("insert func saw %d records, want 3", written)
	}
}

func TestStartMappingIncomplete(t *testing.T) {
	srv := newTestServer(t)

	// No header matches the required "name" field.
	view := createSession(t, srv, "Foo,Bar\n1,2\n")

	req := httptest.NewRequest(http.MethodPost, "/api/import/"+view.ID+"/start", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Code != "MAPPING_INCOMPLETE" {
		t.Errorf("Code = %q, want MAPPING_INCOMPLETE", resp.Code)
	}
}

func TestSetMappingUnblocksStart(t *testing.T) {
	resetWebTestRows()
	srv := newTestServer(t)

	view := createSession(t, srv, "Thing,Amount\nWidget,100\n")

	payload := `{"mapping":{"name":"Thing","amount":"Amount"}}`
	req := httptest.NewRequest(http.MethodPut, "/api/import/"+view.ID+"/mapping", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("mapping status = %d, body %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/import/"+view.ID+"/start", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestProgressStreamsToCompletion(t *testing.T) {
	resetWebTestRows()
	srv := newTestServer(t)

	view := createSession(t, srv, "Name,Amount\nWidget,100\nGadget,200\n")

	req := httptest.NewRequest(http.MethodPost, "/api/import/"+view.ID+"/start", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d", rec.Code)
	}

	// Wait for the run to finish so the SSE stream terminates.
	req = httptest.NewRequest(http.MethodGet, "/api/import/"+view.ID+"/result", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("result status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/import/"+view.ID+"/progress", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "event: progress") {
		t.Errorf("stream missing progress event: %s", body)
	}
	if !strings.Contains(body, "event: complete") {
		t.Errorf("stream missing complete event: %s", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
