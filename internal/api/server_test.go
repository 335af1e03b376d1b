package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"race-crew-network/internal/models"
	"race-crew-network/internal/services"
)

type fakeImportService struct {
	importEvents   []services.ProgressEvent
	discoverEvents []services.ProgressEvent

	held    map[string]models.HeldImport
	confirm services.ConfirmResult

	lastImport   services.ImportRequest
	lastDiscover []models.ExtractedEvent
	lastConfirm  services.ConfirmRequest
}

func (f *fakeImportService) Import(_ context.Context, req services.ImportRequest) <-chan services.ProgressEvent {
	f.lastImport = req
	return streamOf(f.importEvents)
}

func (f *fakeImportService) Discover(_ context.Context, events []models.ExtractedEvent, _ int) <-chan services.ProgressEvent {
	f.lastDiscover = events
	return streamOf(f.discoverEvents)
}

func (f *fakeImportService) Confirm(_ context.Context, req services.ConfirmRequest) (services.ConfirmResult, error) {
	f.lastConfirm = req
	return f.confirm, nil
}

func (f *fakeImportService) PopHeldResult(token string) (models.HeldImport, error) {
	result, ok := f.held[token]
	if !ok {
		return models.HeldImport{}, services.ErrNotFound
	}
	delete(f.held, token)
	return result, nil
}

func streamOf(events []services.ProgressEvent) <-chan services.ProgressEvent {
	out := make(chan services.ProgressEvent, len(events))
	for _, ev := range events {
		out <- ev
	}
	close(out)
	return out
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// parseSSE decodes every data: frame of a server-sent-event body.
func parseSSE(t *testing.T, body string) []services.ProgressEvent {
	t.Helper()
	var events []services.ProgressEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev services.ProgressEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad SSE frame %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestImportStreamsEvents(t *testing.T) {
	svc := &fakeImportService{importEvents: []services.ProgressEvent{
		{Type: services.EventProgress, Message: "Extracting events with AI..."},
		{Type: services.EventDone, TaskID: "tok-1", Summary: "Found 2 event(s): 2 upcoming."},
	}}
	handler := NewServer(svc).Routes()

	rec := postJSON(t, handler, "/api/admin/imports", `{"text": "Spring Regatta, March 15", "year": 2026}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) != 2 {
		t.Fatalf("expected 2 frames, got %+v", events)
	}
	last := events[len(events)-1]
	if last.Type != services.EventDone || last.TaskID != "tok-1" {
		t.Errorf("expected done frame last, got %+v", last)
	}
	if svc.lastImport.Year != 2026 {
		t.Errorf("year not forwarded: %+v", svc.lastImport)
	}
}

func TestImportRejectsEmptyInput(t *testing.T) {
	handler := NewServer(&fakeImportService{}).Routes()

	testCases := []struct {
		name string
		body string
	}{
		{"no text or url", `{"year": 2026}`},
		{"malformed JSON", `{"text": `},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, handler, "/api/admin/imports", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestDiscoverStreamsEvents(t *testing.T) {
	svc := &fakeImportService{discoverEvents: []services.ProgressEvent{
		{Type: services.EventResult, Message: "Spring Regatta: found NOR, SI"},
		{Type: services.EventDone, TaskID: "tok-2", Summary: "Document discovery finished for 1 candidate(s)."},
	}}
	handler := NewServer(svc).Routes()

	rec := postJSON(t, handler, "/api/admin/imports/discover",
		`{"events": [{"name": "Spring Regatta", "detail_url": "https://club.example/regatta/42"}], "year": 2026}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	events := parseSSE(t, rec.Body.String())
	if len(events) != 2 || events[1].Type != services.EventDone {
		t.Fatalf("unexpected frames: %+v", events)
	}
	if len(svc.lastDiscover) != 1 || svc.lastDiscover[0].Name != "Spring Regatta" {
		t.Errorf("candidates not forwarded: %+v", svc.lastDiscover)
	}
}

func TestDiscoverRequiresCandidates(t *testing.T) {
	handler := NewServer(&fakeImportService{}).Routes()

	rec := postJSON(t, handler, "/api/admin/imports/discover", `{"events": []}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHeldResultReadOnce(t *testing.T) {
	svc := &fakeImportService{held: map[string]models.HeldImport{
		"tok-1": {Year: 2026, Events: []models.ExtractedEvent{{Name: "Spring Regatta"}}},
	}}
	handler := NewServer(svc).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/imports/tok-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var result models.HeldImport
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if result.Year != 2026 || len(result.Events) != 1 {
		t.Errorf("unexpected result: %+v", result)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/imports/tok-1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second read status = %d, want 404", rec.Code)
	}
	var errBody map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("bad error body: %v", err)
	}
	if errBody["error"] != "not found or expired" {
		t.Errorf("error = %q, want %q", errBody["error"], "not found or expired")
	}
}

func TestConfirm(t *testing.T) {
	svc := &fakeImportService{confirm: services.ConfirmResult{Created: 2, Skipped: 1, DocumentsAttached: 3}}
	handler := NewServer(svc).Routes()

	rec := postJSON(t, handler, "/api/admin/imports/confirm",
		`{"events": [{"name": "Spring Regatta", "start_date": "2026-03-15"}], "created_by": "admin-1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var result services.ConfirmResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if result.Created != 2 || result.Skipped != 1 || result.DocumentsAttached != 3 {
		t.Errorf("unexpected result: %+v", result)
	}
	if svc.lastConfirm.CreatedBy != "admin-1" {
		t.Errorf("created_by not forwarded: %+v", svc.lastConfirm)
	}
}

func TestHealthz(t *testing.T) {
	handler := NewServer(&fakeImportService{}).Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
