package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"race-crew-network/internal/models"
	"race-crew-network/internal/services"
)

// ImportService is the orchestrator surface the admin API exposes.
type ImportService interface {
	Import(ctx context.Context, req services.ImportRequest) <-chan services.ProgressEvent
	Discover(ctx context.Context, events []models.ExtractedEvent, year int) <-chan services.ProgressEvent
	Confirm(ctx context.Context, req services.ConfirmRequest) (services.ConfirmResult, error)
	PopHeldResult(token string) (models.HeldImport, error)
}

// Server routes the admin import API. Import and discovery runs stream
// their progress as server-sent events; a client disconnect cancels the
// request context and aborts the run.
type Server struct {
	imports ImportService
}

func NewServer(imports ImportService) *Server {
	return &Server{imports: imports}
}

// Routes returns the chi router for the admin API.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Route("/api/admin/imports", func(r chi.Router) {
		r.Post("/", s.handleImport)
		r.Post("/discover", s.handleDiscover)
		r.Post("/confirm", s.handleConfirm)
		r.Get("/{token}", s.handleHeldResult)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req services.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" && req.URL == "" {
		writeError(w, http.StatusBadRequest, "provide either schedule text or a URL")
		return
	}

	streamEvents(w, r, s.imports.Import(r.Context(), req))
}

type discoverRequest struct {
	Events []models.ExtractedEvent `json:"events"`
	Year   int                     `json:"year,omitempty"`
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "no candidates provided")
		return
	}

	streamEvents(w, r, s.imports.Discover(r.Context(), req.Events, req.Year))
}

func (s *Server) handleHeldResult(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	result, err := s.imports.PopHeldResult(token)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found or expired")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req services.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.imports.Confirm(r.Context(), req)
	if err != nil {
		log.Printf("confirm failed: %v", err)
		writeError(w, http.StatusInternalServerError, "could not save the selected regattas")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// streamEvents delivers a run's progress channel as server-sent events,
// one JSON object per event, flushed as they arrive.
func streamEvents(w http.ResponseWriter, r *http.Request, events <-chan services.ProgressEvent) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Runs can outlive the server's write timeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
