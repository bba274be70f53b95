// Package httpapi exposes a minimal read-only admin surface over the
// monitored stream set: GET /streams, GET /streams/{id}, GET /healthz.
// Stream definitions are created and deleted externally; this package never
// mutates them.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/streammon/monitor/internal/models"
)

// Repository is the read surface the handlers need.
type Repository interface {
	ListStreams(ctx context.Context) ([]*models.Stream, error)
	GetStream(ctx context.Context, id string) (*models.Stream, error)
}

// Pinger is satisfied by the database connection; used for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StreamHandler serves the read-only stream endpoints.
type StreamHandler struct {
	repo Repository
}

// NewStreamHandler builds a StreamHandler backed by repo.
func NewStreamHandler(repo Repository) *StreamHandler {
	return &StreamHandler{repo: repo}
}

// ListStreams handles GET /streams.
func (h *StreamHandler) ListStreams(w http.ResponseWriter, r *http.Request) {
	streams, err := h.repo.ListStreams(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing streams")
		return
	}
	writeJSON(w, http.StatusOK, streams)
}

// GetStream handles GET /streams/{id}.
func (h *StreamHandler) GetStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stream, err := h.repo.GetStream(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading stream")
		return
	}
	if stream == nil {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}
	writeJSON(w, http.StatusOK, stream)
}

// HealthHandler serves GET /healthz.
type HealthHandler struct {
	version   string
	startTime time.Time
	pinger    Pinger
}

// NewHealthHandler builds a HealthHandler. pinger may be nil, in which case
// the database check is skipped.
func NewHealthHandler(version string, pinger Pinger) *HealthHandler {
	return &HealthHandler{version: version, startTime: time.Now(), pinger: pinger}
}

// HealthResponse is the /healthz response body.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	UptimeSec int64  `json:"uptimeSeconds"`
	Database  string `json:"database"`
}

// Health handles GET /healthz.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "unknown"
	status := http.StatusOK

	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			dbStatus = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			dbStatus = "ok"
		}
	}

	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		UptimeSec: int64(time.Since(h.startTime).Seconds()),
		Database:  dbStatus,
	}
	if status != http.StatusOK {
		resp.Status = "degraded"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
