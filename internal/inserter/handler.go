package inserter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"scte35-inserter/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// Handler exposes the registry contract over HTTP using go-chi, plus
// read-only serving of each stream's output artifacts.
type Handler struct {
	registry *StreamRegistry
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewHandler returns a Handler over the given registry. Metrics may be nil to
// disable metric recording (e.g. in tests).
func NewHandler(registry *StreamRegistry, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{registry: registry, log: log, metrics: m}
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ListStreams handles GET /api/streams.
func (h *Handler) ListStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.List())
}

// registerRequest wraps StreamConfig so an omitted "enabled" field defaults to
// true instead of false.
type registerRequest struct {
	StreamConfig
	Enabled *bool `json:"enabled"`
}

// RegisterStream handles POST /api/streams.
// Body: { "stream_id": "...", "input_url": "...", "output_path": "...",
// "ad_duration": 30, "ad_interval": 300 }.
func (h *Handler) RegisterStream(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid register body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "invalid request body"})
		return
	}

	cfg := req.StreamConfig
	cfg.Enabled = true
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}

	if cfg.ID == "" || cfg.InputURL == "" || cfg.OutputDir == "" || cfg.AdDuration <= 0 || cfg.AdInterval <= 0 {
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "missing or invalid stream parameters"})
		return
	}

	if !h.registry.Register(cfg) {
		writeJSON(w, http.StatusConflict, apiResponse{Error: "stream id already exists"})
		return
	}

	h.log.Info("stream registered via api", slog.String("stream_id", string(cfg.ID)))
	writeJSON(w, http.StatusCreated, apiResponse{Success: true, Message: "stream registered"})
	if h.metrics != nil {
		h.metrics.IncStreamsRegistered()
	}
}

// GetStreamStatus handles GET /api/streams/{stream_id}.
func (h *Handler) GetStreamStatus(w http.ResponseWriter, r *http.Request) {
	id := StreamID(chi.URLParam(r, "stream_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	status, ok := h.registry.Status(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, apiResponse{Error: "stream not found"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// RemoveStream handles DELETE /api/streams/{stream_id}.
func (h *Handler) RemoveStream(w http.ResponseWriter, r *http.Request) {
	id := StreamID(chi.URLParam(r, "stream_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !h.registry.Remove(id) {
		writeJSON(w, http.StatusNotFound, apiResponse{Error: "stream not found"})
		return
	}

	h.log.Info("stream removed via api", slog.String("stream_id", string(id)))
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "stream removed"})
	if h.metrics != nil {
		h.metrics.IncStreamsRemoved()
	}
}

// ServeOutput handles GET /output/{stream_id}/{filename}: the rewritten
// playlist and mirrored segments, served with caching disabled so players
// always observe the latest rewrite.
func (h *Handler) ServeOutput(w http.ResponseWriter, r *http.Request) {
	id := StreamID(chi.URLParam(r, "stream_id"))
	filename := chi.URLParam(r, "filename")

	dir, ok := h.registry.OutputDir(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// Param must be a bare filename inside the output directory.
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	path := filepath.Join(dir, filename)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case strings.HasSuffix(filename, ".m3u8"):
		w.Header().Set("Content-Type", playlistContentType)
	case strings.HasSuffix(filename, ".ts"):
		w.Header().Set("Content-Type", "video/mp2t")
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")

	http.ServeFile(w, r, path)
}
