package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"example.com/salesync/internal/pipeline"
	"example.com/salesync/internal/runlog"
)

// Server exposes the daemon's small operational surface: health, run history,
// and a manual sync trigger. The pipeline itself never depends on it.
type Server struct {
	runs         *runlog.Store
	orchestrator pipeline.Orchestrator
	logger       *slog.Logger
}

// NewServer wires the admin handlers to their collaborators.
func NewServer(runs *runlog.Store, orchestrator pipeline.Orchestrator, logger *slog.Logger) *Server {
	return &Server{
		runs:         runs,
		orchestrator: orchestrator,
		logger:       logger.With("component", "admin"),
	}
}

// Router configures all admin routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/runs", s.handleListRuns)
		r.Post("/sync", s.handleTriggerSync)
	})

	return r
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list runs: %v", err)
		return
	}
	if runs == nil {
		runs = []runlog.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	err := s.orchestrator.RunSyncAsync(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		writeError(w, http.StatusConflict, "a sync run is already in progress")
	case err != nil:
		s.logger.Error("manual sync trigger failed", "error", err)
		writeError(w, http.StatusInternalServerError, "start sync: %v", err)
	default:
		s.logger.Info("manual sync triggered")
		writeJSON(w, http.StatusAccepted, map[string]any{"started": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
