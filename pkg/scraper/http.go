package scraper

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sneakly/catalog/pkg/common/logger"
	"github.com/sneakly/catalog/pkg/common/models"
	"github.com/sneakly/catalog/pkg/pipeline"
)

type Handler struct {
	scheduler *Scheduler
}

func NewHandler(scheduler *Scheduler) *Handler {
	return &Handler{scheduler: scheduler}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/runs", h.handleStartRun).Methods(http.MethodPost)
	r.HandleFunc("/runs", h.handleListRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", h.handleGetRun).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/stop", h.handleStopRun).Methods(http.MethodPost)
	r.HandleFunc("/refresh", h.handleRefresh).Methods(http.MethodPost)
}

func (h *Handler) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req models.StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.SourceDomain == "" {
		http.Error(w, "source_domain is required", http.StatusBadRequest)
		return
	}

	run, err := h.scheduler.StartRun(r.Context(), req, resolveActor(r))
	if err != nil {
		writeRunError(w, err, "failed to start run")
		return
	}

	writeJSON(w, http.StatusAccepted, models.StartRunResponse{
		RunID:        run.ID,
		SourceDomain: run.SourceDomain,
		Status:       string(run.Status),
		StartedAt:    run.StartedAt,
	})
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := models.RunFilter{
		Status: r.URL.Query().Get("status"),
		Source: r.URL.Query().Get("source"),
		Search: r.URL.Query().Get("search"),
	}
	runs, err := h.scheduler.ListRuns(r.Context(), filter)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list runs")
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": runs})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.scheduler.GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeRunError(w, err, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"run": run})
}

func (h *Handler) handleStopRun(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.StopRun(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeRunError(w, err, "failed to stop run")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.SourceDomain == "" {
		http.Error(w, "source_domain is required", http.StatusBadRequest)
		return
	}

	run, err := h.scheduler.Refresh(r.Context(), req, resolveActor(r))
	if err != nil {
		writeRunError(w, err, "failed to start refresh")
		return
	}

	writeJSON(w, http.StatusAccepted, models.StartRunResponse{
		RunID:        run.ID,
		SourceDomain: run.SourceDomain,
		Status:       string(run.Status),
		StartedAt:    run.StartedAt,
	})
}

func writeRunError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case pipeline.IsConflictError(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case pipeline.IsValidationError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case pipeline.IsPolicyError(err):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, pipeline.ErrUnknownSource):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, pipeline.ErrRunNotFound):
		http.Error(w, "run not found", http.StatusNotFound)
	default:
		logger.Log.WithError(err).Error(fallback)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func resolveActor(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
