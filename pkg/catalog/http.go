package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sneakly/catalog/pkg/common/logger"
	"github.com/sneakly/catalog/pkg/common/models"
	"github.com/sneakly/catalog/pkg/pipeline"
	"github.com/sneakly/catalog/pkg/staging"
)

type Handler struct {
	candidates *staging.Repository
	promotions *PromotionService
	products   *Repository
}

func NewHandler(candidates *staging.Repository, promotions *PromotionService, products *Repository) *Handler {
	return &Handler{candidates: candidates, promotions: promotions, products: products}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/candidates", h.handleListCandidates).Methods(http.MethodGet)
	r.HandleFunc("/candidates/{id}/promote", h.handlePromote).Methods(http.MethodPost)
	r.HandleFunc("/candidates/{id}/reject", h.handleReject).Methods(http.MethodPost)
	r.HandleFunc("/products/{id}", h.handleGetProduct).Methods(http.MethodGet)
}

func (h *Handler) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("source")
	limit := parseLimit(r, 50)

	candidates, err := h.candidates.List(r.Context(), domain, limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list candidates")
		http.Error(w, "failed to list candidates", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": candidates})
}

func (h *Handler) handlePromote(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		http.Error(w, "X-Actor header is required", http.StatusBadRequest)
		return
	}

	var req models.PromoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	product, err := h.promotions.Promote(r.Context(), mux.Vars(r)["id"], req.CategoryID, req.Variants, actor)
	if err != nil {
		writeCandidateError(w, err, "failed to promote candidate")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"product": product})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		http.Error(w, "X-Actor header is required", http.StatusBadRequest)
		return
	}

	if err := h.promotions.Reject(r.Context(), mux.Vars(r)["id"], actor); err != nil {
		writeCandidateError(w, err, "failed to reject candidate")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, variants, err := h.products.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			http.Error(w, "product not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to get product")
		http.Error(w, "failed to get product", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"product": product, "variants": variants})
}

func writeCandidateError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, pipeline.ErrCandidateNotFound):
		http.Error(w, "candidate not found", http.StatusNotFound)
	case pipeline.IsValidationError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case pipeline.IsConsistencyError(err):
		logger.Log.WithError(err).Error(fallback)
		http.Error(w, "promotion rolled back", http.StatusInternalServerError)
	default:
		logger.Log.WithError(err).Error(fallback)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
