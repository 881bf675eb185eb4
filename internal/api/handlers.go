package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/resale-sync/internal/database"
	"github.com/maltedev/resale-sync/internal/models"
)

// AvailabilityService is the engine surface the API exposes.
type AvailabilityService interface {
	CheckAvailability(ctx context.Context, query models.Query) models.AvailabilityResult
	CheckBatch(ctx context.Context, queries []models.Query) []models.AvailabilityResult
}

// SnapshotStore serves stored state and tracking toggles. Nil when the
// service runs without a database.
type SnapshotStore interface {
	Get(ctx context.Context, productID, location string) (*database.ProductSnapshot, error)
	SetPaused(ctx context.Context, productID, location string, paused bool) error
}

type Handlers struct {
	engine    AvailabilityService
	snapshots SnapshotStore
	logger    *slog.Logger
}

func NewHandlers(engine AvailabilityService, snapshots SnapshotStore) *Handlers {
	return &Handlers{
		engine:    engine,
		snapshots: snapshots,
		logger:    slog.Default().With("component", "api"),
	}
}

// CheckRequest asks for one live availability check.
type CheckRequest struct {
	ProductID string `json:"product_id"`
	Location  string `json:"location"`
}

// CheckAvailability runs a live check. The response is always a result
// document; failures are encoded in its error field, not in the HTTP status.
func (h *Handlers) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ProductID == "" {
		h.respondError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	result := h.engine.CheckAvailability(r.Context(), models.Query{
		ProductID:       req.ProductID,
		LocationContext: req.Location,
	})

	h.respondJSON(w, http.StatusOK, result)
}

// BatchCheckRequest asks for a batch of checks in one call.
type BatchCheckRequest struct {
	Queries []CheckRequest `json:"queries"`
}

type BatchCheckResponse struct {
	Results []models.AvailabilityResult `json:"results"`
}

func (h *Handlers) CheckBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Queries) == 0 {
		h.respondError(w, http.StatusBadRequest, "queries must not be empty")
		return
	}

	queries := make([]models.Query, len(req.Queries))
	for i, q := range req.Queries {
		if q.ProductID == "" {
			h.respondError(w, http.StatusBadRequest, "every query needs a product_id")
			return
		}
		queries[i] = models.Query{ProductID: q.ProductID, LocationContext: q.Location}
	}

	results := h.engine.CheckBatch(r.Context(), queries)
	h.respondJSON(w, http.StatusOK, BatchCheckResponse{Results: results})
}

// GetSnapshot returns the stored state for a tracked product.
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.respondError(w, http.StatusNotImplemented, "snapshot store not configured")
		return
	}

	productID := chi.URLParam(r, "productID")
	location := r.URL.Query().Get("location")

	snapshot, err := h.snapshots.Get(r.Context(), productID, location)
	if err != nil {
		h.logger.Error("failed to load snapshot", "product_id", productID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	if snapshot == nil {
		h.respondError(w, http.StatusNotFound, "product not tracked")
		return
	}

	h.respondJSON(w, http.StatusOK, snapshot)
}

// PauseRequest toggles tracking for a product/location pair.
type PauseRequest struct {
	Location string `json:"location"`
	Paused   bool   `json:"paused"`
}

func (h *Handlers) SetPaused(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.respondError(w, http.StatusNotImplemented, "snapshot store not configured")
		return
	}

	productID := chi.URLParam(r, "productID")

	var req PauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.snapshots.SetPaused(r.Context(), productID, req.Location, req.Paused); err != nil {
		h.logger.Error("failed to toggle tracking", "product_id", productID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to toggle tracking")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"product_id": productID,
		"paused":     req.Paused,
	})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
