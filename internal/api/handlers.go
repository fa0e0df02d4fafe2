// Package api implements the gateway's HTTP surface: health and version
// endpoints plus a small metered sample of the marketplace catalog. The
// marketplace business logic (campaigns, offers, payments) lives in a
// separate service; the gateway's job is metering and forwarding.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"adgate/internal/models"
	"adgate/internal/ratelimit"
	"adgate/internal/version"
)

// Handlers holds the dependencies for the HTTP handlers.
type Handlers struct {
	store      ratelimit.CounterStore
	placements []models.PlacementInfo
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handlers)

// WithStore attaches the counter store so health checks can probe it.
func WithStore(store ratelimit.CounterStore) HandlerOption {
	return func(h *Handlers) { h.store = store }
}

// WithPlacements overrides the catalog served by the placement endpoints.
func WithPlacements(placements []models.PlacementInfo) HandlerOption {
	return func(h *Handlers) { h.placements = placements }
}

// NewHandlers creates handlers with a small built-in sample catalog.
func NewHandlers(opts ...HandlerOption) *Handlers {
	h := &Handlers{
		placements: samplePlacements(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthCheck reports overall service health. The counter store is probed
// with a read; a failing store degrades rather than fails the service,
// matching the limiter's fail-open default.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := models.NewHealthCheckResponse(models.StatusHealthy)
	resp.Version = version.GetInfo().Version

	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, _, err := h.store.GetBlock(ctx, "healthcheck"); err != nil {
			resp.Status = models.StatusDegraded
			resp.AddComponent("counter_store", models.StatusUnhealthy, err.Error())
		} else {
			resp.AddComponent("counter_store", models.StatusHealthy, "")
		}
	}

	status := http.StatusOK
	writeJSON(w, status, resp)
}

// Version returns build metadata.
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	info := version.GetInfo()
	writeJSON(w, http.StatusOK, models.VersionResponse{
		Version:   info.Version,
		GitCommit: info.GitCommit,
		BuildDate: info.BuildDate,
	})
}

// ListPlacements returns the available ad placements.
func (h *Handlers) ListPlacements(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ListPlacementsResponse{
		Placements: h.placements,
		TotalCount: len(h.placements),
	})
}

// GetPlacement returns a single placement by id.
func (h *Handlers) GetPlacement(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["placement_id"]
	for _, p := range h.placements {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeJSON(w, http.StatusNotFound,
		models.NewErrorResponse("Placement not found", models.ErrorCodeNotFound))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func samplePlacements() []models.PlacementInfo {
	listed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []models.PlacementInfo{
		{
			ID:          "pl-1001",
			Channel:     "@cryptodaily",
			Format:      "post-24h",
			PriceCents:  45000,
			Currency:    "USD",
			Subscribers: 182000,
			ListedAt:    listed,
		},
		{
			ID:          "pl-1002",
			Channel:     "@techbrief",
			Format:      "pinned-48h",
			PriceCents:  120000,
			Currency:    "USD",
			Subscribers: 540000,
			ListedAt:    listed,
		},
		{
			ID:          "pl-1003",
			Channel:     "@dealhunters",
			Format:      "post-12h",
			PriceCents:  18000,
			Currency:    "EUR",
			Subscribers: 76000,
			ListedAt:    listed,
		},
	}
}
