package handlers

import (
	"context"

	"github.com/fame0528/powerbot/internal/browser"
	"github.com/fame0528/powerbot/internal/storage"
	"github.com/fame0528/powerbot/internal/version"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string              `json:"status"`
	Version string              `json:"version"`
	Browser *browser.Stats      `json:"browser,omitempty"`
	Store   *storage.StoreStats `json:"store,omitempty"`
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	manager *browser.Manager
	store   *storage.Store
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(manager *browser.Manager, store *storage.Store) *HealthHandler {
	return &HealthHandler{manager: manager, store: store}
}

// HealthOutput is the output wrapper for Huma.
type HealthOutput struct {
	Body HealthResponse
}

// Handle returns the health status. Store stats are best effort; a
// failing count query degrades the report rather than the endpoint.
func (h *HealthHandler) Handle(ctx context.Context) *HealthResponse {
	resp := &HealthResponse{
		Status:  "healthy",
		Version: version.Get().Version,
	}

	if h.manager != nil {
		stats := h.manager.Stats()
		resp.Browser = &stats
	}
	if h.store != nil {
		if stats, err := h.store.Stats(ctx); err == nil {
			resp.Store = &stats
		}
	}
	return resp
}
