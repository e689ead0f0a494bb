package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/fame0528/powerbot/internal/storage"
)

// StoreHandler exposes the explicit snapshot flush.
type StoreHandler struct {
	store  *storage.Store
	logger *slog.Logger
}

// NewStoreHandler creates a new store handler.
func NewStoreHandler(store *storage.Store, logger *slog.Logger) *StoreHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreHandler{store: store, logger: logger}
}

// PersistOutput represents the flush response.
type PersistOutput struct {
	Body struct {
		Stats      storage.StoreStats `json:"stats"`
		DurationMs int64              `json:"duration_ms"`
	}
}

// Persist writes the live database to its snapshot file now, regardless
// of the configured flush policy.
func (h *StoreHandler) Persist(ctx context.Context, _ *struct{}) (*PersistOutput, error) {
	start := time.Now()
	if err := h.store.Persist(ctx); err != nil {
		return nil, huma.Error500InternalServerError("failed to persist store: " + err.Error())
	}

	stats, err := h.store.Stats(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to read store stats: " + err.Error())
	}

	h.logger.Info("store persisted on request", "duration_ms", time.Since(start).Milliseconds())

	out := &PersistOutput{}
	out.Body.Stats = stats
	out.Body.DurationMs = time.Since(start).Milliseconds()
	return out, nil
}
