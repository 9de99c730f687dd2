package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/nero-labs/internal/domain"
	"github.com/ashureev/nero-labs/internal/platform"
	"github.com/go-chi/chi/v5"
)

// ListPlatforms returns every registered platform.
func (h *Handler) ListPlatforms(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"platforms": h.platforms.List()})
}

// UpdatePlatform replaces a platform config. Admin only.
func (h *Handler) UpdatePlatform(w http.ResponseWriter, r *http.Request) {
	var cfg domain.PlatformConfig
	if !decode(w, r, &cfg) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.platforms.Update(id, cfg); err != nil {
		switch {
		case errors.Is(err, platform.ErrInvalidConfig):
			Error(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrUnknownPlatform):
			Error(w, http.StatusNotFound, "unknown platform")
		default:
			writeErr(w, err)
		}
		return
	}
	slog.Info("Platform updated", "platform_id", id, "fee", cfg.FeePerQuery.String())
	JSON(w, http.StatusOK, platform.Platform{ID: id, PlatformConfig: cfg})
}
