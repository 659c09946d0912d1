package settings

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/refeitorio/refeitorio/internal/platform/httpx"
)

// Provider is the subset of Service used over HTTP.
type Provider interface {
	Entries(ctx context.Context) ([]Entry, error)
	MealPrices(ctx context.Context) ([]MealPrice, error)
	Update(ctx context.Context, values map[string]string) ([]string, error)
}

// Handler exposes configuration endpoints.
type Handler struct {
	logger  *slog.Logger
	service Provider
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service Provider) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/settings", h.list)
	r.Post("/settings", h.update)
	r.Get("/settings/prices", h.prices)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Entries(r.Context())
	if err != nil {
		h.logger.Error("list settings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) prices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.service.MealPrices(r.Context())
	if err != nil {
		h.logger.Error("list meal prices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, prices)
}

type updateResponse struct {
	Updated []string `json:"updated"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if err := httpx.DecodeJSON(r, &values); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "body must be a JSON object of string values")
		return
	}
	updated, err := h.service.Update(r.Context(), values)
	if err != nil {
		h.logger.Warn("update settings", slog.Any("error", err))
		httpx.RespondError(w, httpx.Translate(err, map[error]error{ErrInvalidValue: httpx.ErrValidation}))
		return
	}
	if updated == nil {
		updated = []string{}
	}
	h.logger.Info("settings updated", slog.Any("keys", updated))
	httpx.JSON(w, http.StatusOK, updateResponse{Updated: updated})
}
