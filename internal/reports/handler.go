package reports

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/refeitorio/refeitorio/internal/platform/httpx"
)

// Handler serves the report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/daily", h.daily)
		r.Get("/overall", h.overall)
		r.Get("/blocked", h.blocked)
		r.Get("/at-risk", h.atRisk)
		r.Get("/meal-values", h.mealValues)
	})
	r.Get("/dashboard", h.dashboard)
}

func (h *Handler) daily(w http.ResponseWriter, r *http.Request) {
	var day time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	httpx.JSON(w, http.StatusOK, h.service.Daily(r.Context(), day))
}

func (h *Handler) overall(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Overall(r.Context()))
}

func (h *Handler) blocked(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Blocked(r.Context()))
}

func (h *Handler) atRisk(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.AtRisk(r.Context()))
}

func (h *Handler) mealValues(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.MealValues(r.Context()))
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Dashboard(r.Context()))
}
