package students

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/refeitorio/refeitorio/internal/platform/httpx"
)

// Handler exposes student endpoints.
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

// MountRoutes registers student routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/students", h.list)
	r.Get("/students/{id}", h.detail)
	r.Post("/students/{id}/payments", h.pay)
}

var errorMapping = map[error]error{
	ErrNotFound:       httpx.ErrNotFound,
	ErrInvalidAmount:  httpx.ErrValidation,
	ErrInvalidReason:  httpx.ErrValidation,
	ErrNoDebtOwed:     httpx.ErrValidation,
	ErrAmountMismatch: httpx.ErrValidation,

	ErrConcurrentUpdate: httpx.ErrConflict,
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list students", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	id, ok := studentID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.logger.Error("get student", slog.Any("error", err), slog.Int64("id", id))
		}
		httpx.RespondError(w, httpx.Translate(err, errorMapping))
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

type paymentResponse struct {
	Payment Payment `json:"payment"`
	Message string  `json:"message"`
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	id, ok := studentID(w, r)
	if !ok {
		return
	}
	var req PaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment payload")
		return
	}
	payment, err := h.service.Pay(r.Context(), id, req)
	if err != nil {
		if !IsValidation(err) && !errors.Is(err, ErrNotFound) {
			h.logger.Error("register payment", slog.Any("error", err), slog.Int64("id", id))
		}
		httpx.RespondError(w, httpx.Translate(err, errorMapping))
		return
	}
	httpx.JSON(w, http.StatusCreated, paymentResponse{
		Payment: payment,
		Message: "Payment registered, " + strconv.Itoa(payment.AbsencesCleared) + " absence(s) cleared.",
	})
}

func studentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid student id")
		return 0, false
	}
	return id, true
}
