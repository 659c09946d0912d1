package audithttp

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/refeitorio/refeitorio/internal/audit"
	"github.com/refeitorio/refeitorio/internal/platform/httpx"
)

const exportLimit = 500

// Service lists audit entries.
type Service interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// Handler serves the audit log.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler builds an audit handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	entries, err := h.service.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list audit entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Recent(r.Context(), exportLimit)
	if err != nil {
		h.logger.Error("export audit entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := audit.WriteCSV(&buf, entries); err != nil {
		h.logger.Error("encode audit csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit.csv\"")
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}
