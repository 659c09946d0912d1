package attendance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/refeitorio/refeitorio/internal/platform/httpx"
)

// MaxUploadBytes bounds the size of an uploaded sheet.
const MaxUploadBytes = 10 << 20

// FileImporter imports a stored sheet and removes it.
type FileImporter interface {
	ImportFile(ctx context.Context, path string) (Summary, error)
}

// Handler accepts sheet uploads.
type Handler struct {
	logger    *slog.Logger
	importer  FileImporter
	uploadDir string
}

// NewHandler builds Handler instance. Uploads are staged in uploadDir.
func NewHandler(logger *slog.Logger, importer FileImporter, uploadDir string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	return &Handler{logger: logger, importer: importer, uploadDir: uploadDir}
}

// MountRoutes registers import routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/imports/attendance", h.upload)
}

type importResponse struct {
	Summary
	Message string `json:"message"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.RespondError(w, httpx.ErrTooLarge)
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "no file uploaded")
		return
	}
	defer file.Close()
	if header.Filename == "" || header.Size == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "select a file to import")
		return
	}

	path, err := h.stage(file, header.Filename)
	if err != nil {
		h.logger.Error("stage upload", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	summary, err := h.importer.ImportFile(r.Context(), path)
	if err != nil {
		var missing *MissingColumnError
		switch {
		case errors.As(err, &missing):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", missing.Error())
		case errors.Is(err, ErrEmptyFile):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "the file has no rows")
		default:
			h.logger.Error("import attendance", slog.String("file", header.Filename), slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Import Failed", "the import was rolled back")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, importResponse{Summary: summary, Message: summary.Message()})
}

// stage copies the upload into uploadDir, keeping a .xlsx extension and
// naming anything else .csv.
func (h *Handler) stage(src io.Reader, filename string) (string, error) {
	ext := ".csv"
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		ext = ".xlsx"
	}
	dst, err := os.CreateTemp(h.uploadDir, "attendance-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}
