package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nextconvert/reelmix/internal/shared/storage"
	"go.uber.org/zap"
)

// downloadURLExpiry bounds presigned output links
const downloadURLExpiry = 15 * time.Minute

// OutputHandler serves delivered renders
type OutputHandler struct {
	storage *storage.Service
	logger  *zap.Logger
}

// NewOutputHandler creates a new output handler
func NewOutputHandler(store *storage.Service, logger *zap.Logger) *OutputHandler {
	return &OutputHandler{storage: store, logger: logger}
}

// Download redirects to a presigned URL when the backend has one and streams
// the file otherwise.
func (h *OutputHandler) Download(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")
	file := chi.URLParam(r, "file")
	if _, err := uuid.Parse(runID); err != nil || !validOutputName(file) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "output not found")
		return
	}

	path := h.storage.Path(storage.ZoneOutput, runID+"/"+file)
	exists, err := h.storage.Exists(r.Context(), path)
	if err != nil {
		h.logger.Error("Failed to look up output", zap.String("path", path), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to look up output")
		return
	}
	if !exists {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "output not found")
		return
	}

	url, ok, err := h.storage.DownloadURL(r.Context(), path, downloadURLExpiry)
	if err != nil {
		h.logger.Warn("Failed to presign output, streaming instead", zap.String("path", path), zap.Error(err))
	}
	if ok {
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	}

	reader, err := h.storage.Retrieve(r.Context(), path)
	if err != nil {
		h.logger.Error("Failed to open output", zap.String("path", path), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to open output")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file))
	if rs, ok := reader.(io.ReadSeeker); ok {
		http.ServeContent(w, r, file, time.Time{}, rs)
		return
	}
	io.Copy(w, reader)
}

// validOutputName accepts the plain file names the sink produces
func validOutputName(name string) bool {
	return name != "" && !strings.HasPrefix(name, ".") && storage.SanitizeFilename(name) == name
}
