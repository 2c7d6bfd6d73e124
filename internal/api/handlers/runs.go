package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nextconvert/reelmix/internal/api/middleware"
	"github.com/nextconvert/reelmix/internal/modules/jobs"
	"github.com/nextconvert/reelmix/internal/modules/montage"
	"github.com/nextconvert/reelmix/internal/shared/storage"
	"go.uber.org/zap"
)

// RunService is the part of the runs module the HTTP layer needs
type RunService interface {
	CreateRun(ctx context.Context, params jobs.CreateRunParams) (*jobs.Run, error)
	GetRun(ctx context.Context, id, userID string) (*jobs.Run, error)
	ListRuns(ctx context.Context, userID, status string) ([]*jobs.Run, error)
}

// RunHandler handles queued run endpoints
type RunHandler struct {
	runs          RunService
	presets       *montage.Presets
	storage       *storage.Service
	defaultPreset string
	logger        *zap.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(runs RunService, presets *montage.Presets, store *storage.Service, defaultPreset string, logger *zap.Logger) *RunHandler {
	if defaultPreset == "" {
		defaultPreset = montage.DefaultPreset
	}
	return &RunHandler{
		runs:          runs,
		presets:       presets,
		storage:       store,
		defaultPreset: defaultPreset,
		logger:        logger,
	}
}

// CreateRun stores the uploads and queues a run. It answers 202 with the run record.
func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	form, err := parseClipForm(r, h.defaultPreset)
	if err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}
	if _, err := montage.ParseIntervals(form.Intervals); err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}
	mode, settings, err := h.presets.Resolve(form.Preset, form.Mode, form.Options)
	if err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}

	upload := func(name string, src io.Reader) (string, error) {
		info, err := h.storage.Store(r.Context(), storage.ZoneUpload, name, src)
		if err != nil {
			return "", err
		}
		return info.Path, nil
	}
	videoPath, err := saveFormFile(r, "video", true, upload)
	if err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}
	audioPath, err := saveFormFile(r, "audio", false, upload)
	if err != nil {
		h.storage.DeleteQuietly(r.Context(), videoPath)
		respondPipelineError(w, h.logger, err)
		return
	}

	priority := "default"
	if user.IsAnonymous() {
		priority = "low"
	}

	run, err := h.runs.CreateRun(r.Context(), jobs.CreateRunParams{
		UserID:    middleware.UserID(r.Context()),
		Priority:  priority,
		Preset:    form.Preset,
		Mode:      mode,
		Settings:  settings,
		Intervals: form.Intervals,
		VideoPath: videoPath,
		AudioPath: audioPath,
	})
	if err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}

	w.Header().Set("X-Run-ID", run.ID)
	respondJSON(w, http.StatusAccepted, run)
}

// ListRuns returns the user's most recent runs, optionally filtered by status
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", jobs.StatusQueued, jobs.StatusProcessing, jobs.StatusCompleted, jobs.StatusFailed:
	default:
		respondError(w, http.StatusBadRequest, jobs.CodeInvalidInput, "unknown status "+status)
		return
	}

	runs, err := h.runs.ListRuns(r.Context(), middleware.UserID(r.Context()), status)
	if err != nil {
		h.logger.Error("Failed to list runs", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*jobs.Run{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetRun returns a specific run of the user
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(runID); err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", jobs.ErrRunNotFound.Error())
		return
	}

	run, err := h.runs.GetRun(r.Context(), runID, middleware.UserID(r.Context()))
	if err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, run)
}
