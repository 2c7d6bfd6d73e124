package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nextconvert/reelmix/internal/api/websocket"
	"github.com/nextconvert/reelmix/internal/modules/jobs"
	"github.com/nextconvert/reelmix/internal/modules/montage"
	"github.com/nextconvert/reelmix/internal/shared/logging"
	"github.com/nextconvert/reelmix/internal/shared/metrics"
	"github.com/nextconvert/reelmix/internal/shared/storage"
	"go.uber.org/zap"
)

const (
	// SingleOutputName is the download name of a single-mode render
	SingleOutputName = "clipped_video_with_audio.mp4"

	// BatchPreset is used by batch renders that name no preset
	BatchPreset = "batch"
)

// ClipHandlerConfig contains dependencies for the synchronous render endpoints
type ClipHandlerConfig struct {
	Pipeline      montage.Runner
	Presets       *montage.Presets
	Storage       *storage.Service
	Publisher     jobs.EventPublisher
	WorkspaceDir  string
	DefaultPreset string
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

// ClipHandler renders uploads while the client waits
type ClipHandler struct {
	pipeline      montage.Runner
	presets       *montage.Presets
	storage       *storage.Service
	publisher     jobs.EventPublisher
	workspaceDir  string
	defaultPreset string
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewClipHandler creates a new clip handler
func NewClipHandler(cfg ClipHandlerConfig) *ClipHandler {
	if cfg.DefaultPreset == "" {
		cfg.DefaultPreset = montage.DefaultPreset
	}
	return &ClipHandler{
		pipeline:      cfg.Pipeline,
		presets:       cfg.Presets,
		storage:       cfg.Storage,
		publisher:     cfg.Publisher,
		workspaceDir:  cfg.WorkspaceDir,
		defaultPreset: cfg.DefaultPreset,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}
}

// BatchResponse is the reply of a synchronous batch render
type BatchResponse struct {
	Success   bool     `json:"success"`
	RunID     string   `json:"runId"`
	Directory string   `json:"directory"`
	Files     []string `json:"files"`
	Requested int      `json:"requested"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
}

// Clip renders the intervals of the uploaded video as one vertical video and
// streams it back. The workspace is reclaimed once the body has been written.
func (h *ClipHandler) Clip(w http.ResponseWriter, r *http.Request) {
	runID := uuid.New().String()
	logger := logging.WithRunID(h.logger, runID)
	w.Header().Set("X-Run-ID", runID)

	form, err := parseClipForm(r, h.defaultPreset)
	if err != nil {
		respondPipelineError(w, logger, err)
		return
	}
	// Reject malformed intervals before anything touches the disk
	if _, err := montage.ParseIntervals(form.Intervals); err != nil {
		respondPipelineError(w, logger, err)
		return
	}
	_, settings, err := h.presets.Resolve(form.Preset, string(montage.ModeSingle), form.Options)
	if err != nil {
		respondPipelineError(w, logger, err)
		return
	}

	ws, err := h.openWorkspace(logger)
	if err != nil {
		respondPipelineError(w, logger, err)
		return
	}
	defer h.reclaim(ws)

	req, err := h.stage(r, ws, form)
	if err != nil {
		respondPipelineError(w, logger, err)
		return
	}
	req.Mode = montage.ModeSingle
	req.Settings = settings

	result, err := h.run(r.Context(), req, logger)
	if err == nil {
		err = jobs.RequireOutput(result)
	}
	if err != nil {
		respondPipelineError(w, logger, err)
		return
	}

	out := result.Outputs[0]
	f, err := os.Open(out.Path)
	if err != nil {
		respondPipelineError(w, logger, fmt.Errorf("failed to open render: %w", err))
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		respondPipelineError(w, logger, fmt.Errorf("failed to stat render: %w", err))
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", SingleOutputName))
	http.ServeContent(w, r, SingleOutputName, stat.ModTime(), f)
}

// ClipBatch renders up to num_combinations random combinations, stores them
// in the output zone and answers with the delivered file names. Progress is
// published under the run ID, which the client may choose up front.
func (h *ClipHandler) ClipBatch(w http.ResponseWriter, r *http.Request) {
	form, err := parseClipForm(r, BatchPreset)
	if err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}

	runID := uuid.New().String()
	if v := r.FormValue("runId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, jobs.CodeInvalidInput, "runId must be a UUID")
			return
		}
		runID = id.String()
	}
	logger := logging.WithRunID(h.logger, runID)
	w.Header().Set("X-Run-ID", runID)

	if _, err := montage.ParseIntervals(form.Intervals); err != nil {
		respondPipelineError(w, logger, err)
		return
	}
	_, settings, err := h.presets.Resolve(form.Preset, string(montage.ModeBatch), form.Options)
	if err != nil {
		respondPipelineError(w, logger, err)
		return
	}

	ws, err := h.openWorkspace(logger)
	if err != nil {
		respondPipelineError(w, logger, err)
		return
	}
	defer h.reclaim(ws)

	req, err := h.stage(r, ws, form)
	if err != nil {
		respondPipelineError(w, logger, err)
		return
	}
	req.Mode = montage.ModeBatch
	req.Settings = settings
	req.OnProgress = func(p montage.Progress) {
		event := websocket.RunEvent{
			Type:    websocket.EventRunProgress,
			RunID:   runID,
			Percent: p.Percent(),
			Done:    p.Done,
			Total:   p.Total,
		}
		if p.Output != nil {
			event.Output = p.Output.Name
		}
		if p.Err != nil {
			event.Error = p.Err.Error()
		}
		h.publish(r.Context(), event)
	}

	result, err := h.run(r.Context(), req, logger)
	var files []string
	if err == nil {
		files, err = jobs.DeliverOutputs(r.Context(), h.storage, runID, result.Outputs)
	}
	if err != nil {
		h.publish(r.Context(), websocket.RunEvent{Type: websocket.EventRunFailed, RunID: runID, Error: err.Error()})
		respondPipelineError(w, logger, err)
		return
	}

	h.publish(r.Context(), websocket.RunEvent{
		Type:      websocket.EventRunCompleted,
		RunID:     runID,
		Percent:   100,
		Files:     files,
		Succeeded: result.Succeeded(),
		Failed:    result.Failed(),
	})

	respondJSON(w, http.StatusOK, BatchResponse{
		Success:   result.Succeeded() > 0,
		RunID:     runID,
		Directory: outputDirectory(runID),
		Files:     files,
		Requested: result.Requested,
		Succeeded: result.Succeeded(),
		Failed:    result.Failed(),
	})
}

// stage saves the uploads into the workspace and prepares the request
func (h *ClipHandler) stage(r *http.Request, ws *storage.Workspace, form clipForm) (montage.Request, error) {
	req := montage.Request{Intervals: form.Intervals}

	var err error
	req.VideoPath, err = saveFormFile(r, "video", true, func(name string, src io.Reader) (string, error) {
		return ws.SaveUpload("video-"+name, src)
	})
	if err != nil {
		return req, err
	}
	req.AudioPath, err = saveFormFile(r, "audio", false, func(name string, src io.Reader) (string, error) {
		return ws.SaveUpload("audio-"+name, src)
	})
	if err != nil {
		return req, err
	}

	req.OutputDir, err = ws.Subdir("outputs")
	return req, err
}

// run executes the pipeline and records run metrics
func (h *ClipHandler) run(ctx context.Context, req montage.Request, logger *zap.Logger) (*montage.Result, error) {
	start := time.Now()
	if h.metrics != nil {
		h.metrics.RecordRunStarted()
	}

	result, err := h.pipeline.Run(ctx, req)

	status := jobs.StatusCompleted
	if err != nil {
		status = jobs.StatusFailed
	}
	if h.metrics != nil {
		var generated, succeeded, failed int
		if result != nil {
			generated, succeeded, failed = result.Generated, result.Succeeded(), result.Failed()
		}
		h.metrics.RecordRunCompleted(string(req.Mode), status, generated, succeeded, failed, time.Since(start))
	}

	if err != nil {
		return nil, err
	}
	logger.Info("Render finished",
		zap.String("mode", string(req.Mode)),
		zap.Int("succeeded", result.Succeeded()),
		zap.Int("failed", result.Failed()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (h *ClipHandler) openWorkspace(logger *zap.Logger) (*storage.Workspace, error) {
	ws, err := storage.NewWorkspace(h.workspaceDir, storage.WorkspacePrefix, logger)
	if err != nil {
		return nil, err
	}
	if h.metrics != nil {
		h.metrics.RecordWorkspace(true)
	}
	return ws, nil
}

func (h *ClipHandler) reclaim(ws *storage.Workspace) {
	ws.Reclaim()
	if h.metrics != nil {
		h.metrics.RecordWorkspace(false)
	}
}

func (h *ClipHandler) publish(ctx context.Context, event websocket.RunEvent) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishRunEvent(ctx, event); err != nil {
		h.logger.Warn("Failed to publish run event", zap.String("run_id", event.RunID), zap.Error(err))
	}
}

// outputDirectory is the URL prefix delivered files of a run are served under
func outputDirectory(runID string) string {
	return "/api/v1/outputs/" + runID + "/"
}
