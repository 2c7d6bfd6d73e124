package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nextconvert/reelmix/internal/modules/montage"
	"github.com/nextconvert/reelmix/internal/shared/logging"
	"github.com/nextconvert/reelmix/internal/shared/metrics"
	"github.com/nextconvert/reelmix/internal/shared/storage"
	"go.uber.org/zap"
)

// HandlerConfig contains dependencies for the job handler
type HandlerConfig struct {
	Runs         *Module
	Storage      *storage.Service
	Pipeline     montage.Runner
	WorkspaceDir string
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// Handler handles job task execution
type Handler struct {
	runs         *Module
	storage      *storage.Service
	pipeline     montage.Runner
	workspaceDir string
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewHandler creates a new job handler
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		runs:         cfg.Runs,
		storage:      cfg.Storage,
		pipeline:     cfg.Pipeline,
		workspaceDir: cfg.WorkspaceDir,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
}

// HandleMontageRun executes a queued run: fetch the uploads into a fresh
// workspace, run the pipeline, deliver the outputs. The uploads are deleted
// and the workspace reclaimed on every path.
func (h *Handler) HandleMontageRun(ctx context.Context, task *asynq.Task) error {
	var payload MontageRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	logger := logging.WithRunID(h.logger, payload.RunID)

	if h.metrics != nil {
		h.metrics.RecordRunDequeued()
	}

	run, err := h.runs.StartRun(ctx, payload.RunID)
	if err != nil {
		logger.Error("Failed to start run", zap.Error(err))
		return fmt.Errorf("start run %s: %w: %w", payload.RunID, err, asynq.SkipRetry)
	}
	defer h.storage.DeleteQuietly(context.WithoutCancel(ctx), run.VideoPath, run.AudioPath)

	logger.Info("Processing montage run",
		zap.String("mode", string(run.Mode)),
		zap.String("preset", run.Preset),
		zap.String("intervals", run.Intervals),
	)

	start := time.Now()
	if h.metrics != nil {
		h.metrics.RecordRunStarted()
	}

	completion, err := h.execute(ctx, run, logger)

	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		logger.Error("Montage run failed", zap.Error(err))
		if failErr := h.runs.FailRun(context.WithoutCancel(ctx), run.ID, err); failErr != nil {
			logger.Warn("Failed to record run failure", zap.Error(failErr))
		}
	} else if err := h.runs.CompleteRun(context.WithoutCancel(ctx), run.ID, completion); err != nil {
		logger.Warn("Failed to record run completion", zap.Error(err))
	}

	if h.metrics != nil {
		h.metrics.RecordRunCompleted(string(run.Mode), status, completion.Generated,
			completion.Succeeded, completion.Failed, time.Since(start))
	}

	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	logger.Info("Montage run completed",
		zap.Int("succeeded", completion.Succeeded),
		zap.Int("failed", completion.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (h *Handler) execute(ctx context.Context, run *Run, logger *zap.Logger) (Completion, error) {
	ws, err := storage.NewWorkspace(h.workspaceDir, storage.WorkspacePrefix, logger)
	if err != nil {
		return Completion{}, err
	}
	h.recordWorkspace(true)
	defer func() {
		ws.Reclaim()
		h.recordWorkspace(false)
	}()

	req := montage.Request{
		Intervals: run.Intervals,
		Mode:      run.Mode,
		Settings:  run.Settings,
		OnProgress: func(p montage.Progress) {
			h.runs.ReportProgress(ctx, run.ID, p)
		},
	}

	// Parse before fetching anything so malformed input never touches media
	if _, err := montage.ParseIntervals(run.Intervals); err != nil {
		return Completion{}, err
	}

	req.VideoPath = ws.Path("source" + filepath.Ext(run.VideoPath))
	if err := h.storage.Fetch(ctx, run.VideoPath, req.VideoPath); err != nil {
		return Completion{}, fmt.Errorf("%w: %v", montage.ErrMediaOpen, err)
	}
	if run.AudioPath != "" {
		req.AudioPath = ws.Path("audio" + filepath.Ext(run.AudioPath))
		if err := h.storage.Fetch(ctx, run.AudioPath, req.AudioPath); err != nil {
			return Completion{}, fmt.Errorf("%w: %v", montage.ErrMediaOpen, err)
		}
	}

	if req.OutputDir, err = ws.Subdir("outputs"); err != nil {
		return Completion{}, err
	}

	result, err := h.pipeline.Run(ctx, req)
	if err != nil {
		return Completion{}, err
	}
	if err := RequireOutput(result); err != nil {
		return Completion{}, err
	}

	files, err := DeliverOutputs(ctx, h.storage, run.ID, result.Outputs)
	if err != nil {
		return Completion{}, err
	}

	return Completion{
		Outputs:   files,
		Requested: result.Requested,
		Generated: result.Generated,
		Succeeded: result.Succeeded(),
		Failed:    result.Failed(),
	}, nil
}

// ErrNoOutput is returned when a single-mode run rendered nothing
var ErrNoOutput = errors.New("no output was rendered")

// RequireOutput fails single-mode results without a rendered file. Batch results
// are reported with their counts even when every combination failed.
func RequireOutput(result *montage.Result) error {
	if result.Mode != montage.ModeSingle || result.Succeeded() > 0 {
		return nil
	}
	if len(result.Failures) > 0 {
		return fmt.Errorf("%w: %s", ErrNoOutput, result.Failures[0].Error)
	}
	return ErrNoOutput
}

// DeliverOutputs stores rendered files in the output zone under runID and
// returns their names.
func DeliverOutputs(ctx context.Context, store *storage.Service, runID string, outputs []montage.Output) ([]string, error) {
	files := make([]string, 0, len(outputs))
	for _, out := range outputs {
		if _, err := store.StoreFile(ctx, storage.ZoneOutput, runID+"/"+out.Name, out.Path); err != nil {
			return nil, fmt.Errorf("failed to deliver %s: %w", out.Name, err)
		}
		files = append(files, out.Name)
	}
	return files, nil
}

// HandleCleanupFiles removes files older than their zone TTL and stale workspaces
func (h *Handler) HandleCleanupFiles(ctx context.Context, task *asynq.Task) error {
	var payload CleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	zones := storage.Zones
	if payload.Zone != "" {
		zones = []storage.Zone{storage.Zone(payload.Zone)}
	}

	now := time.Now()
	for _, zone := range zones {
		deleted, err := h.storage.DeleteExpired(ctx, zone, now)
		if err != nil {
			return err
		}
		if h.metrics != nil {
			h.metrics.RecordFilesDeleted(string(zone), deleted)
		}
		h.logger.Info("Cleaned up files", zap.String("zone", string(zone)), zap.Int("deleted", deleted))

		if zone == storage.ZoneWorking {
			swept, err := storage.SweepWorkspaces(h.workspaceDir, now.Add(-zone.TTL()))
			if err != nil {
				h.logger.Warn("Failed to sweep workspaces", zap.Error(err))
			} else if swept > 0 {
				h.logger.Info("Swept stale workspaces", zap.Int("removed", swept))
			}
		}
	}
	return nil
}

func (h *Handler) recordWorkspace(created bool) {
	if h.metrics != nil {
		h.metrics.RecordWorkspace(created)
	}
}
