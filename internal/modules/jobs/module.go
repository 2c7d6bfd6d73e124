package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nextconvert/reelmix/internal/api/websocket"
	"github.com/nextconvert/reelmix/internal/modules/montage"
	"github.com/nextconvert/reelmix/internal/shared/metrics"
	"github.com/nextconvert/reelmix/internal/shared/storage"
	"go.uber.org/zap"
)

// ErrTooManyRuns is returned when a user already has the maximum number of active runs
var ErrTooManyRuns = errors.New("too many active runs")

const listLimit = 50

// Enqueuer queues montage runs for the worker
type Enqueuer interface {
	EnqueueMontageRun(payload MontageRunPayload, priority string) (*asynq.TaskInfo, error)
}

// ModuleConfig contains dependencies for the runs module
type ModuleConfig struct {
	Store          RunStore
	Storage        *storage.Service
	Queue          Enqueuer
	Publishers     []EventPublisher
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	MaxRunsPerUser int
}

// Module handles run bookkeeping: creation, lookup, progress and completion
type Module struct {
	store          RunStore
	storage        *storage.Service
	queue          Enqueuer
	publishers     []EventPublisher
	metrics        *metrics.Metrics
	logger         *zap.Logger
	maxRunsPerUser int
}

// NewModule creates a new runs module
func NewModule(cfg ModuleConfig) *Module {
	return &Module{
		store:          cfg.Store,
		storage:        cfg.Storage,
		queue:          cfg.Queue,
		publishers:     cfg.Publishers,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		maxRunsPerUser: cfg.MaxRunsPerUser,
	}
}

// CreateRunParams contains parameters for creating a run. Video and audio
// paths point at files already stored in the upload zone.
type CreateRunParams struct {
	UserID    string
	Priority  string
	Preset    string
	Mode      montage.Mode
	Settings  montage.Settings
	Intervals string
	VideoPath string
	AudioPath string
}

// CreateRun records a queued run and enqueues it for the worker.
// The uploads are deleted when the run cannot be created.
func (m *Module) CreateRun(ctx context.Context, params CreateRunParams) (run *Run, err error) {
	defer func() {
		if err != nil && m.storage != nil {
			m.storage.DeleteQuietly(ctx, params.VideoPath, params.AudioPath)
		}
	}()

	if _, err := montage.ParseIntervals(params.Intervals); err != nil {
		return nil, err
	}
	if err := params.Settings.Validate(); err != nil {
		return nil, err
	}
	if params.VideoPath == "" {
		return nil, fmt.Errorf("%w: video is required", montage.ErrInvalidRequest)
	}
	if params.Mode == "" {
		params.Mode = montage.ModeSingle
	}
	if err := m.checkActiveRuns(ctx, params.UserID); err != nil {
		return nil, err
	}

	requested := 1
	if params.Mode == montage.ModeBatch {
		requested = params.Settings.NumCombinations
	}

	run = &Run{
		ID:        uuid.New().String(),
		UserID:    params.UserID,
		Status:    StatusQueued,
		Mode:      params.Mode,
		Preset:    params.Preset,
		Intervals: params.Intervals,
		Settings:  params.Settings,
		VideoPath: params.VideoPath,
		AudioPath: params.AudioPath,
		Outputs:   []string{},
		Requested: requested,
		CreatedAt: time.Now(),
	}

	if err := m.store.Create(ctx, run); err != nil {
		return nil, err
	}

	if _, err := m.queue.EnqueueMontageRun(MontageRunPayload{RunID: run.ID}, params.Priority); err != nil {
		m.store.Fail(ctx, run.ID, RunError{Code: CodeRenderFailed, Message: "failed to enqueue run", Retryable: true})
		return nil, fmt.Errorf("failed to enqueue run: %w", err)
	}
	if m.metrics != nil {
		m.metrics.RecordRunQueued()
	}

	m.logger.Info("Run created and queued",
		zap.String("run_id", run.ID),
		zap.String("user_id", run.UserID),
		zap.String("mode", string(run.Mode)),
		zap.String("preset", run.Preset),
	)
	return run, nil
}

func (m *Module) checkActiveRuns(ctx context.Context, userID string) error {
	if m.maxRunsPerUser <= 0 || userID == "" {
		return nil
	}
	active := 0
	for _, status := range []string{StatusQueued, StatusProcessing} {
		runs, err := m.store.List(ctx, userID, status, m.maxRunsPerUser)
		if err != nil {
			return err
		}
		active += len(runs)
	}
	if active >= m.maxRunsPerUser {
		return fmt.Errorf("%w: limit is %d", ErrTooManyRuns, m.maxRunsPerUser)
	}
	return nil
}

// GetRun retrieves a run visible to userID
func (m *Module) GetRun(ctx context.Context, id, userID string) (*Run, error) {
	run, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.UserID != "" && run.UserID != userID {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns the most recent runs of a user
func (m *Module) ListRuns(ctx context.Context, userID, status string) ([]*Run, error) {
	return m.store.List(ctx, userID, status, listLimit)
}

// StartRun marks a queued run as processing and returns it
func (m *Module) StartRun(ctx context.Context, id string) (*Run, error) {
	if err := m.store.MarkStarted(ctx, id); err != nil {
		return nil, err
	}
	run, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Publish(ctx, websocket.RunEvent{Type: websocket.EventRunProgress, RunID: id, Total: run.Requested})
	return run, nil
}

// ReportProgress records one handled combination
func (m *Module) ReportProgress(ctx context.Context, id string, p montage.Progress) {
	progress := Progress{Percent: p.Percent(), Done: p.Done, Total: p.Total}
	if err := m.store.UpdateProgress(ctx, id, progress); err != nil {
		m.logger.Warn("Failed to update run progress", zap.String("run_id", id), zap.Error(err))
	}

	event := websocket.RunEvent{
		Type:    websocket.EventRunProgress,
		RunID:   id,
		Percent: progress.Percent,
		Done:    p.Done,
		Total:   p.Total,
	}
	if p.Output != nil {
		event.Output = p.Output.Name
	}
	if p.Err != nil {
		event.Error = p.Err.Error()
	}
	m.Publish(ctx, event)
}

// CompleteRun marks a run as completed
func (m *Module) CompleteRun(ctx context.Context, id string, c Completion) error {
	if err := m.store.Complete(ctx, id, c); err != nil {
		return err
	}
	m.Publish(ctx, websocket.RunEvent{
		Type:      websocket.EventRunCompleted,
		RunID:     id,
		Percent:   100,
		Files:     c.Outputs,
		Succeeded: c.Succeeded,
		Failed:    c.Failed,
	})
	return nil
}

// FailRun marks a run as failed with a code derived from err
func (m *Module) FailRun(ctx context.Context, id string, err error) error {
	runErr := RunError{Code: ErrorCode(err), Message: err.Error()}
	if dbErr := m.store.Fail(ctx, id, runErr); dbErr != nil {
		return dbErr
	}
	m.Publish(ctx, websocket.RunEvent{Type: websocket.EventRunFailed, RunID: id, Error: err.Error()})
	return nil
}

// Publish fans an event out to every publisher. Failures are logged.
func (m *Module) Publish(ctx context.Context, event websocket.RunEvent) {
	for _, p := range m.publishers {
		if err := p.PublishRunEvent(ctx, event); err != nil {
			m.logger.Warn("Failed to publish run event",
				zap.String("run_id", event.RunID),
				zap.String("type", event.Type),
				zap.Error(err),
			)
		}
	}
}
