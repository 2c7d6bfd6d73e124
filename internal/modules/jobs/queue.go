package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nextconvert/reelmix/internal/shared/database"
	"github.com/nextconvert/reelmix/internal/shared/storage"
	"go.uber.org/zap"
)

// Task types
const (
	TypeMontageRun   = "montage:run"
	TypeCleanupFiles = "files:cleanup"
)

// Queue names, highest priority first
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues maps queue names to their asynq priority weights
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// QueueClient handles job queue operations
type QueueClient struct {
	client   *asynq.Client
	redisOpt asynq.RedisClientOpt
	logger   *zap.Logger
}

// RedisClientOpt converts a Redis address or URL into asynq connection options
func RedisClientOpt(redisAddr string) asynq.RedisClientOpt {
	opts := database.Options(redisAddr)
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}
}

// NewQueueClient creates a new queue client
func NewQueueClient(redisAddr string, logger *zap.Logger) *QueueClient {
	redisOpt := RedisClientOpt(redisAddr)
	return &QueueClient{
		client:   asynq.NewClient(redisOpt),
		redisOpt: redisOpt,
		logger:   logger,
	}
}

// Close closes the queue client
func (q *QueueClient) Close() error {
	return q.client.Close()
}

// MontageRunPayload identifies the run a worker should execute
type MontageRunPayload struct {
	RunID string `json:"runId"`
}

// CleanupPayload names the zone to sweep. Files older than the zone TTL are removed.
type CleanupPayload struct {
	Zone string `json:"zone"`
}

func newMontageRunTask(payload MontageRunPayload, priority string) (*asynq.Task, []asynq.Option, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	// Pipeline failures are deterministic and the uploads are gone after the
	// first attempt, so runs are never retried.
	opts := []asynq.Option{
		asynq.MaxRetry(0),
		asynq.Timeout(2 * time.Hour),
		asynq.TaskID(payload.RunID),
		asynq.Queue(queueFor(priority)),
	}
	return asynq.NewTask(TypeMontageRun, data), opts, nil
}

func queueFor(priority string) string {
	switch priority {
	case "high":
		return QueueCritical
	case "low":
		return QueueLow
	default:
		return QueueDefault
	}
}

// EnqueueMontageRun queues a pipeline run
func (q *QueueClient) EnqueueMontageRun(payload MontageRunPayload, priority string) (*asynq.TaskInfo, error) {
	task, opts, err := newMontageRunTask(payload, priority)
	if err != nil {
		return nil, err
	}

	info, err := q.client.Enqueue(task, opts...)
	if err != nil {
		q.logger.Error("Failed to enqueue montage run", zap.Error(err))
		return nil, err
	}

	q.logger.Info("Montage run enqueued",
		zap.String("task_id", info.ID),
		zap.String("run_id", payload.RunID),
		zap.String("queue", info.Queue),
	)
	return info, nil
}

// EnqueueCleanup queues a file cleanup task
func (q *QueueClient) EnqueueCleanup(payload CleanupPayload) (*asynq.TaskInfo, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	task := asynq.NewTask(TypeCleanupFiles, data)
	return q.client.Enqueue(task, asynq.MaxRetry(1), asynq.Queue(QueueLow))
}

type cleanupSchedule struct {
	cronspec string
	zone     storage.Zone
}

// cleanupSchedules sweeps each zone more often than its TTL
var cleanupSchedules = []cleanupSchedule{
	{cronspec: "@hourly", zone: storage.ZoneUpload},
	{cronspec: "@every 30m", zone: storage.ZoneWorking},
	{cronspec: "@daily", zone: storage.ZoneOutput},
}

// ScheduleCleanup registers periodic cleanup for every zone and starts the scheduler
func (q *QueueClient) ScheduleCleanup() (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(q.redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
	})

	for _, s := range cleanupSchedules {
		payload, _ := json.Marshal(CleanupPayload{Zone: string(s.zone)})
		if _, err := scheduler.Register(s.cronspec, asynq.NewTask(TypeCleanupFiles, payload), asynq.Queue(QueueLow)); err != nil {
			return nil, err
		}
	}

	if err := scheduler.Start(); err != nil {
		return nil, err
	}
	return scheduler, nil
}
