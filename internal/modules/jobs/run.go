package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/nextconvert/reelmix/internal/modules/montage"
)

// Run statuses
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrRunNotFound is returned when a run does not exist or belongs to someone else
var ErrRunNotFound = errors.New("run not found")

// Run is one pipeline invocation, synchronous or queued
type Run struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId,omitempty"`
	Status      string           `json:"status"`
	Mode        montage.Mode     `json:"mode"`
	Preset      string           `json:"preset"`
	Intervals   string           `json:"intervals"`
	Settings    montage.Settings `json:"settings"`
	VideoPath   string           `json:"-"`
	AudioPath   string           `json:"-"`
	Progress    Progress         `json:"progress"`
	Outputs     []string         `json:"outputs"`
	Requested   int              `json:"requested"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	Error       *RunError        `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// Progress represents run progress
type Progress struct {
	Percent int `json:"percent"`
	Done    int `json:"done"`
	Total   int `json:"total"`
}

// RunError represents a run error
type RunError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Error codes
const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeMediaError   = "MEDIA_ERROR"
	CodeRenderFailed = "RENDER_FAILED"
)

// ErrorCode classifies a pipeline error
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, montage.ErrMalformedInterval), errors.Is(err, montage.ErrInvalidRequest):
		return CodeInvalidInput
	case errors.Is(err, montage.ErrMediaOpen), errors.Is(err, montage.ErrOutOfRange):
		return CodeMediaError
	}
	return CodeRenderFailed
}

// Completion holds the counts and delivered files of a finished run
type Completion struct {
	Outputs   []string
	Requested int
	Generated int
	Succeeded int
	Failed    int
}

// RunStore persists runs
type RunStore interface {
	Create(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, userID, status string, limit int) ([]*Run, error)
	MarkStarted(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, progress Progress) error
	Complete(ctx context.Context, id string, c Completion) error
	Fail(ctx context.Context, id string, runErr RunError) error
}
