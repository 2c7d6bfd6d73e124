package montage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const DefaultOutputPattern = "combination_%03d.mp4"

// Output is one delivered render.
type Output struct {
	Sequence int         `json:"sequence"`
	Path     string      `json:"path"`
	Name     string      `json:"name"`
	Duration float64     `json:"duration"`
	Clips    Combination `json:"clips"`
}

// Sink encodes timelines into numbered files of one directory.
type Sink struct {
	engine  Engine
	dir     string
	pattern string
	logger  *zap.Logger
}

// NewSink creates a sink writing into dir
func NewSink(engine Engine, dir string, logger *zap.Logger) *Sink {
	return &Sink{
		engine:  engine,
		dir:     dir,
		pattern: DefaultOutputPattern,
		logger:  logger,
	}
}

// WithPattern overrides the fmt pattern used to name outputs by sequence.
func (s *Sink) WithPattern(pattern string) *Sink {
	s.pattern = pattern
	return s
}

// Name returns the file name of the given sequence number.
func (s *Sink) Name(seq int) string {
	return fmt.Sprintf(s.pattern, seq)
}

// Write renders tl as output number seq. A failed render leaves nothing behind.
func (s *Sink) Write(ctx context.Context, tl *Timeline, seq int) (Output, error) {
	src := tl.Source()
	if src == nil {
		return Output{}, fmt.Errorf("%w: timeline has no segments", ErrInvalidRequest)
	}
	release, err := src.hold()
	if err != nil {
		return Output{}, err
	}
	defer release()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return Output{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	name := s.Name(seq)
	final := filepath.Join(s.dir, name)
	partial := filepath.Join(s.dir, "."+name+".part")

	if err := s.engine.Render(ctx, tl, partial); err != nil {
		s.discard(partial)
		return Output{}, fmt.Errorf("render %s: %w", name, err)
	}
	if err := os.Rename(partial, final); err != nil {
		s.discard(partial)
		return Output{}, fmt.Errorf("failed to finalize %s: %w", name, err)
	}

	return Output{
		Sequence: seq,
		Path:     final,
		Name:     name,
		Duration: tl.Duration,
	}, nil
}

func (s *Sink) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove partial output", zap.String("path", path), zap.Error(err))
	}
}
