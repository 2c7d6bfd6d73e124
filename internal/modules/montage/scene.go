package montage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"
)

// rangeTolerance absorbs container duration rounding when checking interval ends.
const rangeTolerance = 0.001

// Source is an opened source video shared by every clip of one run.
// Renders hold it exclusively; Close releases it for good.
type Source struct {
	path string
	info MediaInfo

	mu     sync.Mutex
	closed bool
}

// Path returns the file path of the source.
func (s *Source) Path() string { return s.path }

// Info returns the probed metadata of the source.
func (s *Source) Info() MediaInfo { return s.info }

// Close releases the source. It is safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether the source was released.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// hold locks the source for one consumer. The returned func unlocks it.
func (s *Source) hold() (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSourceClosed, s.path)
	}
	return s.mu.Unlock, nil
}

// Clip is an immutable [start, end) cut of a Source.
type Clip struct {
	index int
	start float64
	end   float64
	src   *Source
}

func (c Clip) Index() int         { return c.index }
func (c Clip) Start() float64     { return c.start }
func (c Clip) End() float64       { return c.end }
func (c Clip) Duration() float64  { return c.end - c.start }
func (c Clip) Source() *Source    { return c.src }
func (c Clip) SourcePath() string { return c.src.path }
func (c Clip) Interval() Interval { return Interval{Start: c.start, End: c.end} }

// Scenes is the clip set of one run: the lead clip plus the content pool.
type Scenes struct {
	Source  *Source
	Lead    Clip
	Content []Clip
}

// Close releases the underlying source.
func (s *Scenes) Close() error {
	if s == nil || s.Source == nil {
		return nil
	}
	return s.Source.Close()
}

// ContentDurations returns the duration of each content clip, by index.
func (s *Scenes) ContentDurations() []float64 {
	return lo.Map(s.Content, func(c Clip, _ int) float64 { return c.Duration() })
}

// Pick resolves content indices into clips, keeping the given order.
func (s *Scenes) Pick(indices []int) ([]Clip, error) {
	clips := make([]Clip, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(s.Content) {
			return nil, fmt.Errorf("content index %d out of range [0,%d)", idx, len(s.Content))
		}
		clips = append(clips, s.Content[idx])
	}
	return clips, nil
}

// Extract probes the source once and derives one clip per interval.
// The first interval becomes the lead clip. Callers must Close the result.
func Extract(ctx context.Context, engine Engine, path string, intervals []Interval) (*Scenes, error) {
	if len(intervals) == 0 {
		return nil, fmt.Errorf("%w: no intervals", ErrInvalidRequest)
	}

	info, err := engine.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMediaOpen, path, err)
	}
	if info == nil || !info.HasVideo() {
		return nil, fmt.Errorf("%w: %s: no video stream", ErrMediaOpen, path)
	}

	src := &Source{path: path, info: *info}
	clips := make([]Clip, 0, len(intervals))
	for i, iv := range intervals {
		if info.Duration > 0 && iv.End > info.Duration+rangeTolerance {
			return nil, fmt.Errorf("%w: interval %d (%s) ends after %.3fs", ErrOutOfRange, i+1, iv, info.Duration)
		}
		clips = append(clips, Clip{index: i, start: iv.Start, end: iv.End, src: src})
	}

	return &Scenes{
		Source:  src,
		Lead:    clips[0],
		Content: clips[1:],
	}, nil
}

// WithScenes extracts scenes, runs fn, and releases the source on every path.
func WithScenes(ctx context.Context, engine Engine, path string, intervals []Interval, fn func(*Scenes) error) (err error) {
	scenes, err := Extract(ctx, engine, path, intervals)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := scenes.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(scenes)
}
