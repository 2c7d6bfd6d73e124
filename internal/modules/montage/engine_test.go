package montage

import (
	"context"
	"errors"
	"os"
	"sync"
)

// fakeEngine probes from a table and "renders" by writing the timeline duration.
type fakeEngine struct {
	mu       sync.Mutex
	infos    map[string]*MediaInfo
	probeErr error
	// failRender makes the n-th render call (1-based) fail after writing a partial file.
	failRender map[int]bool
	renders    []*Timeline
	probes     []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		infos:      make(map[string]*MediaInfo),
		failRender: make(map[int]bool),
	}
}

func (f *fakeEngine) withVideo(path string, duration float64) *fakeEngine {
	f.infos[path] = &MediaInfo{
		Format:     "mov,mp4,m4a,3gp,3g2,mj2",
		Duration:   duration,
		VideoCodec: "h264",
		AudioCodec: "aac",
		Width:      1920,
		Height:     1080,
		FrameRate:  30,
	}
	return f
}

func (f *fakeEngine) Probe(_ context.Context, path string) (*MediaInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes = append(f.probes, path)
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	info, ok := f.infos[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	copied := *info
	return &copied, nil
}

func (f *fakeEngine) Render(_ context.Context, tl *Timeline, outputPath string) error {
	f.mu.Lock()
	f.renders = append(f.renders, tl)
	n := len(f.renders)
	fail := f.failRender[n]
	f.mu.Unlock()

	if err := os.WriteFile(outputPath, []byte("partial"), 0644); err != nil {
		return err
	}
	if fail {
		return errors.New("encoder exited with status 1")
	}
	return nil
}

var _ Engine = (*fakeEngine)(nil)
