package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WorkspacePrefix prefixes the directory name of every run workspace
const WorkspacePrefix = "reelmix"

// Workspace is a private temporary directory owned by one pipeline run.
// Reclaim removes it and everything inside; it is safe to call more than once.
type Workspace struct {
	dir    string
	logger *zap.Logger
	once   sync.Once
}

// NewWorkspace creates a fresh directory under baseDir ("" means the OS temp dir)
func NewWorkspace(baseDir, prefix string, logger *zap.Logger) (*Workspace, error) {
	if baseDir != "" {
		if err := os.MkdirAll(baseDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create workspace root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(baseDir, prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{dir: dir, logger: logger}, nil
}

// Dir returns the workspace root
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace root
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Subdir creates and returns a directory inside the workspace
func (w *Workspace) Subdir(name string) (string, error) {
	dir := w.Path(SanitizeFilename(name))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// SaveUpload copies r into the workspace under a sanitized form of name.
func (w *Workspace) SaveUpload(name string, r io.Reader) (string, error) {
	path := w.Path(SanitizeFilename(name))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// Reclaim removes the workspace. Failures are logged, not returned.
func (w *Workspace) Reclaim() {
	w.once.Do(func() {
		if err := os.RemoveAll(w.dir); err != nil {
			w.logger.Warn("Failed to reclaim workspace", zap.String("dir", w.dir), zap.Error(err))
			return
		}
		w.logger.Debug("Workspace reclaimed", zap.String("dir", w.dir))
	})
}

// SweepWorkspaces removes workspaces under baseDir last modified before cutoff.
// They are left behind only when a process dies mid-run.
func SweepWorkspaces(baseDir string, cutoff time.Time) (int, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	matches, err := filepath.Glob(filepath.Join(baseDir, WorkspacePrefix+"-*"))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, dir := range matches {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// SanitizeFilename keeps the base name and replaces anything outside [A-Za-z0-9._-].
func SanitizeFilename(name string) string {
	name = filepath.Base(filepath.ToSlash(strings.ReplaceAll(name, `\`, "/")))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if strings.Trim(name, ".") == "" {
		return "upload"
	}
	return name
}
