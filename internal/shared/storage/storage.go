package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nextconvert/reelmix/internal/shared/config"
	"go.uber.org/zap"
)

// Zone represents a storage zone
type Zone string

const (
	ZoneUpload  Zone = "upload"
	ZoneWorking Zone = "working"
	ZoneOutput  Zone = "output"
)

// Zones lists every zone in cleanup order
var Zones = []Zone{ZoneUpload, ZoneWorking, ZoneOutput}

// TTL returns how long files are kept in the zone
func (z Zone) TTL() time.Duration {
	switch z {
	case ZoneUpload:
		return 24 * time.Hour
	case ZoneWorking:
		return 4 * time.Hour
	case ZoneOutput:
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// FileInfo represents metadata about a stored file
type FileInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Zone      Zone      `json:"zone"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Backend defines the storage backend interface
type Backend interface {
	Store(ctx context.Context, zone Zone, filename string, reader io.Reader) (string, error)
	Retrieve(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	GetSize(ctx context.Context, path string) (int64, error)
	// Path returns the storage path a file would be stored under
	Path(zone Zone, filename string) string
	// ListExpired returns the paths in zone last modified before cutoff
	ListExpired(ctx context.Context, zone Zone, cutoff time.Time) ([]string, error)
}

// Presigner is implemented by backends that can hand out direct download URLs
type Presigner interface {
	PresignDownload(ctx context.Context, path string, expiry time.Duration) (string, error)
}

// BatchDeleter is implemented by backends that remove many files per request
type BatchDeleter interface {
	DeleteBatch(ctx context.Context, paths []string) (int, error)
}

// Service provides file storage operations
type Service struct {
	backend Backend
	logger  *zap.Logger
}

// NewService creates a new storage service
func NewService(cfg config.StorageConfig, logger *zap.Logger) (*Service, error) {
	var backend Backend
	var err error

	switch cfg.Backend {
	case "s3":
		backend, err = NewS3Backend(cfg)
	default:
		backend, err = NewLocalBackend(cfg.BasePath)
	}
	if err != nil {
		return nil, err
	}

	return NewServiceWithBackend(backend, logger), nil
}

// NewServiceWithBackend wraps an existing backend
func NewServiceWithBackend(backend Backend, logger *zap.Logger) *Service {
	return &Service{backend: backend, logger: logger}
}

// Store saves a file to the zone under a generated name that keeps the original extension
func (s *Service) Store(ctx context.Context, zone Zone, originalName string, reader io.Reader) (*FileInfo, error) {
	fileID := uuid.New().String()
	info, err := s.store(ctx, zone, fileID+filepath.Ext(originalName), reader)
	if err != nil {
		return nil, err
	}
	info.ID = fileID
	info.Name = originalName
	return info, nil
}

// StoreAs saves a file to the zone under the given name, which may contain a directory
func (s *Service) StoreAs(ctx context.Context, zone Zone, name string, reader io.Reader) (*FileInfo, error) {
	if !validName(name) {
		return nil, fmt.Errorf("invalid storage name %q", name)
	}
	info, err := s.store(ctx, zone, name, reader)
	if err != nil {
		return nil, err
	}
	info.ID = name
	info.Name = filepath.Base(name)
	return info, nil
}

// StoreFile copies a local file into the zone under the given name
func (s *Service) StoreFile(ctx context.Context, zone Zone, name, localPath string) (*FileInfo, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()
	return s.StoreAs(ctx, zone, name, f)
}

func (s *Service) store(ctx context.Context, zone Zone, filename string, reader io.Reader) (*FileInfo, error) {
	path, err := s.backend.Store(ctx, zone, filename, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	size, err := s.backend.GetSize(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to get file size: %w", err)
	}

	now := time.Now()
	return &FileInfo{
		Path:      path,
		Zone:      zone,
		Size:      size,
		CreatedAt: now,
		ExpiresAt: now.Add(zone.TTL()),
	}, nil
}

// Retrieve gets a file from storage
func (s *Service) Retrieve(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.backend.Retrieve(ctx, path)
}

// Fetch copies a stored file to a local path
func (s *Service) Fetch(ctx context.Context, path, destPath string) error {
	reader, err := s.backend.Retrieve(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to retrieve %s: %w", path, err)
	}
	defer reader.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		os.Remove(destPath)
		return fmt.Errorf("failed to copy %s: %w", path, err)
	}
	return out.Close()
}

// Delete removes a file from storage
func (s *Service) Delete(ctx context.Context, path string) error {
	return s.backend.Delete(ctx, path)
}

// DeleteQuietly removes files, logging failures instead of returning them
func (s *Service) DeleteQuietly(ctx context.Context, paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := s.backend.Delete(ctx, p); err != nil {
			s.logger.Warn("Failed to delete stored file", zap.String("path", p), zap.Error(err))
		}
	}
}

// Exists checks if a file exists
func (s *Service) Exists(ctx context.Context, path string) (bool, error) {
	return s.backend.Exists(ctx, path)
}

// Path returns the storage path of a file in a zone
func (s *Service) Path(zone Zone, name string) string {
	return s.backend.Path(zone, name)
}

// DownloadURL returns a direct URL for the file when the backend supports it
func (s *Service) DownloadURL(ctx context.Context, path string, expiry time.Duration) (string, bool, error) {
	presigner, ok := s.backend.(Presigner)
	if !ok {
		return "", false, nil
	}
	url, err := presigner.PresignDownload(ctx, path, expiry)
	if err != nil {
		return "", false, err
	}
	return url, true, nil
}

// DeleteExpired removes every file in the zone older than the zone TTL
func (s *Service) DeleteExpired(ctx context.Context, zone Zone, now time.Time) (int, error) {
	paths, err := s.backend.ListExpired(ctx, zone, now.Add(-zone.TTL()))
	if err != nil {
		return 0, fmt.Errorf("failed to list %s zone: %w", zone, err)
	}

	if batch, ok := s.backend.(BatchDeleter); ok {
		deleted, err := batch.DeleteBatch(ctx, paths)
		if err != nil {
			s.logger.Warn("Some expired files were not deleted",
				zap.String("zone", string(zone)), zap.Int("deleted", deleted), zap.Error(err))
		}
		return deleted, ctx.Err()
	}

	deleted := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := s.backend.Delete(ctx, p); err != nil {
			s.logger.Warn("Failed to delete expired file", zap.String("path", p), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted, nil
}

// validName rejects absolute names and names that climb out of the zone
func validName(name string) bool {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." || part == "" {
			return false
		}
	}
	return true
}

// LocalBackend implements local filesystem storage
type LocalBackend struct {
	basePath string
}

// NewLocalBackend creates a new local storage backend
func NewLocalBackend(basePath string) (*LocalBackend, error) {
	// Ensure base directories exist
	for _, zone := range Zones {
		path := filepath.Join(basePath, string(zone))
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}

	return &LocalBackend{basePath: basePath}, nil
}

func (b *LocalBackend) Path(zone Zone, filename string) string {
	return filepath.Join(b.basePath, string(zone), filepath.FromSlash(filename))
}

func (b *LocalBackend) Store(ctx context.Context, zone Zone, filename string, reader io.Reader) (string, error) {
	path := b.Path(zone, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	file, err := os.Create(path)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		os.Remove(path)
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", err
	}

	return path, nil
}

func (b *LocalBackend) Retrieve(ctx context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (b *LocalBackend) Delete(ctx context.Context, path string) error {
	return os.Remove(path)
}

func (b *LocalBackend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (b *LocalBackend) GetSize(ctx context.Context, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (b *LocalBackend) ListExpired(ctx context.Context, zone Zone, cutoff time.Time) ([]string, error) {
	var files []string
	err := filepath.Walk(filepath.Join(b.basePath, string(zone)), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && info.ModTime().Before(cutoff) {
			files = append(files, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return files, err
}
