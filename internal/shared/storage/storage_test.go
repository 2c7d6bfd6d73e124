package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLocalService(t *testing.T) (*Service, string) {
	t.Helper()
	base := t.TempDir()
	backend, err := NewLocalBackend(base)
	require.NoError(t, err)
	return NewServiceWithBackend(backend, zap.NewNop()), base
}

func TestZoneTTL(t *testing.T) {
	assert.Equal(t, 24*time.Hour, ZoneUpload.TTL())
	assert.Equal(t, 4*time.Hour, ZoneWorking.TTL())
	assert.Equal(t, 7*24*time.Hour, ZoneOutput.TTL())
}

func TestServiceStore(t *testing.T) {
	ctx := context.Background()

	t.Run("generated name keeps extension", func(t *testing.T) {
		svc, base := newLocalService(t)
		info, err := svc.Store(ctx, ZoneUpload, "holiday.mp4", strings.NewReader("video"))
		require.NoError(t, err)

		assert.Equal(t, "holiday.mp4", info.Name)
		assert.Equal(t, filepath.Join(base, "upload", info.ID+".mp4"), info.Path)
		assert.Equal(t, int64(5), info.Size)
		assert.WithinDuration(t, info.CreatedAt.Add(24*time.Hour), info.ExpiresAt, time.Second)
	})

	t.Run("named output in run directory", func(t *testing.T) {
		svc, base := newLocalService(t)
		info, err := svc.StoreAs(ctx, ZoneOutput, "run-1/combination_001.mp4", strings.NewReader("mp4"))
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(base, "output", "run-1", "combination_001.mp4"), info.Path)
		assert.Equal(t, "combination_001.mp4", info.Name)
		assert.Equal(t, info.Path, svc.Path(ZoneOutput, "run-1/combination_001.mp4"))
	})

	t.Run("rejects names escaping the zone", func(t *testing.T) {
		svc, _ := newLocalService(t)
		for _, name := range []string{"", "../x.mp4", "/etc/passwd", "a//b"} {
			_, err := svc.StoreAs(ctx, ZoneOutput, name, strings.NewReader("x"))
			assert.Error(t, err, name)
		}
	})

	t.Run("store file and fetch back", func(t *testing.T) {
		svc, _ := newLocalService(t)
		src := filepath.Join(t.TempDir(), "local.mp4")
		require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

		info, err := svc.StoreFile(ctx, ZoneOutput, "r/out.mp4", src)
		require.NoError(t, err)

		dest := filepath.Join(t.TempDir(), "copy.mp4")
		require.NoError(t, svc.Fetch(ctx, info.Path, dest))
		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))

		rc, err := svc.Retrieve(ctx, info.Path)
		require.NoError(t, err)
		got, _ := io.ReadAll(rc)
		rc.Close()
		assert.Equal(t, "payload", string(got))
	})

	t.Run("local backend has no presigned urls", func(t *testing.T) {
		svc, _ := newLocalService(t)
		_, ok, err := svc.DownloadURL(ctx, "x", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestDeleteExpired(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLocalService(t)

	old, err := svc.StoreAs(ctx, ZoneWorking, "old.tmp", strings.NewReader("a"))
	require.NoError(t, err)
	fresh, err := svc.StoreAs(ctx, ZoneWorking, "fresh.tmp", strings.NewReader("b"))
	require.NoError(t, err)
	kept, err := svc.StoreAs(ctx, ZoneOutput, "r/kept.mp4", strings.NewReader("c"))
	require.NoError(t, err)

	stale := time.Now().Add(-5 * time.Hour)
	require.NoError(t, os.Chtimes(old.Path, stale, stale))
	require.NoError(t, os.Chtimes(kept.Path, stale, stale))

	deleted, err := svc.DeleteExpired(ctx, ZoneWorking, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	exists, _ := svc.Exists(ctx, old.Path)
	assert.False(t, exists)
	exists, _ = svc.Exists(ctx, fresh.Path)
	assert.True(t, exists)

	deleted, err = svc.DeleteExpired(ctx, ZoneOutput, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestDeleteQuietly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLocalService(t)
	info, err := svc.StoreAs(ctx, ZoneUpload, "a.mp4", strings.NewReader("a"))
	require.NoError(t, err)

	svc.DeleteQuietly(ctx, info.Path, "", "/does/not/exist")

	exists, _ := svc.Exists(ctx, info.Path)
	assert.False(t, exists)
}

type batchBackend struct {
	*LocalBackend
	batches [][]string
}

func (b *batchBackend) DeleteBatch(ctx context.Context, paths []string) (int, error) {
	b.batches = append(b.batches, paths)
	for _, p := range paths {
		if err := b.Delete(ctx, p); err != nil {
			return 0, err
		}
	}
	return len(paths), nil
}

func TestDeleteExpiredBatch(t *testing.T) {
	ctx := context.Background()
	local, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	backend := &batchBackend{LocalBackend: local}
	svc := NewServiceWithBackend(backend, zap.NewNop())

	stale := time.Now().Add(-25 * time.Hour)
	for _, name := range []string{"a.mp4", "b.mp3"} {
		info, err := svc.StoreAs(ctx, ZoneUpload, name, strings.NewReader(name))
		require.NoError(t, err)
		require.NoError(t, os.Chtimes(info.Path, stale, stale))
	}
	_, err = svc.StoreAs(ctx, ZoneUpload, "c.mp4", strings.NewReader("c"))
	require.NoError(t, err)

	deleted, err := svc.DeleteExpired(ctx, ZoneUpload, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	require.Len(t, backend.batches, 1)
	assert.Len(t, backend.batches[0], 2)
}
