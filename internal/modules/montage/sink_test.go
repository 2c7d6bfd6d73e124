package montage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSinkWrite(t *testing.T) {
	ctx := context.Background()
	scenes := testScenes(t, Interval{0, 2}, Interval{2, 5})
	tl, err := Compose(DefaultLayout(), scenes.Lead, scenes.Content, Assets{}, "")
	require.NoError(t, err)

	t.Run("writes numbered output", func(t *testing.T) {
		dir := t.TempDir()
		sink := NewSink(newFakeEngine(), filepath.Join(dir, "out"), zap.NewNop())

		out, err := sink.Write(ctx, tl, 7)
		require.NoError(t, err)
		assert.Equal(t, 7, out.Sequence)
		assert.Equal(t, "combination_007.mp4", out.Name)
		assert.Equal(t, filepath.Join(dir, "out", "combination_007.mp4"), out.Path)
		assert.Equal(t, 5.0, out.Duration)
		assert.FileExists(t, out.Path)

		entries, err := os.ReadDir(filepath.Join(dir, "out"))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("failed render leaves no file", func(t *testing.T) {
		dir := t.TempDir()
		engine := newFakeEngine()
		engine.failRender[1] = true
		sink := NewSink(engine, dir, zap.NewNop())

		_, err := sink.Write(ctx, tl, 1)
		require.Error(t, err)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("custom pattern", func(t *testing.T) {
		sink := NewSink(newFakeEngine(), t.TempDir(), zap.NewNop()).WithPattern("short_%d.mp4")
		assert.Equal(t, "short_3.mp4", sink.Name(3))
	})

	t.Run("released source is rejected", func(t *testing.T) {
		other := testScenes(t, Interval{0, 2})
		otl, err := Compose(DefaultLayout(), other.Lead, nil, Assets{}, "")
		require.NoError(t, err)
		require.NoError(t, other.Close())

		engine := newFakeEngine()
		_, err = NewSink(engine, t.TempDir(), zap.NewNop()).Write(ctx, otl, 1)
		assert.ErrorIs(t, err, ErrSourceClosed)
		assert.Empty(t, engine.renders)
	})
}
