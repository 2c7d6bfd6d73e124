package montage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScenes(t *testing.T, intervals ...Interval) *Scenes {
	t.Helper()
	engine := newFakeEngine().withVideo("in.mp4", 60)
	scenes, err := Extract(context.Background(), engine, "in.mp4", intervals)
	require.NoError(t, err)
	return scenes
}

func TestCompose(t *testing.T) {
	scenes := testScenes(t, Interval{0, 3}, Interval{3, 10}, Interval{10, 14}, Interval{14, 20})
	layout := DefaultLayout()

	t.Run("bare timeline without decorations", func(t *testing.T) {
		tl, err := Compose(layout, scenes.Lead, scenes.Content[1:], Assets{}, "")
		require.NoError(t, err)

		assert.Equal(t, 13.0, tl.MainDuration)
		assert.Equal(t, tl.MainDuration, tl.Duration)
		assert.Len(t, tl.Segments, 3)
		assert.Equal(t, 0, tl.Segments[0].Index())

		kinds := []LayerKind{}
		for _, l := range tl.Layers {
			kinds = append(kinds, l.Kind)
			assert.Nil(t, l.FadeOut)
		}
		assert.Equal(t, []LayerKind{LayerBackground, LayerForeground}, kinds)
		assert.Nil(t, tl.Audio)
		assert.True(t, tl.SourceAudio)
	})

	t.Run("background covers the canvas and foreground is scaled", func(t *testing.T) {
		tl, err := Compose(layout, scenes.Lead, nil, Assets{}, "")
		require.NoError(t, err)

		bg, ok := tl.Layer(LayerBackground)
		require.True(t, ok)
		assert.Equal(t, 3840, bg.Width)
		assert.Equal(t, 2160, bg.Height)
		assert.GreaterOrEqual(t, bg.Width, tl.Width)
		assert.GreaterOrEqual(t, bg.Height, tl.Height)
		assert.Equal(t, 20.0, bg.Blur)

		fg, ok := tl.Layer(LayerForeground)
		require.True(t, ok)
		assert.Equal(t, 2112, fg.Width)
		assert.Equal(t, 1188, fg.Height)
		assert.True(t, fg.Placement.CenterX && fg.Placement.CenterY)
	})

	t.Run("small background scale is raised to fill", func(t *testing.T) {
		small := layout
		small.BackgroundScale = 0.5
		tl, err := Compose(small, scenes.Lead, nil, Assets{}, "")
		require.NoError(t, err)

		bg, _ := tl.Layer(LayerBackground)
		assert.GreaterOrEqual(t, bg.Height, small.Height)
	})

	t.Run("watermark layer", func(t *testing.T) {
		tl, err := Compose(layout, scenes.Lead, scenes.Content, Assets{WatermarkPath: "assets/watermark.png"}, "")
		require.NoError(t, err)

		wm, ok := tl.Layer(LayerWatermark)
		require.True(t, ok)
		assert.Equal(t, 1080, wm.Width)
		assert.Equal(t, AutoSize, wm.Height)
		assert.InDelta(t, 1555.2, wm.Placement.Y, 1e-9)
		assert.True(t, wm.Placement.CenterX)
		assert.False(t, wm.Placement.CenterY)
		assert.Equal(t, 0.5, wm.Opacity)
		assert.Equal(t, tl.MainDuration, wm.Duration)
		assert.True(t, wm.Still)
		assert.Nil(t, wm.FadeOut)
	})

	t.Run("outro cross-fades with the main layers", func(t *testing.T) {
		assets := Assets{WatermarkPath: "wm.png", OutroPath: "outro.mp4", OutroDuration: 4}
		tl, err := Compose(layout, scenes.Lead, scenes.Content[:1], assets, "")
		require.NoError(t, err)

		require.Len(t, tl.Layers, 4)
		assert.Equal(t, LayerOutro, tl.Layers[3].Kind)

		outro := tl.Layers[3]
		assert.Equal(t, 9.5, outro.Start)
		require.NotNil(t, outro.FadeIn)
		assert.Equal(t, Fade{Start: 9.5, Duration: 0.5}, *outro.FadeIn)
		require.NotNil(t, outro.ChromaKey)
		assert.Equal(t, 80.0, outro.ChromaKey.Threshold)
		assert.Equal(t, 10.0, outro.ChromaKey.Softness)

		for _, l := range tl.Layers[:3] {
			require.NotNil(t, l.FadeOut, l.Kind)
			assert.Equal(t, Fade{Start: 9.5, Duration: 0.5}, *l.FadeOut)
		}

		assert.Equal(t, 10.0, tl.MainDuration)
		assert.Equal(t, 13.5, tl.Duration)
	})

	t.Run("short outro does not shorten the timeline", func(t *testing.T) {
		tl, err := Compose(layout, scenes.Lead, nil, Assets{OutroPath: "outro.mp4", OutroDuration: 0.2}, "")
		require.NoError(t, err)
		assert.Equal(t, 3.0, tl.Duration)
	})

	t.Run("audio is cut to the timeline duration", func(t *testing.T) {
		tl, err := Compose(layout, scenes.Lead, scenes.Content, Assets{OutroPath: "outro.mp4", OutroDuration: 2}, "song.mp3")
		require.NoError(t, err)
		require.NotNil(t, tl.Audio)
		assert.Equal(t, "song.mp3", tl.Audio.Path)
		assert.Equal(t, tl.Duration, tl.Audio.Duration)
		assert.False(t, tl.SourceAudio)
	})

	t.Run("deterministic", func(t *testing.T) {
		assets := Assets{WatermarkPath: "wm.png", OutroPath: "outro.mp4", OutroDuration: 3}
		a, err := Compose(layout, scenes.Lead, scenes.Content, assets, "a.mp3")
		require.NoError(t, err)
		b, err := Compose(layout, scenes.Lead, scenes.Content, assets, "a.mp3")
		require.NoError(t, err)
		assert.Equal(t, a.Duration, b.Duration)
		assert.Equal(t, a.Layers, b.Layers)
	})

	t.Run("rejects clips of another source", func(t *testing.T) {
		other := testScenes(t, Interval{0, 1}, Interval{1, 2})
		_, err := Compose(layout, scenes.Lead, other.Content, Assets{}, "")
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}
