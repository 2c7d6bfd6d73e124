package media

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nextconvert/reelmix/internal/modules/montage"
	"github.com/nextconvert/reelmix/internal/shared/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubEngine struct {
	info *montage.MediaInfo
}

func (s stubEngine) Probe(context.Context, string) (*montage.MediaInfo, error) {
	return s.info, nil
}

func (s stubEngine) Render(context.Context, *montage.Timeline, string) error {
	return nil
}

func testTimeline(t *testing.T, audio bool, assets montage.Assets, audioPath string) *montage.Timeline {
	t.Helper()
	info := &montage.MediaInfo{Duration: 30, VideoCodec: "h264", Width: 1920, Height: 1080, FrameRate: 29.97}
	if audio {
		info.AudioCodec = "aac"
	}
	scenes, err := montage.Extract(context.Background(), stubEngine{info: info}, "/tmp/in.mp4",
		[]montage.Interval{{Start: 0, End: 3}, {Start: 3, End: 10}, {Start: 12.5, End: 14}})
	require.NoError(t, err)

	tl, err := montage.Compose(montage.DefaultLayout(), scenes.Lead, scenes.Content, assets, audioPath)
	require.NoError(t, err)
	return tl
}

func TestNewProcessor(t *testing.T) {
	logger := zap.NewNop()

	t.Run("creates processor with defaults", func(t *testing.T) {
		p := NewProcessor("", logger)
		assert.NotNil(t, p)
		assert.Equal(t, "ffmpeg", p.ffmpegPath)
		assert.Equal(t, "ffprobe", p.ffprobePath)
		assert.Equal(t, 0, p.maxThreads)
		assert.False(t, p.useHardwareAccel)
		assert.True(t, p.preferFastPresets)
		assert.Equal(t, 23, p.crf)
	})

	t.Run("creates processor with custom ffmpeg path", func(t *testing.T) {
		p := NewProcessor("/usr/local/bin/ffmpeg", logger)
		assert.Equal(t, "/usr/local/bin/ffmpeg", p.ffmpegPath)
	})
}

func TestNewProcessorWithConfig(t *testing.T) {
	logger := zap.NewNop()

	t.Run("creates processor with custom config", func(t *testing.T) {
		config := ProcessorConfig{
			FFmpegPath:        "/custom/ffmpeg",
			FFprobePath:       "/custom/ffprobe",
			MaxThreads:        4,
			UseHardwareAccel:  true,
			PreferFastPresets: false,
			Preset:            "ultrafast",
			CRF:               28,
		}
		p := NewProcessorWithConfig(config, logger)
		assert.Equal(t, "/custom/ffmpeg", p.ffmpegPath)
		assert.Equal(t, "/custom/ffprobe", p.ffprobePath)
		assert.Equal(t, 4, p.maxThreads)
		assert.True(t, p.useHardwareAccel)
		assert.False(t, p.preferFastPresets)
		assert.Equal(t, 28, p.crf)
	})

	t.Run("preset selection", func(t *testing.T) {
		assert.Equal(t, "ultrafast", NewProcessorWithConfig(ProcessorConfig{Preset: "ultrafast"}, logger).x264Preset())
		assert.Equal(t, "veryfast", NewProcessorWithConfig(ProcessorConfig{PreferFastPresets: true}, logger).x264Preset())
		assert.Equal(t, "medium", NewProcessorWithConfig(ProcessorConfig{}, logger).x264Preset())
	})
}

func TestBuildRenderArgs(t *testing.T) {
	logger := zap.NewNop()

	t.Run("bare timeline with source audio", func(t *testing.T) {
		p := NewProcessorWithConfig(ProcessorConfig{MaxThreads: 2, Preset: "ultrafast"}, logger)
		tl := testTimeline(t, true, montage.Assets{}, "")

		args, err := p.buildRenderArgs(tl, "/tmp/out/.combination_001.mp4.part")
		require.NoError(t, err)
		joined := strings.Join(args, " ")

		assert.Contains(t, joined, "-threads 2")
		assert.Contains(t, joined, "-i /tmp/in.mp4")
		assert.Equal(t, 1, strings.Count(joined, "-i "))
		assert.Contains(t, joined, "-c:v libx264 -preset ultrafast -crf 23")
		assert.Contains(t, joined, "-c:a aac")
		assert.Contains(t, joined, "-t 11.5")
		assert.Contains(t, joined, "-f mp4")
		assert.Equal(t, "/tmp/out/.combination_001.mp4.part", args[len(args)-1])

		graph := filterComplex(t, args)
		assert.Contains(t, graph, "[0:v]trim=start=12.5:end=14,setpts=PTS-STARTPTS[v2]")
		assert.Contains(t, graph, "[0:a]atrim=start=3:end=10,asetpts=PTS-STARTPTS[a1]")
		assert.Contains(t, graph, "[v0][a0][v1][a1][v2][a2]concat=n=3:v=1:a=1[mainv][maina]")
		assert.Contains(t, graph, "[mainv]split=2[m0][m1]")
		assert.Contains(t, graph, "color=c=black:s=1080x1920:r=29.97:d=11.5[base]")
		assert.Contains(t, graph, "[m0]scale=3840:2160,gblur=sigma=20[l0]")
		assert.Contains(t, graph, "[m1]scale=2112:1188[l1]")
		assert.Contains(t, graph, "[base][l0]overlay=x=(W-w)/2:y=(H-h)/2:eof_action=pass:format=auto[o0]")
		assert.Contains(t, graph, "[o1]format=yuv420p[vout]")
		assert.Contains(t, graph, "[maina]atrim=end=11.5,asetpts=PTS-STARTPTS[aout]")
		assert.NotContains(t, graph, "fade")
	})

	t.Run("decorated timeline with external audio", func(t *testing.T) {
		p := NewProcessorWithConfig(ProcessorConfig{UseHardwareAccel: true}, logger)
		assets := montage.Assets{WatermarkPath: "/assets/watermark.png", OutroPath: "/assets/outro.mp4", OutroDuration: 4}
		tl := testTimeline(t, true, assets, "/tmp/song.mp3")

		args, err := p.buildRenderArgs(tl, "/tmp/out.part")
		require.NoError(t, err)
		joined := strings.Join(args, " ")

		assert.Contains(t, joined, "-loop 1 -t 11.5 -i /assets/watermark.png")
		assert.Contains(t, joined, "-i /assets/outro.mp4")
		assert.Contains(t, joined, "-i /tmp/song.mp3")
		assert.Contains(t, joined, "-c:v h264_videotoolbox")
		assert.Contains(t, joined, "-t 15")

		graph := filterComplex(t, args)
		assert.NotContains(t, graph, "[0:a]")
		assert.Contains(t, graph, "concat=n=3:v=1:a=0[mainv]")
		assert.Contains(t, graph, "fade=t=out:st=11:d=0.5:alpha=1[l0]")
		assert.Contains(t, graph, "[1:v]scale=1080:-2,setpts=PTS-STARTPTS+0/TB,format=rgba,colorchannelmixer=aa=0.5,fade=t=out:st=11:d=0.5:alpha=1[l2]")
		assert.Contains(t, graph, "overlay=x=(W-w)/2:y=1555:eof_action=pass")
		assert.Contains(t, graph, "[2:v]scale=1080:-2,setpts=PTS-STARTPTS+11/TB,format=rgba,colorkey=color=black:similarity=0.181:blend=0.023,fade=t=in:st=11:d=0.5:alpha=1[l3]")
		assert.Contains(t, graph, "[3:a]atrim=end=15,asetpts=PTS-STARTPTS[aout]")
	})

	t.Run("silent source without audio file has no audio map", func(t *testing.T) {
		p := NewProcessor("", logger)
		tl := testTimeline(t, false, montage.Assets{}, "")

		args, err := p.buildRenderArgs(tl, "/tmp/out.part")
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(strings.Join(args, " "), "-map "))
		assert.NotContains(t, args, "-c:a")
	})
}

func TestBuildRenderArgsMixedSources(t *testing.T) {
	info := &montage.MediaInfo{Duration: 30, VideoCodec: "h264", Width: 1920, Height: 1080}
	a, err := montage.Extract(context.Background(), stubEngine{info: info}, "/tmp/a.mp4",
		[]montage.Interval{{Start: 0, End: 3}, {Start: 3, End: 6}})
	require.NoError(t, err)
	b, err := montage.Extract(context.Background(), stubEngine{info: info}, "/tmp/b.mp4",
		[]montage.Interval{{Start: 0, End: 3}, {Start: 3, End: 6}})
	require.NoError(t, err)

	tl, err := montage.Compose(montage.DefaultLayout(), a.Lead, a.Content, montage.Assets{}, "")
	require.NoError(t, err)
	tl.Segments[1] = b.Content[0]

	_, err = NewProcessor("", zap.NewNop()).buildRenderArgs(tl, "/tmp/out.part")
	assert.ErrorContains(t, err, "/tmp/b.mp4")
}

func filterComplex(t *testing.T, args []string) string {
	t.Helper()
	for i, a := range args {
		if a == "-filter_complex" {
			return args[i+1]
		}
	}
	t.Fatal("no -filter_complex argument")
	return ""
}

func TestChromaKeyConversion(t *testing.T) {
	assert.Equal(t, 0.181, similarity(80))
	assert.Equal(t, 0.023, blend(10))
	assert.Equal(t, 0.01, similarity(0))
	assert.Equal(t, 1.0, similarity(1000))
	assert.Equal(t, 0.0, blend(-5))
}

func TestParseProgress(t *testing.T) {
	p := NewProcessor("", zap.NewNop())

	stderr := strings.NewReader(strings.Join([]string{
		"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4':",
		"frame=  10 fps=0.0 q=29.0 size=       0kB time=00:00:02.00 bitrate=   0.2kbits/s speed=3.9x\r" +
			"frame=  40 fps=0.0 q=29.0 size=     256kB time=00:00:05.00 bitrate= 419.4kbits/s speed=4.1x",
		"frame= 120 fps= 60 q=29.0 size=    1024kB time=00:00:10.50 bitrate= 800kbits/s speed=4.0x",
		"[aac @ 0x1] Qavg: 1024.000",
		"Conversion failed!",
	}, "\n"))

	var percents []int
	tail := p.parseProgress(stderr, 10, func(percent int, stage string) {
		assert.Equal(t, "encoding", stage)
		percents = append(percents, percent)
	})

	assert.Equal(t, []int{20, 50, 99}, percents)
	assert.Equal(t, []string{
		"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4':",
		"[aac @ 0x1] Qavg: 1024.000",
		"Conversion failed!",
	}, tail)
}

func TestParseProgressDrainsOverlongLines(t *testing.T) {
	p := NewProcessor("", zap.NewNop())
	pr, pw := io.Pipe()

	written := make(chan error, 1)
	go func() {
		// One line past the scanner buffer, then more output that must still be read.
		_, err := pw.Write(bytes.Repeat([]byte("x"), 128*1024))
		if err == nil {
			_, err = pw.Write([]byte("\nframe=1 time=00:00:01.00\nConversion failed!\n"))
		}
		pw.CloseWithError(err)
		written <- err
	}()

	p.parseProgress(pr, 10, nil)

	select {
	case err := <-written:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stderr writer blocked after the scanner stopped")
	}
}

func TestProgressContext(t *testing.T) {
	assert.Nil(t, progressFrom(context.Background()))

	called := false
	ctx := WithProgress(context.Background(), func(int, string) { called = true })
	progressFrom(ctx)(1, "encoding")
	assert.True(t, called)
}

func TestParseProbeOutput(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
			 "r_frame_rate": "30/1", "avg_frame_rate": "30000/1001", "bit_rate": "4000000"},
			{"index": 1, "codec_type": "audio", "codec_name": "aac", "channels": 2, "sample_rate": "48000"},
			{"index": 2, "codec_type": "video", "codec_name": "mjpeg", "width": 300, "height": 300,
			 "disposition": {"attached_pic": 1}}
		],
		"format": {"filename": "in.mp4", "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
		           "duration": "20.020000", "size": "10485760", "bit_rate": "4190000"}
	}`)

	info, err := parseProbeOutput(data)
	require.NoError(t, err)
	assert.Equal(t, 20.02, info.Duration)
	assert.Equal(t, int64(10485760), info.Size)
	assert.Equal(t, 4190000, info.BitRate)
	assert.Equal(t, "h264", info.VideoCodec)
	assert.Equal(t, "aac", info.AudioCodec)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.InDelta(t, 29.97, info.FrameRate, 0.01)
	assert.Len(t, info.Streams, 3)
	assert.Equal(t, 48000, info.Streams[1].SampleRate)
	assert.True(t, info.HasVideo())
	assert.True(t, info.HasAudio())

	_, err = parseProbeOutput([]byte("not json"))
	assert.Error(t, err)
}

func TestParseFrameRate(t *testing.T) {
	assert.Equal(t, 30.0, parseFrameRate("30/1"))
	assert.Equal(t, 0.0, parseFrameRate("0/0"))
	assert.Equal(t, 0.0, parseFrameRate(""))
	assert.Equal(t, 25.0, parseFrameRate("25"))
	assert.Equal(t, 0.0, parseFrameRate("1/0"))
}

func TestNewPipeline(t *testing.T) {
	t.Run("maps config onto the processor", func(t *testing.T) {
		cfg := &config.Config{
			FFmpegPath:       "/opt/ffmpeg",
			FFprobePath:      "/opt/ffprobe",
			FFmpegMaxThreads: 3,
			FFmpegPreset:     "fast",
			FFmpegCRF:        20,
		}
		pc := ConfigFromEnv(cfg, nil)
		assert.Equal(t, "/opt/ffmpeg", pc.FFmpegPath)
		assert.Equal(t, "/opt/ffprobe", pc.FFprobePath)
		assert.Equal(t, 3, pc.MaxThreads)
		assert.Equal(t, "fast", pc.Preset)
		assert.Equal(t, 20, pc.CRF)
	})

	t.Run("merges presets file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "presets.yaml")
		require.NoError(t, os.WriteFile(path, []byte("presets:\n  loud:\n    name: Loud\n    mode: single\n"), 0o644))

		presets, pipeline, err := NewPipeline(&config.Config{Montage: config.MontageConfig{PresetsFile: path}}, nil, zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, pipeline)
		_, err = presets.Get("loud")
		assert.NoError(t, err)
		_, err = presets.Get("classic")
		assert.NoError(t, err)
	})

	t.Run("missing presets file", func(t *testing.T) {
		_, _, err := NewPipeline(&config.Config{Montage: config.MontageConfig{PresetsFile: "/nonexistent/presets.yaml"}}, nil, zap.NewNop())
		assert.Error(t, err)
	})
}
