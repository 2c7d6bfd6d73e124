package media

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nextconvert/reelmix/internal/modules/montage"
	"github.com/nextconvert/reelmix/internal/shared/metrics"
	"go.uber.org/zap"
)

// stderrTail is how many trailing FFmpeg log lines are kept for error messages.
const stderrTail = 6

var progressRegex = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)

// Processor renders timelines with FFmpeg and probes media with ffprobe
type Processor struct {
	ffmpegPath        string
	ffprobePath       string
	logger            *zap.Logger
	metrics           *metrics.Metrics
	maxThreads        int  // Limit CPU threads (0 = auto/unlimited)
	useHardwareAccel  bool // Use hardware acceleration when available
	preferFastPresets bool // Use faster presets to reduce CPU load
	preset            string
	crf               int
}

// ProcessorConfig configures processor behavior
type ProcessorConfig struct {
	FFmpegPath        string
	FFprobePath       string
	MaxThreads        int    // 0 = unlimited, recommended: 2-4 for background processing
	UseHardwareAccel  bool   // Use VideoToolbox instead of libx264
	PreferFastPresets bool   // Use "veryfast" instead of "medium" when Preset is empty
	Preset            string // Explicit x264 preset, e.g. "ultrafast"
	CRF               int
	Metrics           *metrics.Metrics
}

var _ montage.Engine = (*Processor)(nil)

// NewProcessor creates a new media processor with cloud-friendly defaults
func NewProcessor(ffmpegPath string, logger *zap.Logger) *Processor {
	return NewProcessorWithConfig(ProcessorConfig{
		FFmpegPath:        ffmpegPath,
		PreferFastPresets: true,
	}, logger)
}

// NewProcessorWithConfig creates a processor with custom configuration
func NewProcessorWithConfig(config ProcessorConfig, logger *zap.Logger) *Processor {
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}
	if config.FFprobePath == "" {
		config.FFprobePath = "ffprobe"
	}
	if config.CRF <= 0 {
		config.CRF = 23
	}
	return &Processor{
		ffmpegPath:        config.FFmpegPath,
		ffprobePath:       config.FFprobePath,
		logger:            logger,
		metrics:           config.Metrics,
		maxThreads:        config.MaxThreads,
		useHardwareAccel:  config.UseHardwareAccel,
		preferFastPresets: config.PreferFastPresets,
		preset:            config.Preset,
		crf:               config.CRF,
	}
}

// ProgressFunc receives encode progress in percent of the timeline duration
type ProgressFunc func(percent int, stage string)

type progressKey struct{}

// WithProgress attaches a progress callback to renders running under ctx.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

func progressFrom(ctx context.Context) ProgressFunc {
	fn, _ := ctx.Value(progressKey{}).(ProgressFunc)
	return fn
}

// Probe extracts metadata using ffprobe
func (p *Processor) Probe(ctx context.Context, inputPath string) (*montage.MediaInfo, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	p.record("probe", err == nil, time.Since(start))
	if err != nil {
		p.logger.Debug("ffprobe failed", zap.Error(err), zap.String("path", inputPath))
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeOutput(output)
}

// Render encodes a timeline into outputPath in a single FFmpeg invocation
func (p *Processor) Render(ctx context.Context, tl *montage.Timeline, outputPath string) error {
	args, err := p.buildRenderArgs(tl, outputPath)
	if err != nil {
		return err
	}

	p.logger.Info("Executing FFmpeg render",
		zap.String("output", outputPath),
		zap.Int("segments", len(tl.Segments)),
		zap.Int("layers", len(tl.Layers)),
		zap.Float64("duration", tl.Duration),
	)
	p.logger.Debug("FFmpeg args", zap.Strings("args", args))

	return p.run(ctx, "render", tl.Duration, args)
}

// buildRenderArgs assembles the complete FFmpeg command line for a timeline
func (p *Processor) buildRenderArgs(tl *montage.Timeline, outputPath string) ([]string, error) {
	graph, err := buildRenderGraph(tl)
	if err != nil {
		return nil, err
	}

	args := []string{"-y", "-hide_banner", "-nostdin"}

	// Limit CPU threads to reduce system load
	if p.maxThreads > 0 {
		args = append(args, "-threads", strconv.Itoa(p.maxThreads))
	}

	args = append(args, graph.inputs...)
	args = append(args, "-filter_complex", strings.Join(graph.filters, ";"))
	args = append(args, "-map", graph.videoOut)
	if graph.audioOut != "" {
		args = append(args, "-map", graph.audioOut)
	}

	args = append(args, p.videoCodecArgs()...)
	args = append(args, "-pix_fmt", "yuv420p")
	if graph.audioOut != "" {
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	}

	// The sink writes to a temporary name, so the container cannot be guessed from it.
	args = append(args,
		"-t", num(tl.Duration),
		"-movflags", "+faststart",
		"-f", "mp4",
		outputPath,
	)
	return args, nil
}

func (p *Processor) videoCodecArgs() []string {
	if p.useHardwareAccel {
		return []string{"-c:v", "h264_videotoolbox", "-b:v", "5M"}
	}
	return []string{"-c:v", "libx264", "-preset", p.x264Preset(), "-crf", strconv.Itoa(p.crf)}
}

func (p *Processor) x264Preset() string {
	if p.preset != "" {
		return p.preset
	}
	if p.preferFastPresets {
		return "veryfast"
	}
	return "medium"
}

// run executes FFmpeg, streaming progress and keeping the log tail for errors
func (p *Processor) run(ctx context.Context, operation string, total float64, args []string) error {
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	// Capture stderr for progress
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		p.record(operation, false, time.Since(start))
		return fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	tail := p.parseProgress(stderr, total, progressFrom(ctx))

	err = cmd.Wait()
	p.record(operation, err == nil, time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("FFmpeg %s cancelled: %w", operation, ctx.Err())
		}
		if p.metrics != nil {
			p.metrics.RecordFFmpegError(operation, "exit")
		}
		return fmt.Errorf("FFmpeg %s failed: %w: %s", operation, err, strings.Join(tail, " | "))
	}
	return nil
}

// parseProgress reads FFmpeg stderr until EOF, reporting progress against
// total seconds. It returns the last log lines.
func (p *Processor) parseProgress(stderr io.Reader, total float64, onProgress ProgressFunc) []string {
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanLines)

	tail := make([]string, 0, stderrTail)
	lastPercent := -1
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		matches := progressRegex.FindStringSubmatch(line)
		if len(matches) == 0 {
			if len(tail) == stderrTail {
				tail = tail[1:]
			}
			tail = append(tail, line)
			continue
		}
		if onProgress == nil || total <= 0 {
			continue
		}

		hours, _ := strconv.Atoi(matches[1])
		minutes, _ := strconv.Atoi(matches[2])
		seconds, _ := strconv.Atoi(matches[3])
		elapsed := float64(hours*3600 + minutes*60 + seconds)

		percent := min(int(elapsed/total*100), 99)
		if percent > lastPercent {
			lastPercent = percent
			onProgress(percent, "encoding")
		}
	}
	// A status line longer than the scanner buffer stops Scan early; keep
	// draining so FFmpeg never blocks on a full pipe.
	io.Copy(io.Discard, stderr)
	return tail
}

// scanLines splits on \n and on the \r FFmpeg uses for its status line.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (p *Processor) record(operation string, success bool, duration time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordFFmpegOperation(operation, success, duration)
	}
}
