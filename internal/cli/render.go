package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/nextconvert/reelmix/internal/modules/media"
	"github.com/nextconvert/reelmix/internal/modules/montage"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type renderFlags struct {
	video     string
	audio     string
	intervals string
	out       string
	mode      string
	preset    string
	set       map[string]string
	seed      int64
	quiet     bool
}

func newRenderCommand(build pipelineFactory) *cobra.Command {
	var f renderFlags

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one montage, or a batch of random combinations, from a local video",
		Example: `  reelmix render --video in.mp4 --intervals "0:00-0:03,0:10-0:15,0:20-0:31"
  reelmix render --video in.mp4 --audio song.mp3 --intervals "..." --mode batch --set num_combinations=5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.video == "" {
				return errors.New("--video is required")
			}
			if f.intervals == "" {
				return errors.New("--intervals is required")
			}

			presets, runner, logger, err := setup(cmd, build)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return render(ctx, runner, presets, f, cmd.OutOrStdout(), logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.video, "video", "", "Source video file")
	flags.StringVar(&f.audio, "audio", "", "Replacement soundtrack (optional)")
	flags.StringVar(&f.intervals, "intervals", "", `Comma separated "start-end" intervals; the first one is the lead clip`)
	flags.StringVarP(&f.out, "out", "o", "out", "Output directory")
	flags.StringVar(&f.mode, "mode", "", "single or batch (defaults to the preset's mode)")
	flags.StringVar(&f.preset, "preset", montage.DefaultPreset, "Preset name")
	flags.StringToStringVar(&f.set, "set", nil, "Override a preset option, e.g. --set max_duration=20")
	flags.Int64Var(&f.seed, "seed", -1, "Random seed for batch combinations (-1 for a random seed)")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "Disable the progress bar")
	return cmd
}

func render(ctx context.Context, runner montage.Runner, presets *montage.Presets, f renderFlags, out io.Writer, logger *zap.Logger) error {
	options := make(map[string]string, len(f.set)+1)
	for k, v := range f.set {
		options[k] = v
	}
	if f.seed >= 0 {
		options["seed"] = strconv.FormatInt(f.seed, 10)
	}

	mode, settings, err := presets.Resolve(f.preset, f.mode, options)
	if err != nil {
		return err
	}
	// Validate intervals before creating anything on disk.
	if _, err := montage.ParseIntervals(f.intervals); err != nil {
		return err
	}
	if err := os.MkdirAll(f.out, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	req := montage.Request{
		VideoPath: f.video,
		AudioPath: f.audio,
		Intervals: f.intervals,
		Mode:      mode,
		Settings:  settings,
		OutputDir: f.out,
	}

	var bar *progressbar.ProgressBar
	if !f.quiet {
		bar = newBar(mode, settings, out)
		ctx = media.WithProgress(ctx, func(percent int, _ string) {
			if mode == montage.ModeSingle {
				bar.Set(percent)
			}
		})
		req.OnProgress = func(p montage.Progress) {
			if mode == montage.ModeBatch {
				bar.ChangeMax(p.Total)
				bar.Set(p.Done)
			}
		}
	}

	start := time.Now()
	result, err := runner.Run(ctx, req)
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(out)
	}
	if err != nil {
		return err
	}

	logger.Info("Render finished",
		zap.String("mode", string(mode)),
		zap.Int("succeeded", result.Succeeded()),
		zap.Int("failed", result.Failed()),
		zap.Duration("elapsed", time.Since(start)),
	)
	printResult(out, result)

	if result.Succeeded() == 0 {
		return errors.New("no output was rendered")
	}
	return nil
}

func newBar(mode montage.Mode, settings montage.Settings, out io.Writer) *progressbar.ProgressBar {
	total, desc := 100, "Encoding"
	if mode == montage.ModeBatch {
		total, desc = settings.NumCombinations, "Combinations"
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printResult(out io.Writer, result *montage.Result) {
	for _, o := range result.Outputs {
		fmt.Fprintf(out, "%s  %.1fs  clips %v\n", filepath.Clean(o.Path), o.Duration, o.Clips)
	}
	for _, f := range result.Failures {
		fmt.Fprintf(out, "combination %d %v failed: %s\n", f.Sequence, f.Clips, f.Error)
	}
	fmt.Fprintf(out, "%d of %d rendered\n", result.Succeeded(), result.Requested)
}
