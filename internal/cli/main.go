// Package cli implements the reelmix command line renderer.
package cli

import (
	"fmt"
	"os"

	"github.com/nextconvert/reelmix/internal/modules/media"
	"github.com/nextconvert/reelmix/internal/modules/montage"
	"github.com/nextconvert/reelmix/internal/shared/config"
	"github.com/nextconvert/reelmix/internal/shared/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// pipelineFactory builds the preset registry and the runner used by a command.
type pipelineFactory func(cfg *config.Config, logger *zap.Logger) (*montage.Presets, montage.Runner, error)

func ffmpegPipeline(cfg *config.Config, logger *zap.Logger) (*montage.Presets, montage.Runner, error) {
	presets, pipeline, err := media.NewPipeline(cfg, nil, logger)
	if err != nil {
		return nil, nil, err
	}
	return presets, pipeline, nil
}

func Main() {
	if err := NewRootCommand(ffmpegPipeline).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCommand assembles the reelmix command tree.
func NewRootCommand(build pipelineFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "reelmix",
		Short:         "Cut, recombine and render vertical video montages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")
	root.PersistentFlags().String("presets-file", "", "YAML file with extra presets (overrides PRESETS_FILE)")

	root.AddCommand(newRenderCommand(build), newPresetsCommand(build))
	return root
}

// setup loads configuration from the environment and applies the persistent flags.
func setup(cmd *cobra.Command, build pipelineFactory) (*montage.Presets, montage.Runner, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if path, _ := cmd.Flags().GetString("presets-file"); path != "" {
		cfg.Montage.PresetsFile = path
	}

	level, _ := cmd.Flags().GetString("log-level")
	logger, err := logging.NewLogger(level, cfg.Environment)
	if err != nil {
		return nil, nil, nil, err
	}

	presets, runner, err := build(cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}
	return presets, runner, logger, nil
}
