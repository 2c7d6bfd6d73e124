package media

import (
	"github.com/nextconvert/reelmix/internal/modules/montage"
	"github.com/nextconvert/reelmix/internal/shared/config"
	"github.com/nextconvert/reelmix/internal/shared/metrics"
	"go.uber.org/zap"
)

// ConfigFromEnv maps the FFmpeg settings of the application config onto a ProcessorConfig.
func ConfigFromEnv(cfg *config.Config, m *metrics.Metrics) ProcessorConfig {
	return ProcessorConfig{
		FFmpegPath:        cfg.FFmpegPath,
		FFprobePath:       cfg.FFprobePath,
		MaxThreads:        cfg.FFmpegMaxThreads,
		UseHardwareAccel:  cfg.FFmpegHardwareAccel,
		PreferFastPresets: cfg.FFmpegFastPresets,
		Preset:            cfg.FFmpegPreset,
		CRF:               cfg.FFmpegCRF,
		Metrics:           m,
	}
}

// NewPipeline builds the preset registry and an FFmpeg-backed montage pipeline.
// Presets from cfg.Montage.PresetsFile are merged over the built-in ones.
func NewPipeline(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*montage.Presets, *montage.Pipeline, error) {
	presets := montage.NewPresets()
	if cfg.Montage.PresetsFile != "" {
		if err := presets.LoadFile(cfg.Montage.PresetsFile); err != nil {
			return nil, nil, err
		}
	}

	processor := NewProcessorWithConfig(ConfigFromEnv(cfg, m), logger)
	pipeline := montage.NewPipeline(processor, montage.PipelineConfig{
		WatermarkPath: cfg.Montage.WatermarkPath,
		OutroPath:     cfg.Montage.OutroPath,
	}, logger)
	return presets, pipeline, nil
}
