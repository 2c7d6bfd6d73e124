package montage

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// Request describes one pipeline run.
type Request struct {
	VideoPath string
	AudioPath string
	Intervals string
	Mode      Mode
	Settings  Settings
	OutputDir string
	// OnProgress is called after every combination, successful or not.
	OnProgress func(Progress)
}

// Progress reports the outcome of one combination.
type Progress struct {
	Done   int
	Total  int
	Output *Output
	Err    error
}

// Percent returns the share of combinations handled so far.
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 100
	}
	return p.Done * 100 / p.Total
}

// Failure records a combination that could not be rendered.
type Failure struct {
	Sequence int         `json:"sequence"`
	Clips    Combination `json:"clips"`
	Error    string      `json:"error"`
}

// Result summarizes a run.
type Result struct {
	Mode      Mode      `json:"mode"`
	Requested int       `json:"requested"`
	Generated int       `json:"generated"`
	Outputs   []Output  `json:"outputs"`
	Failures  []Failure `json:"failures"`
}

func (r *Result) Succeeded() int { return len(r.Outputs) }

func (r *Result) Failed() int { return len(r.Failures) }

// Runner executes pipeline requests
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

var _ Runner = (*Pipeline)(nil)

// PipelineConfig configures a Pipeline
type PipelineConfig struct {
	WatermarkPath string
	OutroPath     string
}

// Pipeline drives extraction, combination, composition and rendering.
type Pipeline struct {
	engine Engine
	config PipelineConfig
	logger *zap.Logger
}

// NewPipeline creates a new pipeline
func NewPipeline(engine Engine, config PipelineConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		engine: engine,
		config: config,
		logger: logger,
	}
}

// Run executes one request. Intervals are parsed before any media is opened.
// Extraction errors abort the run; a failing combination is recorded and skipped.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	intervals, err := ParseIntervals(req.Intervals)
	if err != nil {
		return nil, err
	}
	if req.Mode == "" {
		req.Mode = ModeSingle
	}
	if err := req.Settings.Validate(); err != nil {
		return nil, err
	}
	if req.OutputDir == "" {
		return nil, fmt.Errorf("%w: output directory is required", ErrInvalidRequest)
	}

	result := &Result{Mode: req.Mode, Requested: 1}
	if req.Mode == ModeBatch {
		result.Requested = req.Settings.NumCombinations
	}

	err = WithScenes(ctx, p.engine, req.VideoPath, intervals, func(scenes *Scenes) error {
		return p.render(ctx, req, scenes, result)
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

func (p *Pipeline) render(ctx context.Context, req Request, scenes *Scenes, result *Result) error {
	logger := p.logger.With(zap.String("video", req.VideoPath), zap.String("mode", string(req.Mode)))

	var combos []Combination
	switch req.Mode {
	case ModeBatch:
		gen := NewGenerator(GeneratorConfig{
			MaxDuration:       req.Settings.MaxDuration,
			NumCombinations:   req.Settings.NumCombinations,
			AttemptMultiplier: req.Settings.AttemptMultiplier,
			Seed:              req.Settings.Seed,
		})
		combos = gen.Generate(scenes.ContentDurations())
		logger.Info("Generated combinations",
			zap.Int("requested", req.Settings.NumCombinations),
			zap.Int("generated", len(combos)),
			zap.Int("max_attempts", gen.MaxAttempts()),
		)
	default:
		combos = Sequential(len(scenes.Content))
	}
	result.Generated = len(combos)

	assets := p.resolveAssets(ctx, logger)
	sink := NewSink(p.engine, req.OutputDir, logger)

	for i, combo := range combos {
		if err := ctx.Err(); err != nil {
			return err
		}

		seq := i + 1
		start := time.Now()
		out, err := p.renderOne(ctx, req, scenes, assets, sink, combo, seq)
		if err != nil {
			logger.Error("Combination failed, skipping",
				zap.Int("sequence", seq),
				zap.Ints("clips", combo),
				zap.Error(err),
			)
			result.Failures = append(result.Failures, Failure{Sequence: seq, Clips: combo, Error: err.Error()})
		} else {
			logger.Info("Combination rendered",
				zap.Int("sequence", seq),
				zap.String("output", out.Path),
				zap.Float64("duration", out.Duration),
				zap.Duration("elapsed", time.Since(start)),
			)
			result.Outputs = append(result.Outputs, out)
		}

		if req.OnProgress != nil {
			progress := Progress{Done: seq, Total: len(combos), Err: err}
			if err == nil {
				progress.Output = &result.Outputs[len(result.Outputs)-1]
			}
			req.OnProgress(progress)
		}
	}
	return nil
}

func (p *Pipeline) renderOne(ctx context.Context, req Request, scenes *Scenes, assets Assets, sink *Sink, combo Combination, seq int) (Output, error) {
	clips, err := scenes.Pick(combo)
	if err != nil {
		return Output{}, err
	}
	tl, err := Compose(req.Settings.Layout, scenes.Lead, clips, assets, req.AudioPath)
	if err != nil {
		return Output{}, fmt.Errorf("compose: %w", err)
	}
	out, err := sink.Write(ctx, tl, seq)
	if err != nil {
		return Output{}, err
	}
	out.Clips = combo
	return out, nil
}

// resolveAssets drops decorations whose files are missing or unreadable.
func (p *Pipeline) resolveAssets(ctx context.Context, logger *zap.Logger) Assets {
	var assets Assets

	if p.config.WatermarkPath != "" {
		if exists(p.config.WatermarkPath) {
			assets.WatermarkPath = p.config.WatermarkPath
		} else {
			logger.Debug("Watermark not found, skipping layer", zap.String("path", p.config.WatermarkPath))
		}
	}

	if p.config.OutroPath != "" {
		if !exists(p.config.OutroPath) {
			logger.Debug("Outro not found, skipping layer", zap.String("path", p.config.OutroPath))
			return assets
		}
		info, err := p.engine.Probe(ctx, p.config.OutroPath)
		if err != nil || info == nil || info.Duration <= 0 {
			logger.Warn("Outro unreadable, skipping layer", zap.String("path", p.config.OutroPath), zap.Error(err))
			return assets
		}
		assets.OutroPath = p.config.OutroPath
		assets.OutroDuration = info.Duration
	}
	return assets
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
