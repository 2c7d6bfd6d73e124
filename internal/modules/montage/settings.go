package montage

import (
	"errors"
	"fmt"
)

// Mode selects between one rendered file and a batch of random combinations.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeBatch  Mode = "batch"
)

// ParseMode maps request text to a Mode. Empty means single.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSingle:
		return ModeSingle, nil
	case ModeBatch:
		return ModeBatch, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, s)
	}
}

// Layout holds the canvas and layer parameters of the compositor.
type Layout struct {
	Width              int     `json:"width" yaml:"width"`
	Height             int     `json:"height" yaml:"height"`
	ScaleFactor        float64 `json:"scaleFactor" yaml:"scale_factor"`
	BackgroundScale    float64 `json:"backgroundScale" yaml:"background_scale"`
	BackgroundBlur     float64 `json:"backgroundBlur" yaml:"background_blur"`
	TransitionDuration float64 `json:"transitionDuration" yaml:"transition_duration"`
	WatermarkWidth     float64 `json:"watermarkWidth" yaml:"watermark_width"`
	WatermarkY         float64 `json:"watermarkY" yaml:"watermark_y"`
	WatermarkOpacity   float64 `json:"watermarkOpacity" yaml:"watermark_opacity"`
	OutroWidth         float64 `json:"outroWidth" yaml:"outro_width"`
	ChromaColor        string  `json:"chromaColor" yaml:"chroma_color"`
	ChromaThreshold    float64 `json:"chromaThreshold" yaml:"chroma_threshold"`
	ChromaSoftness     float64 `json:"chromaSoftness" yaml:"chroma_softness"`
}

// Settings is the full option set of one run.
type Settings struct {
	MaxDuration       float64 `json:"maxDuration" yaml:"max_duration"`
	NumCombinations   int     `json:"numCombinations" yaml:"num_combinations"`
	AttemptMultiplier int     `json:"attemptMultiplier" yaml:"attempt_multiplier"`
	Seed              *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	Layout            Layout  `json:"layout" yaml:"layout"`
}

// DefaultLayout returns the 1080x1920 layout used by the single-file renderer.
func DefaultLayout() Layout {
	return Layout{
		Width:              1080,
		Height:             1920,
		ScaleFactor:        1.1,
		BackgroundScale:    2.0,
		BackgroundBlur:     20,
		TransitionDuration: 0.5,
		WatermarkWidth:     1.0,
		WatermarkY:         0.81,
		WatermarkOpacity:   0.5,
		OutroWidth:         1.0,
		ChromaColor:        "black",
		ChromaThreshold:    80,
		ChromaSoftness:     10,
	}
}

// DefaultSettings returns the baseline settings every preset starts from.
func DefaultSettings() Settings {
	return Settings{
		MaxDuration:       30,
		NumCombinations:   30,
		AttemptMultiplier: DefaultAttemptMultiplier,
		Layout:            DefaultLayout(),
	}
}

// Validate checks the settings for values the pipeline cannot work with.
func (s Settings) Validate() error {
	var errs []error
	if s.MaxDuration <= 0 {
		errs = append(errs, errors.New("max_duration must be positive"))
	}
	if s.NumCombinations <= 0 {
		errs = append(errs, errors.New("num_combinations must be positive"))
	}
	if s.AttemptMultiplier <= 0 {
		errs = append(errs, errors.New("attempt_multiplier must be positive"))
	}
	if err := s.Layout.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, errors.Join(errs...))
	}
	return nil
}

// Validate checks the layout parameters.
func (l Layout) Validate() error {
	var errs []error
	if l.Width <= 0 || l.Height <= 0 {
		errs = append(errs, fmt.Errorf("canvas %dx%d must be positive", l.Width, l.Height))
	}
	if l.ScaleFactor <= 0 {
		errs = append(errs, errors.New("scale_factor must be positive"))
	}
	if l.BackgroundScale <= 0 {
		errs = append(errs, errors.New("background_scale must be positive"))
	}
	if l.BackgroundBlur < 0 {
		errs = append(errs, errors.New("background_blur must not be negative"))
	}
	if l.TransitionDuration < 0 {
		errs = append(errs, errors.New("transition_duration must not be negative"))
	}
	if l.WatermarkOpacity < 0 || l.WatermarkOpacity > 1 {
		errs = append(errs, errors.New("watermark_opacity must be within [0,1]"))
	}
	if l.WatermarkWidth <= 0 || l.OutroWidth <= 0 {
		errs = append(errs, errors.New("watermark_width and outro_width must be positive"))
	}
	if l.WatermarkY < 0 || l.WatermarkY > 1 {
		errs = append(errs, errors.New("watermark_y must be within [0,1]"))
	}
	if l.ChromaThreshold < 0 || l.ChromaSoftness < 0 {
		errs = append(errs, errors.New("chroma_threshold and chroma_softness must not be negative"))
	}
	return errors.Join(errs...)
}
