package montage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type optionSetter func(s *Settings, value string) error

func floatOption(field func(*Settings) *float64) optionSetter {
	return func(s *Settings, value string) error {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		*field(s) = v
		return nil
	}
}

func intOption(field func(*Settings) *int) optionSetter {
	return func(s *Settings, value string) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*field(s) = v
		return nil
	}
}

var optionSetters = map[string]optionSetter{
	"max_duration":        floatOption(func(s *Settings) *float64 { return &s.MaxDuration }),
	"num_combinations":    intOption(func(s *Settings) *int { return &s.NumCombinations }),
	"attempt_multiplier":  intOption(func(s *Settings) *int { return &s.AttemptMultiplier }),
	"width":               intOption(func(s *Settings) *int { return &s.Layout.Width }),
	"height":              intOption(func(s *Settings) *int { return &s.Layout.Height }),
	"scale_factor":        floatOption(func(s *Settings) *float64 { return &s.Layout.ScaleFactor }),
	"background_scale":    floatOption(func(s *Settings) *float64 { return &s.Layout.BackgroundScale }),
	"background_blur":     floatOption(func(s *Settings) *float64 { return &s.Layout.BackgroundBlur }),
	"transition_duration": floatOption(func(s *Settings) *float64 { return &s.Layout.TransitionDuration }),
	"watermark_width":     floatOption(func(s *Settings) *float64 { return &s.Layout.WatermarkWidth }),
	"watermark_y":         floatOption(func(s *Settings) *float64 { return &s.Layout.WatermarkY }),
	"watermark_opacity":   floatOption(func(s *Settings) *float64 { return &s.Layout.WatermarkOpacity }),
	"outro_width":         floatOption(func(s *Settings) *float64 { return &s.Layout.OutroWidth }),
	"chroma_threshold":    floatOption(func(s *Settings) *float64 { return &s.Layout.ChromaThreshold }),
	"chroma_softness":     floatOption(func(s *Settings) *float64 { return &s.Layout.ChromaSoftness }),
	"chroma_color": func(s *Settings, value string) error {
		s.Layout.ChromaColor = value
		return nil
	},
	"seed": func(s *Settings, value string) error {
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		s.Seed = &v
		return nil
	},
}

// OptionNames lists the recognized override keys.
func OptionNames() []string {
	names := make([]string, 0, len(optionSetters))
	for name := range optionSetters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyOptions returns a copy of s with the given overrides applied and validated.
// Empty values are ignored.
func ApplyOptions(s Settings, options map[string]string) (Settings, error) {
	for name, raw := range options {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		set, ok := optionSetters[name]
		if !ok {
			return s, fmt.Errorf("%w: unknown option %q", ErrInvalidRequest, name)
		}
		if err := set(&s, raw); err != nil {
			return s, fmt.Errorf("%w: option %s=%q: %v", ErrInvalidRequest, name, raw, err)
		}
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}
