package montage

import (
	"fmt"
	"math"

	"github.com/samber/lo"
)

// Assets are the optional decorations of a timeline. Empty paths omit the layer.
type Assets struct {
	WatermarkPath string  `json:"watermarkPath,omitempty"`
	OutroPath     string  `json:"outroPath,omitempty"`
	OutroDuration float64 `json:"outroDuration,omitempty"`
}

func (a Assets) HasWatermark() bool { return a.WatermarkPath != "" }

func (a Assets) HasOutro() bool { return a.OutroPath != "" && a.OutroDuration > 0 }

// Compose lays out the lead clip followed by clips on the layout's canvas.
// The result depends only on its arguments.
func Compose(layout Layout, lead Clip, clips []Clip, assets Assets, audioPath string) (*Timeline, error) {
	if lead.src == nil {
		return nil, fmt.Errorf("%w: lead clip has no source", ErrInvalidRequest)
	}
	segments := append([]Clip{lead}, clips...)
	for _, c := range segments {
		if c.src != lead.src {
			return nil, fmt.Errorf("%w: clips come from different sources", ErrInvalidRequest)
		}
	}

	mainDur := lo.SumBy(segments, func(c Clip) float64 { return c.Duration() })
	if mainDur <= 0 {
		return nil, fmt.Errorf("%w: main sequence is empty", ErrInvalidRequest)
	}

	srcW, srcH := float64(lead.src.info.Width), float64(lead.src.info.Height)
	if srcW <= 0 || srcH <= 0 {
		srcW, srcH = float64(layout.Width), float64(layout.Height)
	}
	canvasW, canvasH := float64(layout.Width), float64(layout.Height)

	// The background always covers the canvas, however small BackgroundScale is.
	bgScale := math.Max(layout.BackgroundScale, math.Max(canvasW/srcW, canvasH/srcH))
	center := Placement{CenterX: true, CenterY: true}

	background := Layer{
		Kind:      LayerBackground,
		Input:     InputMain,
		Width:     evenCover(srcW * bgScale),
		Height:    evenCover(srcH * bgScale),
		Placement: center,
		Opacity:   1,
		Duration:  mainDur,
		Blur:      layout.BackgroundBlur,
	}
	foreground := Layer{
		Kind:      LayerForeground,
		Input:     InputMain,
		Width:     evenDim(srcW * layout.ScaleFactor),
		Height:    evenDim(srcH * layout.ScaleFactor),
		Placement: center,
		Opacity:   1,
		Duration:  mainDur,
	}
	layers := []Layer{background, foreground}

	if assets.HasWatermark() {
		layers = append(layers, Layer{
			Kind:      LayerWatermark,
			Input:     assets.WatermarkPath,
			Still:     true,
			Width:     evenDim(canvasW * layout.WatermarkWidth),
			Height:    AutoSize,
			Placement: Placement{Y: canvasH * layout.WatermarkY, CenterX: true},
			Opacity:   layout.WatermarkOpacity,
			Duration:  mainDur,
		})
	}

	total := mainDur
	if assets.HasOutro() {
		transition := math.Min(layout.TransitionDuration, mainDur)
		outroStart := mainDur - transition

		if transition > 0 {
			for i := range layers {
				layers[i].FadeOut = &Fade{Start: outroStart, Duration: transition}
			}
		}

		outro := Layer{
			Kind:      LayerOutro,
			Input:     assets.OutroPath,
			Width:     evenDim(canvasW * layout.OutroWidth),
			Height:    AutoSize,
			Placement: center,
			Opacity:   1,
			Start:     outroStart,
			Duration:  assets.OutroDuration,
			ChromaKey: &ChromaKey{
				Color:     layout.ChromaColor,
				Threshold: layout.ChromaThreshold,
				Softness:  layout.ChromaSoftness,
			},
		}
		if transition > 0 {
			outro.FadeIn = &Fade{Start: outroStart, Duration: transition}
		}
		layers = append(layers, outro)
		total = math.Max(mainDur, outro.End())
	}

	tl := &Timeline{
		Width:        layout.Width,
		Height:       layout.Height,
		Segments:     segments,
		MainDuration: mainDur,
		Duration:     total,
		Layers:       layers,
	}
	if audioPath != "" {
		tl.Audio = &AudioTrack{Path: audioPath, Duration: total}
	} else {
		tl.SourceAudio = lead.src.info.HasAudio()
	}
	return tl, nil
}

// evenDim truncates a pixel size to an even number, as yuv420p requires.
func evenDim(v float64) int {
	n := int(v)
	if n%2 != 0 {
		n--
	}
	return max(n, 2)
}

// evenCover rounds a pixel size up to an even number so the layer never falls short of the canvas.
func evenCover(v float64) int {
	n := int(math.Ceil(v - 1e-6))
	if n%2 != 0 {
		n++
	}
	return max(n, 2)
}
