package media

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nextconvert/reelmix/internal/modules/montage"
)

// maxRGBDistance is the length of the RGB cube diagonal, sqrt(3)*255.
// colorkey expects similarity and blend as fractions of it.
const maxRGBDistance = 441.673

const defaultFrameRate = 30

// renderGraph is the ffmpeg input list and filter_complex of one timeline.
type renderGraph struct {
	inputs   []string
	filters  []string
	videoOut string
	audioOut string
}

// buildRenderGraph translates a timeline into ffmpeg inputs and a filter graph.
// Input 0 is always the source video.
func buildRenderGraph(tl *montage.Timeline) (*renderGraph, error) {
	src := tl.Source()
	if src == nil {
		return nil, fmt.Errorf("timeline has no segments")
	}

	g := &renderGraph{inputs: []string{"-i", src.Path()}}
	nextInput := 1

	// Main sequence: trim every segment out of input 0 and concatenate.
	var concatIn strings.Builder
	for i, seg := range tl.Segments {
		if seg.SourcePath() != src.Path() {
			return nil, fmt.Errorf("segment %d is cut from %s, not %s", i, seg.SourcePath(), src.Path())
		}
		g.filters = append(g.filters, fmt.Sprintf("[0:v]trim=start=%s:end=%s,setpts=PTS-STARTPTS[v%d]",
			num(seg.Start()), num(seg.End()), i))
		fmt.Fprintf(&concatIn, "[v%d]", i)
		if tl.SourceAudio {
			g.filters = append(g.filters, fmt.Sprintf("[0:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS[a%d]",
				num(seg.Start()), num(seg.End()), i))
			fmt.Fprintf(&concatIn, "[a%d]", i)
		}
	}
	if tl.SourceAudio {
		g.filters = append(g.filters, fmt.Sprintf("%sconcat=n=%d:v=1:a=1[mainv][maina]", concatIn.String(), len(tl.Segments)))
	} else {
		g.filters = append(g.filters, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[mainv]", concatIn.String(), len(tl.Segments)))
	}

	// One copy of the main sequence per layer that shows it.
	mainLayers := 0
	for _, l := range tl.Layers {
		if l.Input == montage.InputMain {
			mainLayers++
		}
	}
	switch mainLayers {
	case 0:
		g.filters = append(g.filters, "[mainv]nullsink")
	case 1:
		g.filters = append(g.filters, "[mainv]null[m0]")
	default:
		var outs strings.Builder
		for i := 0; i < mainLayers; i++ {
			fmt.Fprintf(&outs, "[m%d]", i)
		}
		g.filters = append(g.filters, fmt.Sprintf("[mainv]split=%d%s", mainLayers, outs.String()))
	}

	fps := src.Info().FrameRate
	if fps <= 0 {
		fps = defaultFrameRate
	}
	g.filters = append(g.filters, fmt.Sprintf("color=c=black:s=%dx%d:r=%s:d=%s[base]",
		tl.Width, tl.Height, num(math.Round(fps*1000)/1000), num(tl.Duration)))

	prev := "base"
	mainIdx := 0
	for i, l := range tl.Layers {
		var in string
		if l.Input == montage.InputMain {
			in = fmt.Sprintf("[m%d]", mainIdx)
			mainIdx++
		} else {
			if l.Still {
				g.inputs = append(g.inputs, "-loop", "1", "-t", num(l.Duration), "-i", l.Input)
			} else {
				g.inputs = append(g.inputs, "-i", l.Input)
			}
			in = fmt.Sprintf("[%d:v]", nextInput)
			nextInput++
		}

		label := fmt.Sprintf("l%d", i)
		g.filters = append(g.filters, in+strings.Join(layerFilters(l), ",")+"["+label+"]")

		out := fmt.Sprintf("o%d", i)
		g.filters = append(g.filters, fmt.Sprintf("[%s][%s]overlay=x=%s:y=%s:eof_action=pass:format=auto[%s]",
			prev, label, position(l.Placement.X, l.Placement.CenterX, "W", "w"),
			position(l.Placement.Y, l.Placement.CenterY, "H", "h"), out))
		prev = out
	}
	g.filters = append(g.filters, fmt.Sprintf("[%s]format=yuv420p[vout]", prev))
	g.videoOut = "[vout]"

	switch {
	case tl.Audio != nil:
		g.inputs = append(g.inputs, "-i", tl.Audio.Path)
		g.filters = append(g.filters, fmt.Sprintf("[%d:a]atrim=end=%s,asetpts=PTS-STARTPTS[aout]",
			nextInput, num(tl.Audio.Duration)))
		g.audioOut = "[aout]"
	case tl.SourceAudio:
		g.filters = append(g.filters, fmt.Sprintf("[maina]atrim=end=%s,asetpts=PTS-STARTPTS[aout]", num(tl.Duration)))
		g.audioOut = "[aout]"
	}

	return g, nil
}

// layerFilters builds the per-layer chain: size, blur, time offset, keying, opacity, fades.
func layerFilters(l montage.Layer) []string {
	filters := []string{fmt.Sprintf("scale=%s:%s", dim(l.Width), dim(l.Height))}

	if l.Blur > 0 {
		filters = append(filters, fmt.Sprintf("gblur=sigma=%s", num(l.Blur)))
	}
	if l.Input != montage.InputMain {
		filters = append(filters, fmt.Sprintf("setpts=PTS-STARTPTS+%s/TB", num(l.Start)))
	}

	needsAlpha := l.ChromaKey != nil || l.Opacity < 1 || l.FadeIn != nil || l.FadeOut != nil
	if needsAlpha {
		filters = append(filters, "format=rgba")
	}
	if k := l.ChromaKey; k != nil {
		filters = append(filters, fmt.Sprintf("colorkey=color=%s:similarity=%s:blend=%s",
			k.Color, num(similarity(k.Threshold)), num(blend(k.Softness))))
	}
	if l.Opacity < 1 {
		filters = append(filters, fmt.Sprintf("colorchannelmixer=aa=%s", num(l.Opacity)))
	}
	if f := l.FadeIn; f != nil {
		filters = append(filters, fmt.Sprintf("fade=t=in:st=%s:d=%s:alpha=1", num(f.Start), num(f.Duration)))
	}
	if f := l.FadeOut; f != nil {
		filters = append(filters, fmt.Sprintf("fade=t=out:st=%s:d=%s:alpha=1", num(f.Start), num(f.Duration)))
	}
	return filters
}

// similarity maps an RGB distance threshold onto colorkey's [0.01, 1] range.
func similarity(threshold float64) float64 {
	return round3(math.Min(1, math.Max(0.01, threshold/maxRGBDistance)))
}

// blend maps an RGB distance softness onto colorkey's [0, 1] range.
func blend(softness float64) float64 {
	return round3(math.Min(1, math.Max(0, softness/maxRGBDistance)))
}

func position(v float64, center bool, outer, inner string) string {
	if center {
		return fmt.Sprintf("(%s-%s)/2", outer, inner)
	}
	return strconv.Itoa(int(math.Round(v)))
}

func dim(v int) string {
	if v == montage.AutoSize {
		return "-2"
	}
	return strconv.Itoa(v)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
