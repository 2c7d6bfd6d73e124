package montage

// LayerKind identifies a visual layer of a composed timeline.
type LayerKind string

const (
	LayerBackground LayerKind = "background"
	LayerForeground LayerKind = "foreground"
	LayerWatermark  LayerKind = "watermark"
	LayerOutro      LayerKind = "outro"
)

// InputMain marks a layer fed by the main sequence rather than a file.
const InputMain = ""

// AutoSize keeps the aspect ratio along one axis.
const AutoSize = -1

// Placement positions a layer on the canvas. Centered axes ignore X/Y.
type Placement struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	CenterX bool    `json:"centerX"`
	CenterY bool    `json:"centerY"`
}

// Fade is an opacity ramp on the timeline clock.
type Fade struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// ChromaKey removes pixels close to Color. Threshold and Softness are RGB distances.
type ChromaKey struct {
	Color     string  `json:"color"`
	Threshold float64 `json:"threshold"`
	Softness  float64 `json:"softness"`
}

// Layer is one visual track of a timeline.
type Layer struct {
	Kind      LayerKind  `json:"kind"`
	Input     string     `json:"input,omitempty"`
	Still     bool       `json:"still,omitempty"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Placement Placement  `json:"placement"`
	Opacity   float64    `json:"opacity"`
	Start     float64    `json:"start"`
	Duration  float64    `json:"duration"`
	Blur      float64    `json:"blur,omitempty"`
	FadeIn    *Fade      `json:"fadeIn,omitempty"`
	FadeOut   *Fade      `json:"fadeOut,omitempty"`
	ChromaKey *ChromaKey `json:"chromaKey,omitempty"`
}

// End returns the timeline time at which the layer stops.
func (l Layer) End() float64 {
	return l.Start + l.Duration
}

// AudioTrack is an external audio file cut to Duration from its start.
type AudioTrack struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
}

// Timeline is the fully laid out composition of one combination.
// Layers are ordered bottom to top.
type Timeline struct {
	Width        int         `json:"width"`
	Height       int         `json:"height"`
	Segments     []Clip      `json:"-"`
	MainDuration float64     `json:"mainDuration"`
	Duration     float64     `json:"duration"`
	Layers       []Layer     `json:"layers"`
	Audio        *AudioTrack `json:"audio,omitempty"`
	SourceAudio  bool        `json:"sourceAudio"`
}

// Layer returns the first layer of the given kind.
func (t *Timeline) Layer(kind LayerKind) (Layer, bool) {
	for _, l := range t.Layers {
		if l.Kind == kind {
			return l, true
		}
	}
	return Layer{}, false
}

// Source returns the source shared by the timeline's segments.
func (t *Timeline) Source() *Source {
	if len(t.Segments) == 0 {
		return nil
	}
	return t.Segments[0].src
}
