package montage

import "context"

// Engine is the decode/filter/encode backend the pipeline renders through.
type Engine interface {
	// Probe reads container and stream metadata of a media file.
	Probe(ctx context.Context, path string) (*MediaInfo, error)
	// Render encodes a composed timeline into outputPath.
	Render(ctx context.Context, tl *Timeline, outputPath string) error
}

// MediaInfo contains metadata about a media file
type MediaInfo struct {
	Format     string       `json:"format"`
	Duration   float64      `json:"duration"`
	Size       int64        `json:"size"`
	BitRate    int          `json:"bitRate"`
	VideoCodec string       `json:"videoCodec,omitempty"`
	AudioCodec string       `json:"audioCodec,omitempty"`
	Width      int          `json:"width,omitempty"`
	Height     int          `json:"height,omitempty"`
	FrameRate  float64      `json:"frameRate,omitempty"`
	Streams    []StreamInfo `json:"streams"`
}

// StreamInfo contains information about a media stream
type StreamInfo struct {
	Index      int    `json:"index"`
	Type       string `json:"type"`
	Codec      string `json:"codec"`
	BitRate    int    `json:"bitRate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
}

// HasVideo reports whether the file carries a video stream.
func (m *MediaInfo) HasVideo() bool {
	return m.VideoCodec != ""
}

// HasAudio reports whether the file carries an audio stream.
func (m *MediaInfo) HasAudio() bool {
	return m.AudioCodec != ""
}
