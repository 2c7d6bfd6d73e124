package media

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nextconvert/reelmix/internal/modules/montage"
)

// ffprobeOutput represents the JSON output from ffprobe
type ffprobeOutput struct {
	Format struct {
		Filename   string `json:"filename"`
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		Index        int    `json:"index"`
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width,omitempty"`
		Height       int    `json:"height,omitempty"`
		RFrameRate   string `json:"r_frame_rate,omitempty"`
		AvgFrameRate string `json:"avg_frame_rate,omitempty"`
		BitRate      string `json:"bit_rate,omitempty"`
		Channels     int    `json:"channels,omitempty"`
		SampleRate   string `json:"sample_rate,omitempty"`
		Duration     string `json:"duration,omitempty"`
		Disposition  struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
}

// parseProbeOutput converts ffprobe JSON into MediaInfo
func parseProbeOutput(data []byte) (*montage.MediaInfo, error) {
	var probeData ffprobeOutput
	if err := json.Unmarshal(data, &probeData); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &montage.MediaInfo{
		Format:  probeData.Format.FormatName,
		Streams: make([]montage.StreamInfo, 0, len(probeData.Streams)),
	}

	if d, err := strconv.ParseFloat(probeData.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	if size, err := strconv.ParseInt(probeData.Format.Size, 10, 64); err == nil {
		info.Size = size
	}
	if br, err := strconv.Atoi(probeData.Format.BitRate); err == nil {
		info.BitRate = br
	}

	for _, stream := range probeData.Streams {
		streamInfo := montage.StreamInfo{
			Index: stream.Index,
			Type:  stream.CodecType,
			Codec: stream.CodecName,
		}
		if br, err := strconv.Atoi(stream.BitRate); err == nil {
			streamInfo.BitRate = br
		}

		switch stream.CodecType {
		case "video":
			// Cover art in audio files shows up as a video stream
			if stream.Disposition.AttachedPic == 1 || info.VideoCodec != "" {
				break
			}
			info.VideoCodec = stream.CodecName
			info.Width = stream.Width
			info.Height = stream.Height
			info.FrameRate = parseFrameRate(stream.AvgFrameRate)
			if info.FrameRate == 0 {
				info.FrameRate = parseFrameRate(stream.RFrameRate)
			}
			if info.Duration == 0 {
				if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
					info.Duration = d
				}
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = stream.CodecName
			}
			streamInfo.Channels = stream.Channels
			if sr, err := strconv.Atoi(stream.SampleRate); err == nil {
				streamInfo.SampleRate = sr
			}
		}

		info.Streams = append(info.Streams, streamInfo)
	}

	return info, nil
}

// parseFrameRate parses "30000/1001" or "30/1"
func parseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	num, _ := strconv.ParseFloat(parts[0], 64)
	den, _ := strconv.ParseFloat(parts[1], 64)
	if den <= 0 {
		return 0
	}
	return num / den
}
