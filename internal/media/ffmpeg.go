// Package media turns asset sources into pixels and metadata: it probes
// durations with ffprobe, extracts video frames with ffmpeg and implements the
// compositor's content provider on top of both.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"
)

// Info is what probing a media file yields.
type Info struct {
	DurationMs float64
	Width      int
	Height     int
	HasVideo   bool
	HasAudio   bool
}

// Prober reads media metadata from a location ffprobe can open.
type Prober interface {
	Probe(ctx context.Context, location string) (Info, error)
}

// FrameExtractor decodes one video frame at ms into the source.
type FrameExtractor interface {
	Frame(ctx context.Context, location string, ms float64) (image.Image, error)
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// FFProbe shells out to ffprobe.
type FFProbe struct {
	Path string // defaults to "ffprobe"
}

func (p FFProbe) Probe(ctx context.Context, location string) (Info, error) {
	bin := p.Path
	if bin == "" {
		bin = "ffprobe"
	}
	// ffprobe -v quiet -print_format json -show_format -show_streams <input>
	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		location,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Info{}, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (Info, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	var info Info
	streamSeconds := 0.0
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if !info.HasVideo {
				info.Width, info.Height = s.Width, s.Height
			}
			info.HasVideo = true
		case "audio":
			info.HasAudio = true
		}
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > streamSeconds {
			streamSeconds = d
		}
	}
	seconds := streamSeconds
	if out.Format.Duration != "" {
		d, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return Info{}, fmt.Errorf("parse duration %q: %w", out.Format.Duration, err)
		}
		seconds = d
	}
	info.DurationMs = seconds * 1000
	return info, nil
}

// FFmpeg extracts single frames as PNG over a pipe.
type FFmpeg struct {
	Path string // defaults to "ffmpeg"
}

func (f FFmpeg) Frame(ctx context.Context, location string, ms float64) (image.Image, error) {
	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	// Input seeking (-ss before -i) is fast and frame-accurate on re-encode.
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", ms/1000),
		"-i", location,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame at %.0fms failed: %w: %s", ms, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame at %.0fms", ms)
	}
	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode extracted frame: %w", err)
	}
	return img, nil
}
