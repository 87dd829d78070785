package models

import "github.com/google/uuid"

type TrackType string

const (
	TrackVideo TrackType = "video"
	TrackAudio TrackType = "audio"
	TrackText  TrackType = "text"

	// TrackEffect is reserved for effect lanes. It has a compositing slot but cannot be created yet.
	TrackEffect TrackType = "effect"
)

// Valid reports whether tracks of this type can be created.
func (t TrackType) Valid() bool {
	return t == TrackVideo || t == TrackAudio || t == TrackText
}

// Priority is the compositing rank of the track type, lowest painted first.
func (t TrackType) Priority() int {
	switch t {
	case TrackVideo:
		return 0
	case TrackAudio:
		return 1
	case TrackText:
		return 2
	case TrackEffect:
		return 3
	}
	return 4
}

// Label is the display prefix used for default track names.
func (t TrackType) Label() string {
	switch t {
	case TrackVideo:
		return "视频"
	case TrackAudio:
		return "音频"
	default:
		return "文字"
	}
}

// ClipKind is the content variant carried by clips on tracks of this type.
func (t TrackType) ClipKind() ClipKind {
	switch t {
	case TrackAudio:
		return ClipAudio
	case TrackText:
		return ClipText
	default:
		return ClipVideo
	}
}

type Track struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Type      TrackType `json:"type"`
	Clips     []Clip    `json:"clips"`
	IsLocked  bool      `json:"isLocked"`
	IsVisible bool      `json:"isVisible"`
}

func (t Track) Clone() Track {
	clips := make([]Clip, len(t.Clips))
	for i, c := range t.Clips {
		clips[i] = c.Clone()
	}
	t.Clips = clips
	return t
}

// Header returns the track without its clips.
func (t Track) Header() Track {
	t.Clips = nil
	return t
}
