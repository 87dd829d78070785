package models

import (
	"time"

	"github.com/google/uuid"
)

type AssetType string

const (
	AssetVideo AssetType = "video"
	AssetImage AssetType = "image"
	AssetAudio AssetType = "audio"
	AssetText  AssetType = "text"
)

func (t AssetType) Valid() bool {
	switch t {
	case AssetVideo, AssetImage, AssetAudio, AssetText:
		return true
	}
	return false
}

// Timed reports whether assets of this type carry a playable duration.
func (t AssetType) Timed() bool {
	return t == AssetVideo || t == AssetAudio
}

// PlaceableOn reports whether an asset of this type may be placed on a track of type tt.
// Video tracks also carry still images.
func (t AssetType) PlaceableOn(tt TrackType) bool {
	switch tt {
	case TrackVideo:
		return t == AssetVideo || t == AssetImage
	case TrackAudio:
		return t == AssetAudio
	case TrackText:
		return t == AssetText
	}
	return false
}

// Asset is immutable once created. Src is a URI for media assets and literal text for text assets.
type Asset struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Type      AssetType `json:"type"`
	Src       string    `json:"src"`
	Duration  *float64  `json:"duration,omitempty"` // ms, video/audio only
	Thumbnail string    `json:"thumbnail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a Asset) Clone() Asset {
	if a.Duration != nil {
		d := *a.Duration
		a.Duration = &d
	}
	return a
}
