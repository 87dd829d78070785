package models

import (
	"time"

	"github.com/google/uuid"
)

type Settings struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frameRate"`
	Duration  float64 `json:"duration"` // ms
}

// Upper bounds on settings. SettingsPatch carries the same limits as validate tags.
const (
	MaxCanvasSide = 16384
	MaxFrameRate  = 240
	MaxDuration   = 24 * 60 * 60 * 1000 // ms
)

// InBounds reports whether s describes a canvas the editor can render.
func (s Settings) InBounds() bool {
	return s.Width > 0 && s.Width <= MaxCanvasSide &&
		s.Height > 0 && s.Height <= MaxCanvasSide &&
		s.FrameRate > 0 && s.FrameRate <= MaxFrameRate &&
		s.Duration >= 0 && s.Duration <= MaxDuration
}

func DefaultSettings() Settings {
	return Settings{Width: 1920, Height: 1080, FrameRate: 30, Duration: 0}
}

// Project is the serialized aggregate: the whole editing document.
type Project struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Assets    []Asset   `json:"assets"`
	Tracks    []Track   `json:"tracks"`
	Settings  Settings  `json:"settings"`
}

// AssetByID does a linear lookup; callers with many lookups should index first.
func (p Project) AssetByID(id uuid.UUID) (Asset, bool) {
	for _, a := range p.Assets {
		if a.ID == id {
			return a, true
		}
	}
	return Asset{}, false
}

func (p Project) TrackByID(id uuid.UUID) (Track, bool) {
	for _, t := range p.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return Track{}, false
}
