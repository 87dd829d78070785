package project

import (
	"github.com/google/uuid"

	"timeline-editor/internal/models"
)

// AssetInput carries the caller-supplied fields of a new asset; id and createdAt are assigned.
type AssetInput struct {
	Name      string           `json:"name" validate:"required,max=255"`
	Type      models.AssetType `json:"type" validate:"required,oneof=video image audio text"`
	Src       string           `json:"src" validate:"max=4096"`
	Duration  *float64         `json:"duration,omitempty" validate:"omitempty,gte=0"`
	Thumbnail string           `json:"thumbnail,omitempty"`
}

// ContentFields are the kind-specific clip fields. Only the fields of the target
// track's clip kind may be set; anything else is rejected.
type ContentFields struct {
	// video
	Transform *models.Transform `json:"transform,omitempty"`
	Filters   []models.Filter   `json:"filters,omitempty" validate:"omitempty,dive"`
	Opacity   *float64          `json:"opacity,omitempty" validate:"omitempty,gte=0,lte=1"`

	// text (Transform is shared with video)
	Text      *string           `json:"text,omitempty" validate:"omitempty,max=10000"`
	TextStyle *models.TextStyle `json:"textStyle,omitempty"`

	// audio
	Volume  *float64 `json:"volume,omitempty" validate:"omitempty,gte=0,lte=2"`
	FadeIn  *float64 `json:"fadeIn,omitempty" validate:"omitempty,gte=0"`
	FadeOut *float64 `json:"fadeOut,omitempty" validate:"omitempty,gte=0"`
}

type ClipInput struct {
	AssetID   uuid.UUID `json:"assetId"`
	TrackID   uuid.UUID `json:"trackId"`
	StartTime float64   `json:"startTime" validate:"gte=0"`
	EndTime   float64   `json:"endTime" validate:"gte=0"`
	InPoint   float64   `json:"inPoint"`
	OutPoint  float64   `json:"outPoint"`
	ContentFields
}

// ClipPatch is a shallow merge: nil fields are left as they are. A non-nil empty
// Filters slice clears the filter list. Changing TrackID moves the clip to the end
// of the target track.
type ClipPatch struct {
	AssetID   *uuid.UUID `json:"assetId,omitempty"`
	TrackID   *uuid.UUID `json:"trackId,omitempty"`
	StartTime *float64   `json:"startTime,omitempty" validate:"omitempty,gte=0"`
	EndTime   *float64   `json:"endTime,omitempty" validate:"omitempty,gte=0"`
	InPoint   *float64   `json:"inPoint,omitempty"`
	OutPoint  *float64   `json:"outPoint,omitempty"`
	ContentFields
}

// TrackPatch changes a track's flags and name in one step; nil fields are kept.
// The lock does not restrict any of these.
type TrackPatch struct {
	Locked  *bool   `json:"locked,omitempty"`
	Visible *bool   `json:"visible,omitempty"`
	Name    *string `json:"name,omitempty"`
}

// SettingsPatch updates project settings; nil fields are kept.
type SettingsPatch struct {
	Width     *int     `json:"width,omitempty" validate:"omitempty,gt=0,lte=16384"`
	Height    *int     `json:"height,omitempty" validate:"omitempty,gt=0,lte=16384"`
	FrameRate *float64 `json:"frameRate,omitempty" validate:"omitempty,gt=0,lte=240"`
	Duration  *float64 `json:"duration,omitempty" validate:"omitempty,gte=0,lte=86400000"`
}

// applyContent merges f into content, rejecting fields that do not belong to its kind.
// content is modified in place; callers pass a clone.
func applyContent(op string, id uuid.UUID, content models.ClipContent, f ContentFields) error {
	switch c := content.(type) {
	case *models.VideoContent:
		if f.Text != nil || f.TextStyle != nil {
			return invalid(op, id, "text fields are not allowed on a video clip")
		}
		if f.Volume != nil || f.FadeIn != nil || f.FadeOut != nil {
			return invalid(op, id, "audio fields are not allowed on a video clip")
		}
		if f.Transform != nil {
			t := *f.Transform
			c.Transform = &t
		}
		if f.Filters != nil {
			c.Filters = append([]models.Filter(nil), f.Filters...)
		}
		if f.Opacity != nil {
			o := *f.Opacity
			c.Opacity = &o
		}
	case *models.TextContent:
		if f.Filters != nil || f.Opacity != nil {
			return invalid(op, id, "filters are not allowed on a text clip")
		}
		if f.Volume != nil || f.FadeIn != nil || f.FadeOut != nil {
			return invalid(op, id, "audio fields are not allowed on a text clip")
		}
		if f.Transform != nil {
			t := *f.Transform
			c.Transform = &t
		}
		if f.Text != nil {
			c.Text = *f.Text
		}
		if f.TextStyle != nil {
			c.Style = f.TextStyle.Merge(c.Style)
		}
	case *models.AudioContent:
		if f.Transform != nil || f.Filters != nil || f.Opacity != nil || f.Text != nil || f.TextStyle != nil {
			return invalid(op, id, "only volume and fades may be set on an audio clip")
		}
		if f.Volume != nil {
			v := *f.Volume
			c.Volume = &v
		}
		if f.FadeIn != nil {
			c.FadeIn = *f.FadeIn
		}
		if f.FadeOut != nil {
			c.FadeOut = *f.FadeOut
		}
	}
	return nil
}
