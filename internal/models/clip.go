package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type ClipKind string

const (
	ClipVideo ClipKind = "video"
	ClipText  ClipKind = "text"
	ClipAudio ClipKind = "audio"
)

// Clip places one asset on one track. StartTime and EndTime are absolute timeline
// positions in ms; InPoint and OutPoint are offsets into the asset content.
type Clip struct {
	ID        uuid.UUID
	AssetID   uuid.UUID
	TrackID   uuid.UUID
	StartTime float64
	EndTime   float64
	InPoint   float64
	OutPoint  float64

	// Content is one of *VideoContent, *TextContent or *AudioContent, fixed by the owning track.
	Content ClipContent
}

func (c Clip) Duration() float64 { return c.EndTime - c.StartTime }

// ActiveAt reports whether t falls in the half-open interval [StartTime, EndTime).
func (c Clip) ActiveAt(t float64) bool {
	return t >= c.StartTime && t < c.StartTime+(c.EndTime-c.StartTime)
}

// SourceTime maps timeline time t to the position the asset content must be seeked to.
// The result is clamped to OutPoint when the clip runs past its source range.
func (c Clip) SourceTime(t float64) float64 {
	st := c.InPoint + (t - c.StartTime)
	if c.OutPoint > c.InPoint && st > c.OutPoint {
		st = c.OutPoint
	}
	if st < c.InPoint {
		st = c.InPoint
	}
	return st
}

func (c Clip) Kind() ClipKind {
	if c.Content == nil {
		return ""
	}
	return c.Content.Kind()
}

func (c Clip) Clone() Clip {
	if c.Content != nil {
		c.Content = c.Content.clone()
	}
	return c
}

// ClipContent is the closed set of per-kind clip payloads.
type ClipContent interface {
	Kind() ClipKind
	clone() ClipContent
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Transform is applied translate, then scale, then rotate about the clip origin.
type Transform struct {
	Position *Point `json:"position,omitempty"`
	// Scale is a uniform factor; zero means 1.
	Scale    float64 `json:"scale,omitempty" validate:"gte=0,lte=100"`
	Rotation float64 `json:"rotation,omitempty"` // degrees, clockwise
}

func (t Transform) EffectiveScale() float64 {
	if t.Scale == 0 {
		return 1
	}
	return t.Scale
}

func (t *Transform) clone() *Transform {
	if t == nil {
		return nil
	}
	out := *t
	if t.Position != nil {
		p := *t.Position
		out.Position = &p
	}
	return &out
}

type FilterType string

const (
	FilterGrayscale  FilterType = "grayscale"
	FilterSepia      FilterType = "sepia"
	FilterBrightness FilterType = "brightness"
	FilterContrast   FilterType = "contrast"
	FilterBlur       FilterType = "blur"
)

// Filter is one image adjustment. Amount is a 0..1 mix for grayscale and sepia,
// a -100..100 percentage for brightness and contrast, and a sigma in pixels for blur.
// Zero selects the filter's default strength.
type Filter struct {
	Type   FilterType `json:"type" validate:"required,oneof=grayscale sepia brightness contrast blur"`
	Amount float64    `json:"amount,omitempty" validate:"gte=-100,lte=100"`
}

type TextAlign string

const (
	AlignLeft   TextAlign = "left"
	AlignCenter TextAlign = "center"
	AlignRight  TextAlign = "right"
)

type TextStyle struct {
	FontFamily string    `json:"fontFamily,omitempty" validate:"omitempty,max=64"`
	FontSize   float64   `json:"fontSize,omitempty" validate:"omitempty,gt=0,lte=512"`
	Color      string    `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Align      TextAlign `json:"align,omitempty" validate:"omitempty,oneof=left center right"`
	Bold       bool      `json:"bold,omitempty"`
}

// DefaultTextStyle mirrors the inspector defaults.
func DefaultTextStyle() TextStyle {
	return TextStyle{FontFamily: "arial", FontSize: 24, Color: "#ffffff", Align: AlignCenter}
}

// Merge returns s with every unset field taken from fallback.
func (s TextStyle) Merge(fallback TextStyle) TextStyle {
	if s.FontFamily == "" {
		s.FontFamily = fallback.FontFamily
	}
	if s.FontSize == 0 {
		s.FontSize = fallback.FontSize
	}
	if s.Color == "" {
		s.Color = fallback.Color
	}
	if s.Align == "" {
		s.Align = fallback.Align
	}
	return s
}

type VideoContent struct {
	Transform *Transform
	Filters   []Filter
	Opacity   *float64 // 0..1, nil means opaque
}

func (*VideoContent) Kind() ClipKind { return ClipVideo }

func (v *VideoContent) EffectiveOpacity() float64 {
	if v.Opacity == nil {
		return 1
	}
	return *v.Opacity
}

func (v *VideoContent) clone() ClipContent {
	out := &VideoContent{Transform: v.Transform.clone(), Opacity: cloneFloat(v.Opacity)}
	if v.Filters != nil {
		out.Filters = append([]Filter(nil), v.Filters...)
	}
	return out
}

type TextContent struct {
	Text      string
	Style     TextStyle
	Transform *Transform
}

func (*TextContent) Kind() ClipKind { return ClipText }

func (t *TextContent) clone() ClipContent {
	out := *t
	out.Transform = t.Transform.clone()
	return &out
}

type AudioContent struct {
	Volume  *float64 // 0..2, nil means 1
	FadeIn  float64  // ms
	FadeOut float64  // ms
}

func (*AudioContent) Kind() ClipKind { return ClipAudio }

func (a *AudioContent) EffectiveVolume() float64 {
	if a.Volume == nil {
		return 1
	}
	return *a.Volume
}

func (a *AudioContent) clone() ClipContent {
	out := *a
	out.Volume = cloneFloat(a.Volume)
	return &out
}

// NewContent returns the empty payload for kind.
func NewContent(kind ClipKind) ClipContent {
	switch kind {
	case ClipText:
		return &TextContent{Style: DefaultTextStyle()}
	case ClipAudio:
		return &AudioContent{}
	default:
		return &VideoContent{}
	}
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// ── JSON document shape ───────────────────────────────────────────────────────

// clipDocument is the flat serialized form; only the fields of the clip's kind are set.
type clipDocument struct {
	ID        uuid.UUID  `json:"id"`
	AssetID   uuid.UUID  `json:"assetId"`
	TrackID   uuid.UUID  `json:"trackId"`
	StartTime float64    `json:"startTime"`
	EndTime   float64    `json:"endTime"`
	InPoint   float64    `json:"inPoint"`
	OutPoint  float64    `json:"outPoint"`
	Kind      ClipKind   `json:"kind"`
	Transform *Transform `json:"transform,omitempty"`
	Filters   []Filter   `json:"filters,omitempty"`
	Opacity   *float64   `json:"opacity,omitempty"`
	Text      *string    `json:"text,omitempty"`
	TextStyle *TextStyle `json:"textStyle,omitempty"`
	Volume    *float64   `json:"volume,omitempty"`
	FadeIn    float64    `json:"fadeIn,omitempty"`
	FadeOut   float64    `json:"fadeOut,omitempty"`
}

func (c Clip) MarshalJSON() ([]byte, error) {
	doc := clipDocument{
		ID:        c.ID,
		AssetID:   c.AssetID,
		TrackID:   c.TrackID,
		StartTime: c.StartTime,
		EndTime:   c.EndTime,
		InPoint:   c.InPoint,
		OutPoint:  c.OutPoint,
		Kind:      c.Kind(),
	}
	switch content := c.Content.(type) {
	case *VideoContent:
		doc.Transform = content.Transform
		doc.Filters = content.Filters
		doc.Opacity = content.Opacity
	case *TextContent:
		text := content.Text
		style := content.Style
		doc.Text = &text
		doc.TextStyle = &style
		doc.Transform = content.Transform
	case *AudioContent:
		doc.Volume = content.Volume
		doc.FadeIn = content.FadeIn
		doc.FadeOut = content.FadeOut
	}
	return json.Marshal(doc)
}

func (c *Clip) UnmarshalJSON(data []byte) error {
	var doc clipDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*c = Clip{
		ID:        doc.ID,
		AssetID:   doc.AssetID,
		TrackID:   doc.TrackID,
		StartTime: doc.StartTime,
		EndTime:   doc.EndTime,
		InPoint:   doc.InPoint,
		OutPoint:  doc.OutPoint,
	}
	switch doc.Kind {
	case "":
		// Content is filled in from the owning track when the document is loaded.
	case ClipVideo:
		c.Content = &VideoContent{Transform: doc.Transform, Filters: doc.Filters, Opacity: doc.Opacity}
	case ClipText:
		tc := &TextContent{Style: DefaultTextStyle(), Transform: doc.Transform}
		if doc.Text != nil {
			tc.Text = *doc.Text
		}
		if doc.TextStyle != nil {
			tc.Style = doc.TextStyle.Merge(DefaultTextStyle())
		}
		c.Content = tc
	case ClipAudio:
		c.Content = &AudioContent{Volume: doc.Volume, FadeIn: doc.FadeIn, FadeOut: doc.FadeOut}
	default:
		return fmt.Errorf("unknown clip kind %q", doc.Kind)
	}
	return nil
}
