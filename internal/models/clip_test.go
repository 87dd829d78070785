package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClipActiveAtIsHalfOpen(t *testing.T) {
	c := Clip{StartTime: 1000, EndTime: 2000}

	assert.True(t, c.ActiveAt(1000))
	assert.True(t, c.ActiveAt(1999))
	assert.False(t, c.ActiveAt(2000))
	assert.False(t, c.ActiveAt(999))
}

func TestClipSourceTime(t *testing.T) {
	c := Clip{StartTime: 1000, EndTime: 4000, InPoint: 500, OutPoint: 2500}

	assert.Equal(t, 500.0, c.SourceTime(1000))
	assert.Equal(t, 1500.0, c.SourceTime(2000))
	// past the source range the frame holds on the out point
	assert.Equal(t, 2500.0, c.SourceTime(3900))
}

func TestClipJSONDocumentShape(t *testing.T) {
	text := &TextContent{Text: "标题", Style: DefaultTextStyle(), Transform: &Transform{Position: &Point{X: 10, Y: 20}}}
	c := Clip{
		ID:        uuid.New(),
		AssetID:   uuid.New(),
		TrackID:   uuid.New(),
		StartTime: 0,
		EndTime:   5000,
		OutPoint:  5000,
		Content:   text,
	}

	raw, err := json.Marshal(c)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "text", fields["kind"])
	assert.Equal(t, "标题", fields["text"])
	assert.Contains(t, fields, "assetId")
	assert.Contains(t, fields, "textStyle")
	assert.NotContains(t, fields, "volume")
	assert.NotContains(t, fields, "filters")

	var back Clip
	require.NoError(t, json.Unmarshal(raw, &back))
	require.IsType(t, &TextContent{}, back.Content)
	assert.Equal(t, "标题", back.Content.(*TextContent).Text)
	assert.Equal(t, 10.0, back.Content.(*TextContent).Transform.Position.X)
}

func TestClipUnmarshalRejectsUnknownKind(t *testing.T) {
	var c Clip
	err := json.Unmarshal([]byte(`{"kind":"hologram"}`), &c)
	assert.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	op := 0.5
	c := Clip{Content: &VideoContent{Opacity: &op, Filters: []Filter{{Type: FilterBlur}}}}
	cp := c.Clone()

	*cp.Content.(*VideoContent).Opacity = 1
	cp.Content.(*VideoContent).Filters[0].Type = FilterSepia

	assert.Equal(t, 0.5, *c.Content.(*VideoContent).Opacity)
	assert.Equal(t, FilterBlur, c.Content.(*VideoContent).Filters[0].Type)
}

func TestAssetPlacement(t *testing.T) {
	assert.True(t, AssetImage.PlaceableOn(TrackVideo))
	assert.True(t, AssetVideo.PlaceableOn(TrackVideo))
	assert.False(t, AssetAudio.PlaceableOn(TrackVideo))
	assert.True(t, AssetText.PlaceableOn(TrackText))
	assert.False(t, AssetVideo.PlaceableOn(TrackEffect))
}

func TestTrackPriority(t *testing.T) {
	assert.Less(t, TrackVideo.Priority(), TrackAudio.Priority())
	assert.Less(t, TrackAudio.Priority(), TrackText.Priority())
	assert.Less(t, TrackText.Priority(), TrackEffect.Priority())
	assert.False(t, TrackEffect.Valid())
}
