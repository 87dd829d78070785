package compositor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeline-editor/internal/models"
	"timeline-editor/internal/project"
	"timeline-editor/internal/resolver"
)

func ptr[T any](v T) *T { return &v }

var (
	red  = color.RGBA{R: 0xff, A: 0xff}
	blue = color.RGBA{B: 0xff, A: 0xff}
)

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

type fakeProvider struct {
	frames map[uuid.UUID]image.Image
	errs   map[uuid.UUID]error
	seeks  []float64
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{frames: map[uuid.UUID]image.Image{}, errs: map[uuid.UUID]error{}}
}

func (f *fakeProvider) VideoFrame(_ context.Context, a models.Asset, sourceMs float64) (image.Image, error) {
	f.seeks = append(f.seeks, sourceMs)
	if err := f.errs[a.ID]; err != nil {
		return nil, err
	}
	return f.frames[a.ID], nil
}

func (f *fakeProvider) Image(_ context.Context, a models.Asset) (image.Image, error) {
	if err := f.errs[a.ID]; err != nil {
		return nil, err
	}
	return f.frames[a.ID], nil
}

type scene struct {
	m        *project.Model
	video    models.Track
	provider *fakeProvider
	comp     *Compositor
}

func newScene(t *testing.T, w, h int) *scene {
	t.Helper()
	m := project.New()
	_, err := m.UpdateSettings(project.SettingsPatch{Width: ptr(w), Height: ptr(h)})
	require.NoError(t, err)
	log := logrus.New()
	log.SetOutput(io.Discard)
	p := newFakeProvider()
	return &scene{m: m, video: m.Tracks()[0], provider: p, comp: New(p, WithLogger(log))}
}

func (s *scene) addVideo(t *testing.T, c color.Color, in project.ClipInput) models.Clip {
	t.Helper()
	a, err := s.m.AddAsset(project.AssetInput{Name: "v", Type: models.AssetVideo, Src: "v.mp4", Duration: ptr(60_000.0)})
	require.NoError(t, err)
	s.provider.frames[a.ID] = solid(c)
	in.AssetID, in.TrackID = a.ID, s.video.ID
	if in.EndTime == 0 {
		in.EndTime = 10_000
	}
	clip, err := s.m.AddClip(in)
	require.NoError(t, err)
	return clip
}

func (s *scene) compose(t *testing.T, at float64) *Frame {
	t.Helper()
	tracks := s.m.Tracks()
	f, err := s.comp.Compose(context.Background(), s.m.Snapshot(), at, resolver.Resolve(tracks, at))
	require.NoError(t, err)
	return f
}

func TestEmptyFrameIsTransparent(t *testing.T) {
	s := newScene(t, 32, 18)
	f := s.compose(t, 0)

	assert.Equal(t, image.Rect(0, 0, 32, 18), f.Image.Bounds())
	for _, px := range f.Image.Pix {
		require.Zero(t, px)
	}
	assert.Empty(t, f.Layers)
}

func TestVideoStretchesToCanvas(t *testing.T) {
	s := newScene(t, 64, 36)
	s.addVideo(t, red, project.ClipInput{StartTime: 1000, EndTime: 5000, InPoint: 500, OutPoint: 4500})

	f := s.compose(t, 1500)
	assert.Equal(t, red, f.Image.RGBAAt(32, 18))
	assert.Equal(t, red, f.Image.RGBAAt(8, 8))
	assert.Equal(t, []float64{1000}, s.provider.seeks)
	require.Len(t, f.Layers, 1)
	assert.True(t, f.Layers[0].Drawn)
}

func TestLaterClipPaintsAbove(t *testing.T) {
	s := newScene(t, 64, 36)
	s.addVideo(t, red, project.ClipInput{})
	s.addVideo(t, blue, project.ClipInput{})

	f := s.compose(t, 100)
	assert.Equal(t, blue, f.Image.RGBAAt(32, 18))
}

func TestProviderFailureSkipsOnlyThatLayer(t *testing.T) {
	s := newScene(t, 64, 36)
	s.addVideo(t, red, project.ClipInput{})
	pending := s.addVideo(t, blue, project.ClipInput{})
	s.provider.errs[pending.AssetID] = ErrNotReady

	f := s.compose(t, 100)
	assert.Equal(t, red, f.Image.RGBAAt(32, 18))

	skipped := f.Skipped()
	require.Len(t, skipped, 1)
	assert.Equal(t, pending.ID, skipped[0].ClipID)
	assert.ErrorIs(t, skipped[0].Err, ErrNotReady)
	assert.NotEmpty(t, skipped[0].Reason)
}

func TestArbitraryProviderErrorIsTolerated(t *testing.T) {
	s := newScene(t, 16, 16)
	clip := s.addVideo(t, red, project.ClipInput{})
	boom := errors.New("decoder exploded")
	s.provider.errs[clip.AssetID] = boom

	f := s.compose(t, 0)
	require.Len(t, f.Skipped(), 1)
	assert.ErrorIs(t, f.Skipped()[0].Err, boom)
	assert.Zero(t, f.Image.RGBAAt(8, 8).A)
}

func TestMissingAssetSkipsLayer(t *testing.T) {
	s := newScene(t, 16, 16)
	s.addVideo(t, red, project.ClipInput{})
	p := s.m.Snapshot()
	active := resolver.Resolve(p.Tracks, 0)
	p.Assets = nil

	f, err := s.comp.Compose(context.Background(), p, 0, active)
	require.NoError(t, err)
	require.Len(t, f.Skipped(), 1)
	assert.ErrorIs(t, f.Skipped()[0].Err, ErrMissingAsset)
}

func TestTransformPlacesClip(t *testing.T) {
	s := newScene(t, 64, 36)
	s.addVideo(t, red, project.ClipInput{ContentFields: project.ContentFields{
		Transform: &models.Transform{Position: &models.Point{X: 32, Y: 0}, Scale: 0.5},
	}})

	f := s.compose(t, 0)
	// scaled to 32x18 and moved to the top-right quadrant
	assert.Equal(t, red, f.Image.RGBAAt(48, 9))
	assert.Zero(t, f.Image.RGBAAt(8, 27).A)
	assert.Zero(t, f.Image.RGBAAt(16, 9).A)
}

func TestOpacityAndFilters(t *testing.T) {
	s := newScene(t, 32, 32)
	s.addVideo(t, red, project.ClipInput{ContentFields: project.ContentFields{Opacity: ptr(0.5)}})
	f := s.compose(t, 0)
	assert.InDelta(t, 128, int(f.Image.RGBAAt(16, 16).A), 2)

	g := newScene(t, 32, 32)
	g.addVideo(t, red, project.ClipInput{ContentFields: project.ContentFields{
		Filters: []models.Filter{{Type: models.FilterGrayscale}},
	}})
	px := g.compose(t, 0).Image.RGBAAt(16, 16)
	assert.InDelta(t, int(px.R), int(px.G), 1)
	assert.InDelta(t, int(px.G), int(px.B), 1)
	assert.NotZero(t, px.R)
}

func TestTextDrawsNearCenter(t *testing.T) {
	s := newScene(t, 200, 100)
	tt, err := s.m.AddTrack(models.TrackText)
	require.NoError(t, err)
	a, err := s.m.AddAsset(project.AssetInput{Name: "title", Type: models.AssetText})
	require.NoError(t, err)
	_, err = s.m.AddClip(project.ClipInput{AssetID: a.ID, TrackID: tt.ID, EndTime: 1000, ContentFields: project.ContentFields{
		Text: ptr("HELLO"),
	}})
	require.NoError(t, err)

	f := s.compose(t, 0)
	require.Empty(t, f.Skipped())

	inked := 0
	for y := 30; y < 70; y++ {
		for x := 50; x < 150; x++ {
			if f.Image.RGBAAt(x, y).A > 0 {
				inked++
			}
		}
	}
	assert.Positive(t, inked)
	assert.Zero(t, f.Image.RGBAAt(0, 0).A)
	assert.Zero(t, f.Image.RGBAAt(199, 99).A)
}

func TestOversizedTextSkipsLayer(t *testing.T) {
	s := newScene(t, 1920, 1080)
	tt, err := s.m.AddTrack(models.TrackText)
	require.NoError(t, err)
	a, err := s.m.AddAsset(project.AssetInput{Name: "crawl", Type: models.AssetText})
	require.NoError(t, err)
	_, err = s.m.AddClip(project.ClipInput{AssetID: a.ID, TrackID: tt.ID, EndTime: 1000, ContentFields: project.ContentFields{
		Text:      ptr(strings.Repeat("W", 10000)),
		TextStyle: &models.TextStyle{FontSize: 512},
	}})
	require.NoError(t, err, "accepted by the model")

	f := s.compose(t, 0)
	require.Len(t, f.Skipped(), 1)
	assert.ErrorIs(t, f.Skipped()[0].Err, ErrTextTooLarge)
}

func TestFontFacesAreBounded(t *testing.T) {
	fonts := NewFonts()
	_, _, err := fonts.Render("a", models.TextStyle{FontSize: 24})
	require.NoError(t, err)
	_, _, err = fonts.Render("a", models.TextStyle{FontSize: 24.1})
	require.NoError(t, err)
	assert.Len(t, fonts.faces, 1, "sizes round to half points")

	for i := 1; i <= 200; i++ {
		_, _, err := fonts.Render("a", models.TextStyle{FontSize: float64(i)})
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, len(fonts.faces), maxFaces)
}

func TestAudioLayerDrawsNothing(t *testing.T) {
	s := newScene(t, 16, 16)
	a, err := s.m.AddAsset(project.AssetInput{Name: "bgm", Type: models.AssetAudio, Src: "bgm.mp3"})
	require.NoError(t, err)
	_, err = s.m.AddClip(project.ClipInput{AssetID: a.ID, TrackID: s.m.Tracks()[1].ID, EndTime: 1000})
	require.NoError(t, err)

	f := s.compose(t, 0)
	require.Len(t, f.Layers, 1)
	assert.False(t, f.Layers[0].Drawn)
	assert.NoError(t, f.Layers[0].Err)
	assert.Zero(t, f.Image.RGBAAt(8, 8).A)
}

func TestInvalidCanvas(t *testing.T) {
	c := New(newFakeProvider())
	_, err := c.Compose(context.Background(), models.Project{}, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidCanvas)
}

func TestPreviewLeavesFrameUntouched(t *testing.T) {
	s := newScene(t, 90, 60)
	f := s.compose(t, 0)

	out := Preview(f, Guides{Grid: true, TitleSafe: true, ActionSafe: true})
	assert.NotZero(t, out.RGBAAt(30, 5).A, "grid column")
	assert.NotZero(t, out.RGBAAt(45, 3).A, "title-safe top edge")
	assert.NotZero(t, out.RGBAAt(45, 6).A, "action-safe top edge")
	for _, px := range f.Image.Pix {
		require.Zero(t, px)
	}
}

func TestSafeArea(t *testing.T) {
	assert.Equal(t, image.Rect(96, 54, 1824, 1026), SafeArea(1920, 1080, TitleSafeMargin))
	assert.Equal(t, image.Rect(192, 108, 1728, 972), SafeArea(1920, 1080, ActionSafeMargin))
	xs, ys := ThirdsLines(1920, 1080)
	assert.Equal(t, [2]int{640, 1280}, xs)
	assert.Equal(t, [2]int{360, 720}, ys)
}

func TestClipMatrixOrder(t *testing.T) {
	m := clipMatrix(models.Transform{Position: &models.Point{X: 10}, Scale: 2, Rotation: 90})
	x, y := apply(m, 1, 0)
	assert.InDelta(t, 10, x, 1e-9)
	assert.InDelta(t, 2, y, 1e-9)
}

func TestParseHexColor(t *testing.T) {
	cases := map[string]color.NRGBA{
		"#fff":      {R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		"#ff8000":   {R: 0xff, G: 0x80, A: 0xff},
		"#00000080": {A: 0x80},
	}
	for in, want := range cases {
		got, err := parseHexColor(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"fff", "#ggg", "#12345"} {
		_, err := parseHexColor(bad)
		assert.Error(t, err, bad)
	}
}

func TestEncodePNG(t *testing.T) {
	s := newScene(t, 20, 10)
	s.addVideo(t, red, project.ClipInput{})
	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, s.compose(t, 0).Image))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), img.Bounds())
}
