// Package compositor renders the active clips at one playhead time into a frame.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"timeline-editor/internal/models"
	"timeline-editor/internal/resolver"
)

var (
	// ErrNotReady is returned by a ContentProvider whose content is still loading.
	ErrNotReady = errors.New("content not ready")

	ErrMissingAsset  = errors.New("asset not in project")
	ErrUnsupported   = errors.New("unsupported asset for track")
	ErrEmptyText     = errors.New("empty text")
	ErrInvalidCanvas = errors.New("invalid canvas size")
)

// ContentProvider supplies drawable pixels for media assets.
type ContentProvider interface {
	// VideoFrame returns the frame of a video asset at sourceMs into its content.
	VideoFrame(ctx context.Context, asset models.Asset, sourceMs float64) (image.Image, error)
	// Image returns a still image asset.
	Image(ctx context.Context, asset models.Asset) (image.Image, error)
}

// Layer records what happened to one active clip during composition.
type Layer struct {
	ClipID  uuid.UUID       `json:"clipId"`
	TrackID uuid.UUID       `json:"trackId"`
	Kind    models.ClipKind `json:"kind"`
	Drawn   bool            `json:"drawn"`
	Err     error           `json:"-"`
	Reason  string          `json:"reason,omitempty"`
}

// Frame is one composite. Image is never modified after Compose returns.
type Frame struct {
	Image  *image.RGBA `json:"-"`
	Time   float64     `json:"time"`
	Layers []Layer     `json:"layers"`
}

// Skipped returns the layers that failed to draw.
func (f *Frame) Skipped() []Layer {
	var out []Layer
	for _, l := range f.Layers {
		if l.Err != nil {
			out = append(out, l)
		}
	}
	return out
}

type Compositor struct {
	provider ContentProvider
	fonts    *Fonts
	log      logrus.FieldLogger
	scaler   xdraw.Transformer
}

type Option func(*Compositor)

func WithLogger(l logrus.FieldLogger) Option { return func(c *Compositor) { c.log = l } }

func WithFonts(f *Fonts) Option { return func(c *Compositor) { c.fonts = f } }

// WithTransformer overrides the resampling kernel (BiLinear by default).
func WithTransformer(t xdraw.Transformer) Option { return func(c *Compositor) { c.scaler = t } }

func New(provider ContentProvider, opts ...Option) *Compositor {
	c := &Compositor{
		provider: provider,
		fonts:    NewFonts(),
		log:      logrus.StandardLogger(),
		scaler:   xdraw.BiLinear,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compose draws active back-to-front onto a fresh transparent canvas sized by
// the project settings. A layer that cannot be drawn is skipped and recorded;
// it never aborts the frame.
func (c *Compositor) Compose(ctx context.Context, p models.Project, t float64, active []resolver.Active) (*Frame, error) {
	w, h := p.Settings.Width, p.Settings.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidCanvas, w, h)
	}
	frame := &Frame{
		Image:  image.NewRGBA(image.Rect(0, 0, w, h)),
		Time:   t,
		Layers: make([]Layer, 0, len(active)),
	}

	assets := make(map[uuid.UUID]models.Asset, len(p.Assets))
	for _, a := range p.Assets {
		assets[a.ID] = a
	}

	for _, a := range active {
		layer := Layer{ClipID: a.Clip.ID, TrackID: a.Track.ID, Kind: a.Clip.Kind()}
		if !a.Visual() {
			frame.Layers = append(frame.Layers, layer)
			continue
		}
		if err := ctx.Err(); err != nil {
			layer.Err = err
		} else if asset, ok := assets[a.Clip.AssetID]; !ok {
			layer.Err = ErrMissingAsset
		} else {
			layer.Err = c.drawLayer(ctx, frame.Image, asset, a, t)
		}
		if layer.Err != nil {
			layer.Reason = layer.Err.Error()
			c.logSkip(layer)
		} else {
			layer.Drawn = true
		}
		frame.Layers = append(frame.Layers, layer)
	}
	return frame, nil
}

func (c *Compositor) logSkip(l Layer) {
	entry := c.log.WithFields(logrus.Fields{
		"clip_id":  l.ClipID,
		"track_id": l.TrackID,
		"kind":     l.Kind,
	}).WithError(l.Err)
	if errors.Is(l.Err, ErrNotReady) || errors.Is(l.Err, context.Canceled) {
		entry.Debug("layer skipped")
		return
	}
	entry.Warn("layer skipped")
}

func (c *Compositor) drawLayer(ctx context.Context, dst *image.RGBA, asset models.Asset, a resolver.Active, t float64) error {
	switch a.Track.Type {
	case models.TrackVideo:
		return c.drawMedia(ctx, dst, asset, a.Clip, t)
	case models.TrackText:
		return c.drawText(dst, asset, a.Clip)
	}
	return fmt.Errorf("%w: %s on %s track", ErrUnsupported, asset.Type, a.Track.Type)
}

func (c *Compositor) drawMedia(ctx context.Context, dst *image.RGBA, asset models.Asset, clip models.Clip, t float64) error {
	var (
		src image.Image
		err error
	)
	switch asset.Type {
	case models.AssetVideo:
		src, err = c.provider.VideoFrame(ctx, asset, clip.SourceTime(t))
	case models.AssetImage:
		src, err = c.provider.Image(ctx, asset)
	default:
		return fmt.Errorf("%w: %s on video track", ErrUnsupported, asset.Type)
	}
	if err != nil {
		return err
	}
	sb := src.Bounds()
	if sb.Empty() {
		return nil
	}

	var (
		tr      models.Transform
		filters []models.Filter
		opacity = 1.0
	)
	if vc, ok := clip.Content.(*models.VideoContent); ok {
		if vc.Transform != nil {
			tr = *vc.Transform
		}
		filters = vc.Filters
		opacity = vc.EffectiveOpacity()
	}
	if opacity <= 0 {
		return nil
	}
	src = applyFilters(src, filters, opacity)

	// The source is stretched to the canvas, then placed by the clip transform.
	cb := dst.Bounds()
	stretch := chain(
		scale(float64(cb.Dx())/float64(sb.Dx()), float64(cb.Dy())/float64(sb.Dy())),
		translate(-float64(sb.Min.X), -float64(sb.Min.Y)),
	)
	m := chain(clipMatrix(tr), stretch)
	c.transform(dst, m, src, sb)
	return nil
}

func (c *Compositor) drawText(dst *image.RGBA, asset models.Asset, clip models.Clip) error {
	tc, _ := clip.Content.(*models.TextContent)
	var (
		text  string
		style = models.DefaultTextStyle()
		tr    *models.Transform
	)
	if tc != nil {
		text = tc.Text
		style = tc.Style.Merge(style)
		tr = tc.Transform
	}
	if text == "" {
		text = asset.Src
	}
	if text == "" {
		return ErrEmptyText
	}

	block, anchor, err := c.fonts.Render(text, style)
	if err != nil {
		return err
	}

	var place models.Transform
	if tr != nil {
		place = *tr
	}
	if place.Position == nil {
		cb := dst.Bounds()
		place.Position = &models.Point{X: float64(cb.Dx()) / 2, Y: float64(cb.Dy()) / 2}
	}
	m := chain(clipMatrix(place), translate(-anchor.X, -anchor.Y))
	c.transform(dst, m, block, block.Bounds())
	return nil
}

// clipMatrix builds translate, then scale, then rotate about the clip origin.
// A transform without a position is anchored at the canvas origin.
func clipMatrix(tr models.Transform) f64.Aff3 {
	var x, y float64
	if tr.Position != nil {
		x, y = tr.Position.X, tr.Position.Y
	}
	s := tr.EffectiveScale()
	return chain(translate(x, y), scale(s, s), rotate(tr.Rotation))
}

func (c *Compositor) transform(dst *image.RGBA, m f64.Aff3, src image.Image, sr image.Rectangle) {
	if isIdentity(m) {
		r := sr.Intersect(dst.Bounds())
		draw.Draw(dst, r, src, r.Min, draw.Over)
		return
	}
	c.scaler.Transform(dst, m, src, sr, xdraw.Over, nil)
}

func isIdentity(m f64.Aff3) bool {
	return m == identity()
}
