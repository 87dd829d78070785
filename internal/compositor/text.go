package compositor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"timeline-editor/internal/models"
)

const (
	// MaxTextPixels bounds one rendered text block (4096x4096).
	MaxTextPixels = 4096 * 4096

	maxFaces = 64
)

// ErrTextTooLarge is returned for text whose block would exceed MaxTextPixels.
var ErrTextTooLarge = errors.New("text block too large")

type faceKey struct {
	ttf  string
	size float64
}

// Fonts caches parsed fonts and sized faces. Faces are not safe for concurrent
// use, so rendering holds the lock for the whole block.
type Fonts struct {
	mu     sync.Mutex
	parsed map[string]*opentype.Font
	faces  map[faceKey]font.Face
}

func NewFonts() *Fonts {
	return &Fonts{
		parsed: make(map[string]*opentype.Font),
		faces:  make(map[faceKey]font.Face),
	}
}

// ttfFor maps a CSS-ish family to one of the embedded Go fonts.
func ttfFor(family string, bold bool) (string, []byte) {
	switch strings.ToLower(strings.TrimSpace(family)) {
	case "courier", "courier new", "mono", "monospace", "consolas":
		if bold {
			return "gomonobold", gomonobold.TTF
		}
		return "gomono", gomono.TTF
	}
	if bold {
		return "gobold", gobold.TTF
	}
	return "goregular", goregular.TTF
}

// faceSize rounds to half points so nearby sizes share a face.
func faceSize(size float64) float64 {
	return math.Max(0.5, math.Round(size*2)/2)
}

func (f *Fonts) face(style models.TextStyle) (font.Face, error) {
	name, ttf := ttfFor(style.FontFamily, style.Bold)
	size := faceSize(style.FontSize)
	key := faceKey{ttf: name, size: size}
	if fc, ok := f.faces[key]; ok {
		return fc, nil
	}
	if len(f.faces) >= maxFaces {
		for k, fc := range f.faces {
			fc.Close()
			delete(f.faces, k)
		}
	}
	parsed, ok := f.parsed[name]
	if !ok {
		var err error
		if parsed, err = opentype.Parse(ttf); err != nil {
			return nil, fmt.Errorf("parse font %s: %w", name, err)
		}
		f.parsed[name] = parsed
	}
	fc, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("font face %s@%v: %w", name, size, err)
	}
	f.faces[key] = fc
	return fc, nil
}

// Render draws text into a tight transparent block. The returned anchor is the
// point that should land on the clip position: the horizontal alignment edge
// (left, center or right) at the block's vertical middle.
func (f *Fonts) Render(text string, style models.TextStyle) (*image.RGBA, models.Point, error) {
	style = style.Merge(models.DefaultTextStyle())
	col, err := parseHexColor(style.Color)
	if err != nil {
		return nil, models.Point{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	fc, err := f.face(style)
	if err != nil {
		return nil, models.Point{}, err
	}

	lines := strings.Split(text, "\n")
	metrics := fc.Metrics()
	lineH := metrics.Height.Ceil()
	if lineH <= 0 {
		lineH = int(math.Ceil(style.FontSize))
	}
	ascent := metrics.Ascent.Ceil()

	widths := make([]int, len(lines))
	w := 1
	for i, l := range lines {
		widths[i] = font.MeasureString(fc, l).Ceil()
		w = max(w, widths[i])
	}
	h := lineH * len(lines)
	if int64(w)*int64(h) > MaxTextPixels {
		return nil, models.Point{}, fmt.Errorf("%w: %dx%d", ErrTextTooLarge, w, h)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{Dst: img, Src: image.NewUniform(col), Face: fc}
	for i, l := range lines {
		x := 0
		switch style.Align {
		case models.AlignCenter:
			x = (w - widths[i]) / 2
		case models.AlignRight:
			x = w - widths[i]
		}
		d.Dot = fixed.P(x, i*lineH+ascent)
		d.DrawString(l)
	}

	anchor := models.Point{Y: float64(h) / 2}
	switch style.Align {
	case models.AlignCenter:
		anchor.X = float64(w) / 2
	case models.AlignRight:
		anchor.X = float64(w)
	}
	return img, anchor, nil
}

// parseHexColor accepts #rgb, #rrggbb and #rrggbbaa.
func parseHexColor(s string) (color.NRGBA, error) {
	c := color.NRGBA{A: 0xff}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == len(s) {
		return c, fmt.Errorf("invalid color %q", s)
	}
	digit := func(b byte) (uint8, bool) {
		switch {
		case b >= '0' && b <= '9':
			return b - '0', true
		case b >= 'a' && b <= 'f':
			return b - 'a' + 10, true
		case b >= 'A' && b <= 'F':
			return b - 'A' + 10, true
		}
		return 0, false
	}
	var vals []uint8
	for i := 0; i < len(hex); i++ {
		v, ok := digit(hex[i])
		if !ok {
			return c, fmt.Errorf("invalid color %q", s)
		}
		vals = append(vals, v)
	}
	switch len(vals) {
	case 3:
		c.R, c.G, c.B = vals[0]*17, vals[1]*17, vals[2]*17
	case 6, 8:
		c.R = vals[0]<<4 | vals[1]
		c.G = vals[2]<<4 | vals[3]
		c.B = vals[4]<<4 | vals[5]
		if len(vals) == 8 {
			c.A = vals[6]<<4 | vals[7]
		}
	default:
		return c, fmt.Errorf("invalid color %q", s)
	}
	return c, nil
}
