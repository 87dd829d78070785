package compositor

import (
	"bufio"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
)

const (
	TitleSafeMargin  = 0.05
	ActionSafeMargin = 0.10
)

var (
	gridColor       = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0x60}
	titleSafeColor  = color.NRGBA{R: 0xff, G: 0xd6, A: 0xa0}
	actionSafeColor = color.NRGBA{G: 0xc8, B: 0xff, A: 0xa0}
)

// Guides selects the preview overlays.
type Guides struct {
	Grid       bool `json:"grid"`
	TitleSafe  bool `json:"titleSafe"`
	ActionSafe bool `json:"actionSafe"`
}

func (g Guides) Any() bool { return g.Grid || g.TitleSafe || g.ActionSafe }

// Preview returns a copy of the frame with the requested guides drawn on top.
// The frame itself is left untouched.
func Preview(f *Frame, g Guides) *image.RGBA {
	b := f.Image.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, f.Image, b.Min, draw.Src)
	if !g.Any() {
		return out
	}
	w, h := b.Dx(), b.Dy()
	if g.Grid {
		xs, ys := ThirdsLines(w, h)
		for _, x := range xs {
			fill(out, image.Rect(x, 0, x+1, h), gridColor)
		}
		for _, y := range ys {
			fill(out, image.Rect(0, y, w, y+1), gridColor)
		}
	}
	if g.TitleSafe {
		outline(out, SafeArea(w, h, TitleSafeMargin), titleSafeColor)
	}
	if g.ActionSafe {
		outline(out, SafeArea(w, h, ActionSafeMargin), actionSafeColor)
	}
	return out
}

// ThirdsLines returns the rule-of-thirds column and row positions.
func ThirdsLines(w, h int) ([2]int, [2]int) {
	return [2]int{w / 3, 2 * w / 3}, [2]int{h / 3, 2 * h / 3}
}

// SafeArea insets the canvas by margin (a fraction) on every side.
func SafeArea(w, h int, margin float64) image.Rectangle {
	mx := int(math.Round(float64(w) * margin))
	my := int(math.Round(float64(h) * margin))
	return image.Rect(mx, my, w-mx, h-my)
}

func fill(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Over)
}

func outline(dst draw.Image, r image.Rectangle, c color.Color) {
	if r.Empty() {
		return
	}
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), c)
	fill(dst, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), c)
	fill(dst, image.Rect(r.Min.X, r.Min.Y+1, r.Min.X+1, r.Max.Y-1), c)
	fill(dst, image.Rect(r.Max.X-1, r.Min.Y+1, r.Max.X, r.Max.Y-1), c)
}

// EncodePNG writes img with fast compression; frames are regenerated often.
func EncodePNG(w io.Writer, img image.Image) error {
	bw := bufio.NewWriter(w)
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(bw, img); err != nil {
		return err
	}
	return bw.Flush()
}
