package compositor

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"timeline-editor/internal/models"
)

const (
	defaultBrightness = 20.0
	defaultContrast   = 20.0
	defaultBlurSigma  = 2.0
)

// applyFilters runs clip filters in list order and then applies opacity.
// src is returned untouched when there is nothing to do.
func applyFilters(src image.Image, filters []models.Filter, opacity float64) image.Image {
	if len(filters) == 0 && opacity >= 1 {
		return src
	}
	img := imaging.Clone(src)
	for _, f := range filters {
		switch f.Type {
		case models.FilterGrayscale:
			if mix := mixAmount(f.Amount); mix >= 1 {
				img = imaging.Grayscale(img)
			} else {
				img = imaging.AdjustSaturation(img, -100*mix)
			}
		case models.FilterSepia:
			img = sepia(img, mixAmount(f.Amount))
		case models.FilterBrightness:
			img = imaging.AdjustBrightness(img, orDefault(f.Amount, defaultBrightness))
		case models.FilterContrast:
			img = imaging.AdjustContrast(img, orDefault(f.Amount, defaultContrast))
		case models.FilterBlur:
			img = imaging.Blur(img, math.Abs(orDefault(f.Amount, defaultBlurSigma)))
		}
	}
	if opacity < 1 {
		opacity = math.Max(0, opacity)
		img = imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			c.A = uint8(float64(c.A)*opacity + 0.5)
			return c
		})
	}
	return img
}

func sepia(img *image.NRGBA, mix float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R), float64(c.G), float64(c.B)
		sr := math.Min(255, 0.393*r+0.769*g+0.189*b)
		sg := math.Min(255, 0.349*r+0.686*g+0.168*b)
		sb := math.Min(255, 0.272*r+0.534*g+0.131*b)
		c.R = uint8(r + (sr-r)*mix + 0.5)
		c.G = uint8(g + (sg-g)*mix + 0.5)
		c.B = uint8(b + (sb-b)*mix + 0.5)
		return c
	})
}

// mixAmount reads a 0..1 strength where zero means full strength.
func mixAmount(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return math.Min(1, v)
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
