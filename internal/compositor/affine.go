package compositor

import (
	"math"

	"golang.org/x/image/math/f64"
)

// Matrices are row-major 2x3 affine transforms in screen space (y grows downward),
// the convention golang.org/x/image/draw expects for src-to-dst mappings.

func identity() f64.Aff3 { return f64.Aff3{1, 0, 0, 0, 1, 0} }

func translate(x, y float64) f64.Aff3 { return f64.Aff3{1, 0, x, 0, 1, y} }

func scale(sx, sy float64) f64.Aff3 { return f64.Aff3{sx, 0, 0, 0, sy, 0} }

// rotate turns clockwise on screen by deg degrees.
func rotate(deg float64) f64.Aff3 {
	s, c := math.Sincos(deg * math.Pi / 180)
	return f64.Aff3{c, -s, 0, s, c, 0}
}

// mul returns m·n: n is applied first.
func mul(m, n f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		m[0]*n[0] + m[1]*n[3], m[0]*n[1] + m[1]*n[4], m[0]*n[2] + m[1]*n[5] + m[2],
		m[3]*n[0] + m[4]*n[3], m[3]*n[1] + m[4]*n[4], m[3]*n[2] + m[4]*n[5] + m[5],
	}
}

// chain multiplies left to right, so the last matrix is applied first.
func chain(ms ...f64.Aff3) f64.Aff3 {
	out := identity()
	for _, m := range ms {
		out = mul(out, m)
	}
	return out
}

// apply maps the point (x, y) through m.
func apply(m f64.Aff3, x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}
