package halftone

import (
	"math"

	"golang.org/x/image/math/f64"
	"seehuhn.de/go/geom/matrix"

	"github.com/esimov/halftone/utils"
)

// snapEpsilon absorbs the rounding noise of cos/sin, e.g. cos(π/2) ≈ 6e-17,
// which would otherwise make ceil grow a 90° rotated box by one pixel.
const snapEpsilon = 1e-9

// Radians converts a screen angle in degrees to radians in [0, 2π).
func Radians(deg float64) float64 {
	a := math.Mod(deg*math.Pi/180, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	if 2*math.Pi-a < snapEpsilon {
		a = 0
	}
	return a
}

// ViewBox returns the size of the smallest canvas which holds a w×h image
// rotated by angle radians about its own center. Both dimensions are at
// least one, even for empty images.
func ViewBox(w, h int, angle float64) (vw, vh int) {
	cos := utils.Abs(math.Cos(angle))
	sin := utils.Abs(math.Sin(angle))
	fw, fh := float64(w), float64(h)

	vw = ceil(fw*cos + fh*sin)
	vh = ceil(fw*sin + fh*cos)
	return utils.Max(1, vw), utils.Max(1, vh)
}

func ceil(x float64) int {
	if r := math.Round(x); utils.Abs(x-r) < snapEpsilon {
		return int(r)
	}
	return int(math.Ceil(x))
}

// Frame describes how a w×h source is placed on its rotated canvas.
type Frame struct {
	W, H   int
	VW, VH int
	Angle  float64
}

// NewFrame computes the canvas of a w×h source rotated by angle radians.
func NewFrame(w, h int, angle float64) Frame {
	vw, vh := ViewBox(w, h, angle)
	return Frame{W: w, H: h, VW: vw, VH: vh, Angle: angle}
}

// Matrix maps source pixel coordinates to canvas coordinates. The source
// is first moved so that its center is at the origin, then rotated, then
// moved to the center of the canvas. Pivoting on the image center keeps
// the rotated image inside the canvas.
func (f Frame) Matrix() matrix.Matrix {
	return matrix.Translate(-float64(f.W)/2, -float64(f.H)/2).
		Mul(matrix.Rotate(f.Angle)).
		Mul(matrix.Translate(float64(f.VW)/2, float64(f.VH)/2))
}

// Aff3 returns Matrix in the layout expected by golang.org/x/image/draw.
func (f Frame) Aff3() f64.Aff3 {
	m := f.Matrix()
	return f64.Aff3{
		m[0], m[2], m[4],
		m[1], m[3], m[5],
	}
}
