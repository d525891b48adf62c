package halftone

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ErrPixelRead is returned by a Rasterizer whose surface cannot be read back.
var ErrPixelRead = errors.New("halftone: unable to read raster pixels")

// Raster is a rotated canvas in RGBA byte order, 4 bytes per pixel,
// row-major without padding.
type Raster struct {
	Pix    []byte
	Width  int
	Height int
}

// Image wraps the raster pixels into an image without copying them.
func (r Raster) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    r.Pix,
		Stride: r.Width * 4,
		Rect:   image.Rect(0, 0, r.Width, r.Height),
	}
}

// Rasterizer draws a source onto the canvas described by a Frame.
type Rasterizer interface {
	// Rasterize returns the pixels of the canvas. The returned buffer is
	// owned by the caller.
	Rasterize(src image.Image, f Frame) (Raster, error)
	// Release drops any surface kept between calls.
	Release()
}

// Interpolator returns the x/image interpolator registered under name.
// The empty name selects bilinear interpolation.
func Interpolator(name string) (draw.Interpolator, error) {
	switch name {
	case "", "bilinear":
		return draw.BiLinear, nil
	case "nearest":
		return draw.NearestNeighbor, nil
	case "approx":
		return draw.ApproxBiLinear, nil
	case "catmull":
		return draw.CatmullRom, nil
	}
	return nil, fmt.Errorf("unknown interpolator %q", name)
}

// DrawRasterizer renders through golang.org/x/image/draw onto a surface
// which is reused while the canvas size does not change. It is not safe
// for concurrent use; each channel owns its own.
type DrawRasterizer struct {
	Interp  draw.Interpolator
	surface *image.RGBA
}

// NewDrawRasterizer returns a rasterizer using the given interpolator,
// bilinear if nil.
func NewDrawRasterizer(interp draw.Interpolator) *DrawRasterizer {
	if interp == nil {
		interp = draw.BiLinear
	}
	return &DrawRasterizer{Interp: interp}
}

// Rasterize fills the surface with white, draws src through the frame
// transform and copies the pixels out.
func (d *DrawRasterizer) Rasterize(src image.Image, f Frame) (r Raster, err error) {
	if src == nil {
		return Raster{}, fmt.Errorf("%w: nil source", ErrPixelRead)
	}
	// Third party image implementations may panic on At.
	defer func() {
		if rec := recover(); rec != nil {
			r, err = Raster{}, fmt.Errorf("%w: %v", ErrPixelRead, rec)
		}
	}()

	rect := image.Rect(0, 0, f.VW, f.VH)
	if d.surface == nil || d.surface.Rect != rect {
		d.surface = image.NewRGBA(rect)
	}
	draw.Draw(d.surface, rect, image.NewUniform(color.White), image.Point{}, draw.Src)

	interp := d.Interp
	if interp == nil {
		interp = draw.BiLinear
	}
	interp.Transform(d.surface, f.Aff3(), src, src.Bounds(), draw.Over, nil)

	pix := make([]byte, len(d.surface.Pix))
	copy(pix, d.surface.Pix)

	return Raster{Pix: pix, Width: f.VW, Height: f.VH}, nil
}

// Release drops the surface.
func (d *DrawRasterizer) Release() {
	d.surface = nil
}
