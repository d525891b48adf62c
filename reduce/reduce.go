// Package reduce implements the reduction task run by the pool units:
// a rotated RGBA raster is partitioned into a grid of fixed size cells
// and every cell is reduced to a single brightness value.
//
// The returned values are in the [0, 255] range, where 255 means white
// (no ink) and 0 means full coverage. Transparent pixels are composited
// over white before they are measured.
package reduce

import (
	"errors"
	"fmt"

	"github.com/esimov/halftone/utils"
)

var (
	// ErrCellSize is returned when a cell dimension is not positive.
	ErrCellSize = errors.New("cell size must be positive")
	// ErrDimensions is returned for negative raster dimensions.
	ErrDimensions = errors.New("raster dimensions must not be negative")
	// ErrShortBuffer is returned when the pixel buffer is smaller than vw*vh*4 bytes.
	ErrShortBuffer = errors.New("pixel buffer shorter than raster")
)

// Task is the unit of work sent to a pool unit.
type Task struct {
	// Origin holds the raster pixels as RGBA, 4 bytes per pixel, row-major.
	Origin []byte
	// VW and VH are the raster width and height in pixels.
	VW, VH int
	// Name identifies the channel which submitted the task. Only used for tracing.
	Name string
	// CellSize is the cell width and height in raster pixels.
	CellSize [2]int
	// Ink selects the brightness measure. The zero value is Luminance.
	Ink Ink
}

// Result is the cell grid produced by a Task.
type Result struct {
	Cells  []float64
	Column int
	Row    int
}

// Grid returns the number of columns and rows needed to cover a vw×vh raster
// with cw×ch cells. Edge cells may be partial.
func Grid(vw, vh, cw, ch int) (column, row int) {
	if vw <= 0 || vh <= 0 {
		return 0, 0
	}
	return utils.CeilDiv(vw, cw), utils.CeilDiv(vh, ch)
}

// Validate reports whether the task can be reduced.
func (t Task) Validate() error {
	cw, ch := t.CellSize[0], t.CellSize[1]
	if cw <= 0 || ch <= 0 {
		return fmt.Errorf("%w: got %dx%d", ErrCellSize, cw, ch)
	}
	if t.VW < 0 || t.VH < 0 {
		return fmt.Errorf("%w: got %dx%d", ErrDimensions, t.VW, t.VH)
	}
	if need := t.VW * t.VH * 4; len(t.Origin) < need {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrShortBuffer, need, len(t.Origin))
	}
	if !t.Ink.valid() {
		return fmt.Errorf("unknown ink %q", t.Ink)
	}
	return nil
}

// Reduce computes the cell grid of a task. It only reads the task and
// allocates its own output, so concurrent calls never share state.
func Reduce(t Task) (Result, error) {
	if err := t.Validate(); err != nil {
		return Result{}, err
	}
	cw, ch := t.CellSize[0], t.CellSize[1]
	column, row := Grid(t.VW, t.VH, cw, ch)

	measure := t.Ink.measure()
	cells := make([]float64, column*row)
	stride := t.VW * 4

	for cy := 0; cy < row; cy++ {
		y0 := cy * ch
		y1 := utils.Min(y0+ch, t.VH)
		for cx := 0; cx < column; cx++ {
			x0 := cx * cw
			x1 := utils.Min(x0+cw, t.VW)

			var sum float64
			for y := y0; y < y1; y++ {
				off := y*stride + x0*4
				for x := x0; x < x1; x++ {
					p := t.Origin[off : off+4 : off+4]
					r, g, b := overWhite(p[0], p[3]), overWhite(p[1], p[3]), overWhite(p[2], p[3])
					sum += measure(r, g, b)
					off += 4
				}
			}
			cells[cy*column+cx] = sum / float64((x1-x0)*(y1-y0))
		}
	}

	return Result{
		Cells:  cells,
		Column: column,
		Row:    row,
	}, nil
}

// overWhite composites a non-premultiplied channel value over a white
// backdrop and returns it normalized to [0, 1].
func overWhite(c, a uint8) float64 {
	alpha := float64(a) / 255
	return (float64(c)*alpha + 255*(1-alpha)) / 255
}
