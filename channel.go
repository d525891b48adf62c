package halftone

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/esimov/halftone/reduce"
)

// Submitter accepts reduction tasks. *pool.Pool implements it; tests can
// substitute an in-process reducer.
type Submitter interface {
	AddTask(ctx context.Context, t reduce.Task) (reduce.Result, error)
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(ctx context.Context, t reduce.Task) (reduce.Result, error)

// AddTask calls f(ctx, t).
func (f SubmitterFunc) AddTask(ctx context.Context, t reduce.Task) (reduce.Result, error) {
	return f(ctx, t)
}

// Plane is the cell grid of one channel, as handed to a painter.
type Plane struct {
	Name     string    `json:"name"`
	Color    string    `json:"color"`
	Deg      float64   `json:"deg"`
	Cells    []float64 `json:"cells"`
	Size     [2]int    `json:"size"`
	CellSize [2]int    `json:"cellSize"`
}

// inputs are the options a cell grid depends on.
type inputs struct {
	src      Source
	angle    float64
	cellSize [2]int
	ink      reduce.Ink
}

// Channel holds the state of one ink plane.
//
// Update calls are serialized per channel. The accessors may be called at
// any time and return the state of the last completed update.
type Channel struct {
	pool   Submitter
	raster Rasterizer

	// updateMu serializes updates and guards raster and last.
	updateMu sync.Mutex
	last     *inputs

	mu      sync.RWMutex
	opts    Options
	angle   float64
	viewBox [2]int
	size    [2]int
	cells   []float64
}

// NewChannel creates a channel submitting its tasks to p. A nil rasterizer
// is replaced by a bilinear DrawRasterizer.
func NewChannel(p Submitter, r Rasterizer, opts ...Option) *Channel {
	if r == nil {
		r = NewDrawRasterizer(nil)
	}
	return &Channel{
		pool:   p,
		raster: r,
		opts:   Options{CellSize: DefaultCellSize}.WithOverrides(opts...),
	}
}

// Update merges opts into the channel options and, if a source is set,
// recomputes the canvas and the cell grid.
//
// Without a source Update returns immediately and nothing is submitted.
// If the canvas pixels cannot be read the channel is left with an empty
// grid and Update succeeds. If the reduction fails the error is returned
// and the previous grid is kept. Updating again with unchanged inputs does
// not resubmit the reduction.
func (c *Channel) Update(ctx context.Context, opts ...Option) error {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	c.mu.Lock()
	c.opts = c.opts.WithOverrides(opts...)
	o := c.opts
	c.mu.Unlock()

	if o.Source == nil {
		return nil
	}

	img, err := o.Source.Wait(ctx)
	if err != nil {
		return fmt.Errorf("channel %s: %w", o.Name, err)
	}
	if b := img.Bounds(); b.Min != (image.Point{}) {
		img = imaging.Clone(img)
	}

	angle := Radians(o.Deg)
	b := img.Bounds()
	frame := NewFrame(b.Dx(), b.Dy(), angle)

	in := inputs{src: o.Source, angle: angle, cellSize: o.CellSize, ink: o.Ink}
	if c.last != nil && *c.last == in {
		Logger().Debug("channel inputs unchanged, keeping cells", "channel", o.Name)
		return nil
	}

	raster, err := c.raster.Rasterize(img, frame)
	if err != nil {
		Logger().Warn("unable to read raster pixels", "channel", o.Name, "err", err)
		c.mu.Lock()
		c.angle = angle
		c.viewBox = [2]int{frame.VW, frame.VH}
		c.size = [2]int{}
		c.cells = []float64{}
		c.mu.Unlock()
		c.last = nil
		return nil
	}

	Logger().Debug("submitting reduction",
		"channel", o.Name, "vw", raster.Width, "vh", raster.Height, "cellSize", o.CellSize)

	res, err := c.pool.AddTask(ctx, reduce.Task{
		Origin:   raster.Pix,
		VW:       raster.Width,
		VH:       raster.Height,
		Name:     o.Name,
		CellSize: o.CellSize,
		Ink:      o.Ink,
	})
	if err != nil {
		return fmt.Errorf("channel %s: %w", o.Name, err)
	}
	if len(res.Cells) != res.Column*res.Row {
		return fmt.Errorf("channel %s: reduction returned %d cells for a %dx%d grid",
			o.Name, len(res.Cells), res.Column, res.Row)
	}

	c.mu.Lock()
	c.angle = angle
	c.viewBox = [2]int{frame.VW, frame.VH}
	c.size = [2]int{res.Column, res.Row}
	c.cells = res.Cells
	c.mu.Unlock()
	c.last = &in

	return nil
}

// Dispose releases the rasterization surface. The channel stays usable.
func (c *Channel) Dispose() {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()
	c.raster.Release()
}

// Options returns the current merged options.
func (c *Channel) Options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts
}

// Name returns the channel identifier.
func (c *Channel) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts.Name
}

// Color returns the display color.
func (c *Channel) Color() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts.Color
}

// CellSize returns the configured cell dimensions.
func (c *Channel) CellSize() [2]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts.CellSize
}

// Angle returns the screen angle in radians of the last completed update.
func (c *Channel) Angle() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.angle
}

// ViewBox returns the rotated canvas size of the last completed update.
func (c *Channel) ViewBox() [2]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewBox
}

// Size returns the grid column and row count.
func (c *Channel) Size() [2]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// Cells returns a copy of the cell grid in row-major order, or nil if no
// grid was computed yet.
func (c *Channel) Cells() []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cells == nil {
		return nil
	}
	out := make([]float64, len(c.cells))
	copy(out, c.cells)
	return out
}

// Plane returns the painter view of the channel.
func (c *Channel) Plane() Plane {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var cells []float64
	if c.cells != nil {
		cells = make([]float64, len(c.cells))
		copy(cells, c.cells)
	}
	return Plane{
		Name:     c.opts.Name,
		Color:    c.opts.Color,
		Deg:      c.opts.Deg,
		Cells:    cells,
		Size:     c.size,
		CellSize: c.opts.CellSize,
	}
}
