package halftone

import "github.com/esimov/halftone/reduce"

// DefaultCellSize is the cell width and height used when none is configured.
var DefaultCellSize = [2]int{8, 8}

// Options holds the configuration of a single channel. It is a value type:
// WithOverrides returns a modified copy and never touches the receiver.
type Options struct {
	// Name identifies the channel. It should be unique among the
	// channels of one halftone.
	Name string
	// Color is the display color of the ink. It is not used by the pipeline.
	Color string
	// Deg is the screen angle in degrees. Any value is accepted.
	Deg float64
	// Source is the bitmap to sample. A channel without a source is inert.
	Source Source
	// CellSize is the cell width and height in raster pixels.
	CellSize [2]int
	// Ink selects the brightness measure used by the reduction.
	Ink reduce.Ink
}

// Option overrides a single field of Options.
type Option func(*Options)

// NewOptions returns the options obtained by applying opts to the zero value.
func NewOptions(opts ...Option) Options {
	return Options{}.WithOverrides(opts...)
}

// WithOverrides returns a copy of o with opts applied in order. Fields
// which are not touched by any option keep their current value.
func (o Options) WithOverrides(opts ...Option) Options {
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithName sets the channel name.
func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

// WithColor sets the display color.
func WithColor(color string) Option {
	return func(o *Options) {
		o.Color = color
	}
}

// WithDeg sets the screen angle in degrees.
func WithDeg(deg float64) Option {
	return func(o *Options) {
		o.Deg = deg
	}
}

// WithSource sets the bitmap to sample. Passing nil detaches the source.
func WithSource(src Source) Option {
	return func(o *Options) {
		o.Source = src
	}
}

// WithCellSize sets the cell dimensions in raster pixels.
func WithCellSize(w, h int) Option {
	return func(o *Options) {
		o.CellSize = [2]int{w, h}
	}
}

// WithInk sets the brightness measure.
func WithInk(ink reduce.Ink) Option {
	return func(o *Options) {
		o.Ink = ink
	}
}
