package halftone

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/esimov/halftone/reduce"
)

// Screen is the configuration of one ink plane.
type Screen struct {
	Name  string
	Color string
	Deg   float64
	Ink   reduce.Ink
}

// DefaultScreens returns the classic process screen angles. The angles are
// 30° apart for the dominant inks to avoid visible moiré, yellow being the
// least visible ink gets the remaining angle.
func DefaultScreens() []Screen {
	return []Screen{
		{Name: "k", Color: "#000000", Deg: 45, Ink: reduce.Black},
		{Name: "c", Color: "#00ffff", Deg: 15, Ink: reduce.Cyan},
		{Name: "m", Color: "#ff00ff", Deg: 75, Ink: reduce.Magenta},
		{Name: "y", Color: "#ffff00", Deg: 0, Ink: reduce.Yellow},
	}
}

// Config is the host configuration of a Halftone.
type Config struct {
	// Screens lists the planes to compute. Empty means DefaultScreens.
	Screens []Screen
	// CellSize is shared by all planes. Zero means DefaultCellSize.
	CellSize [2]int
	// Separate makes every plane measure its own ink coverage instead of
	// the luminance of the source.
	Separate bool
	// Timeout bounds a whole Render call. Zero means no timeout.
	Timeout time.Duration
}

func (cfg Config) normalize() Config {
	if len(cfg.Screens) == 0 {
		cfg.Screens = DefaultScreens()
	}
	if cfg.CellSize == ([2]int{}) {
		cfg.CellSize = DefaultCellSize
	}
	return cfg
}

// Hooks are called at the stages of a Render. Nil hooks are skipped.
type Hooks struct {
	// OnLoading is called before waiting for the source.
	OnLoading func()
	// OnLoaded is called once the source is decoded.
	OnLoaded func(width, height int)
	// OnCanvasReady is called when every plane has its cell grid.
	OnCanvasReady func(planes []Plane)
	// OnPaintComplete is called after the painter returned successfully.
	OnPaintComplete func(planes []Plane)
}

// Painter turns the cell grids into marks.
type Painter interface {
	Paint(ctx context.Context, planes []Plane) error
}

// PainterFunc adapts a function to the Painter interface.
type PainterFunc func(ctx context.Context, planes []Plane) error

// Paint calls f(ctx, planes).
func (f PainterFunc) Paint(ctx context.Context, planes []Plane) error {
	return f(ctx, planes)
}

// HostOption configures a Halftone.
type HostOption func(*Halftone)

// WithHooks sets the lifecycle hooks.
func WithHooks(hooks Hooks) HostOption {
	return func(h *Halftone) {
		h.hooks = hooks
	}
}

// WithPainter sets the painter receiving the planes of every Render.
func WithPainter(p Painter) HostOption {
	return func(h *Halftone) {
		h.painter = p
	}
}

// WithRasterizer sets the constructor of the per channel rasterizers.
func WithRasterizer(newRaster func() Rasterizer) HostOption {
	return func(h *Halftone) {
		h.newRaster = newRaster
	}
}

// Halftone owns one Channel per screen and renders them together.
type Halftone struct {
	pool      Submitter
	newRaster func() Rasterizer
	hooks     Hooks
	painter   Painter

	mu       sync.Mutex
	cfg      Config
	channels []*Channel
}

// New creates a Halftone whose channels submit their reductions to p.
func New(p Submitter, cfg Config, opts ...HostOption) *Halftone {
	h := &Halftone{
		pool: p,
		newRaster: func() Rasterizer {
			return NewDrawRasterizer(nil)
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.Configure(cfg)
	return h
}

// Configure replaces the configuration. Channels whose screen name is kept
// are reused, so their rasterization surface and last grid survive. The
// new settings take effect on the next Render.
func (h *Halftone) Configure(cfg Config) {
	cfg = cfg.normalize()

	h.mu.Lock()
	defer h.mu.Unlock()

	existing := make(map[string]*Channel, len(h.channels))
	for _, ch := range h.channels {
		existing[ch.Name()] = ch
	}

	channels := make([]*Channel, 0, len(cfg.Screens))
	for _, sc := range cfg.Screens {
		ch, ok := existing[sc.Name]
		if ok {
			delete(existing, sc.Name)
		} else {
			ch = NewChannel(h.pool, h.newRaster(), WithName(sc.Name))
		}
		channels = append(channels, ch)
	}
	for _, ch := range existing {
		ch.Dispose()
	}

	h.cfg = cfg
	h.channels = channels
}

// Config returns the current configuration.
func (h *Halftone) Config() Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg
}

// Channels returns the channels in screen order.
func (h *Halftone) Channels() []*Channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Channel(nil), h.channels...)
}

// Render computes every plane of src concurrently and, once all of them
// succeeded, hands them to the painter. A failing plane does not stop the
// others; the first error is returned and nothing is painted.
func (h *Halftone) Render(ctx context.Context, src Source) ([]Plane, error) {
	if src == nil {
		return nil, ErrNoSource
	}

	h.mu.Lock()
	cfg := h.cfg
	channels := append([]*Channel(nil), h.channels...)
	h.mu.Unlock()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if h.hooks.OnLoading != nil {
		h.hooks.OnLoading()
	}
	img, err := src.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if h.hooks.OnLoaded != nil {
		b := img.Bounds()
		h.hooks.OnLoaded(b.Dx(), b.Dy())
	}

	var g errgroup.Group
	for i, ch := range channels {
		sc := cfg.Screens[i]
		ink := reduce.Luminance
		if cfg.Separate {
			ink = sc.Ink
		}
		opts := []Option{
			WithSource(src),
			WithColor(sc.Color),
			WithDeg(sc.Deg),
			WithCellSize(cfg.CellSize[0], cfg.CellSize[1]),
			WithInk(ink),
		}
		ch := ch
		g.Go(func() error {
			return ch.Update(ctx, opts...)
		})
	}
	err = g.Wait()

	planes := make([]Plane, len(channels))
	for i, ch := range channels {
		planes[i] = ch.Plane()
	}
	if err != nil {
		return planes, err
	}
	Logger().Debug("planes ready", "count", len(planes))

	if h.hooks.OnCanvasReady != nil {
		h.hooks.OnCanvasReady(planes)
	}
	if h.painter == nil {
		return planes, nil
	}
	if err := h.painter.Paint(ctx, planes); err != nil {
		return planes, fmt.Errorf("painter: %w", err)
	}
	if h.hooks.OnPaintComplete != nil {
		h.hooks.OnPaintComplete(planes)
	}
	return planes, nil
}

// Planes returns the planes of the last completed updates.
func (h *Halftone) Planes() []Plane {
	channels := h.Channels()
	planes := make([]Plane, len(channels))
	for i, ch := range channels {
		planes[i] = ch.Plane()
	}
	return planes
}

// Dispose releases the rasterization surfaces of every channel.
func (h *Halftone) Dispose() {
	for _, ch := range h.Channels() {
		ch.Dispose()
	}
}
