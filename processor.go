package halftone

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/esimov/halftone/pool"
)

// Processor options
type Processor struct {
	// CellSize is the cell width and height. Zero means DefaultCellSize.
	CellSize [2]int
	// Screens overrides DefaultScreens.
	Screens []Screen
	// Separate measures ink coverage per plane instead of luminance.
	Separate bool
	// MaxSize downscales sources whose width or height exceeds it,
	// preserving the aspect ratio. Zero disables the pre-scaling.
	MaxSize int
	// Interp names the interpolator used to rotate the source.
	Interp string
	// Timeout bounds the computation of one image.
	Timeout time.Duration
	// Indent pretty prints the JSON output.
	Indent bool
	// Pool runs the reductions. Nil means pool.Default().
	Pool Submitter
}

// Document is the JSON output of the processor.
type Document struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Planes []Plane `json:"planes"`
}

// JSONPainter is a Painter which encodes the planes as a Document.
type JSONPainter struct {
	mu     sync.Mutex
	w      io.Writer
	indent bool

	// Width and Height are copied into the document.
	Width, Height int
}

// NewJSONPainter returns a painter writing to w.
func NewJSONPainter(w io.Writer, indent bool) *JSONPainter {
	return &JSONPainter{w: w, indent: indent}
}

// Paint implements Painter.
func (j *JSONPainter) Paint(_ context.Context, planes []Plane) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	enc := json.NewEncoder(j.w)
	if j.indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(Document{Width: j.Width, Height: j.Height, Planes: planes})
}

// Process decodes the source image read from r, computes its planes and
// writes them as JSON into w.
func (p *Processor) Process(r io.Reader, w io.Writer) error {
	return p.ProcessContext(context.Background(), r, w)
}

// ProcessContext is Process with a context bounding the computation.
func (p *Processor) ProcessContext(ctx context.Context, r io.Reader, w io.Writer) error {
	src, _, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("could not decode the source image: %w", err)
	}
	img := p.prescale(src)

	interp, err := Interpolator(p.Interp)
	if err != nil {
		return err
	}

	submitter := p.Pool
	if submitter == nil {
		submitter = pool.Default()
	}

	b := img.Bounds()
	painter := NewJSONPainter(w, p.Indent)
	painter.Width, painter.Height = b.Dx(), b.Dy()

	h := New(submitter, Config{
		Screens:  p.Screens,
		CellSize: p.CellSize,
		Separate: p.Separate,
		Timeout:  p.Timeout,
	},
		WithPainter(painter),
		WithRasterizer(func() Rasterizer {
			return NewDrawRasterizer(interp)
		}),
	)
	defer h.Dispose()

	start := time.Now()
	if _, err := h.Render(ctx, NewBitmap(img)); err != nil {
		return err
	}
	Logger().Info("image processed", "width", b.Dx(), "height", b.Dy(), "elapsed", time.Since(start))

	return nil
}

// prescale shrinks img to fit into a MaxSize square.
func (p *Processor) prescale(img image.Image) image.Image {
	if p.MaxSize <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= p.MaxSize && b.Dy() <= p.MaxSize {
		return img
	}
	Logger().Debug("downscaling source", "width", b.Dx(), "height", b.Dy(), "max", p.MaxSize)
	return imaging.Fit(img, p.MaxSize, p.MaxSize, imaging.Lanczos)
}
