package halftone

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/esimov/halftone/utils"
)

// ErrNoSource is returned when a source has no image to offer.
var ErrNoSource = errors.New("halftone: source has no image")

// Source is a bitmap which may still be decoding. Wait blocks until the
// image is ready, the decoding failed or ctx is done.
//
// Implementations must be comparable, channels use equality to detect that
// the same source is rendered again.
type Source interface {
	Wait(ctx context.Context) (image.Image, error)
}

// Bitmap is the Source implementation of the package.
type Bitmap struct {
	done chan struct{}
	img  *image.NRGBA
	err  error
}

// NewBitmap wraps an already decoded image.
func NewBitmap(img image.Image) *Bitmap {
	b := &Bitmap{done: make(chan struct{})}
	if img == nil {
		b.err = ErrNoSource
	} else {
		b.img = imaging.Clone(img)
	}
	close(b.done)
	return b
}

// Decode starts decoding r in a new goroutine and returns immediately.
// If r is an io.Closer it is closed once decoding finishes.
func Decode(r io.Reader) *Bitmap {
	b := &Bitmap{done: make(chan struct{})}
	go func() {
		defer close(b.done)
		if c, ok := r.(io.Closer); ok {
			defer c.Close()
		}
		img, _, err := image.Decode(r)
		if err != nil {
			b.err = fmt.Errorf("could not decode the source image: %w", err)
			return
		}
		b.img = imaging.Clone(img)
	}()
	return b
}

// DecodeFile opens an image file and decodes it asynchronously.
func DecodeFile(path string) (*Bitmap, error) {
	ctype, err := utils.DetectContentType(path)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(ctype, "image") {
		return nil, fmt.Errorf("%s should be an image file, got %s", path, ctype)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open the source file: %w", err)
	}
	return Decode(file), nil
}

// Complete reports whether decoding has finished, successfully or not.
func (b *Bitmap) Complete() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Wait implements Source.
func (b *Bitmap) Wait(ctx context.Context) (image.Image, error) {
	select {
	case <-b.done:
		if b.err != nil {
			return nil, b.err
		}
		return b.img, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
