package halftone

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSource_NewBitmapIsComplete(t *testing.T) {
	b := NewBitmap(makeImage(3, 2, color.White))
	assert.True(t, b.Complete())

	img, err := b.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
}

func TestSource_NewBitmapNormalizesOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 9, 8))
	img, err := NewBitmap(src).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())
}

func TestSource_NilImage(t *testing.T) {
	_, err := NewBitmap(nil).Wait(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestSource_DecodeSuspendsUntilReady(t *testing.T) {
	pr, pw := io.Pipe()
	b := Decode(pr)
	assert.False(t, b.Complete())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := b.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	data := encodePNG(t, makeImage(6, 4, color.Black))
	go func() {
		pw.Write(data)
		pw.Close()
	}()

	img, err := b.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, b.Complete())
	assert.Equal(t, image.Rect(0, 0, 6, 4), img.Bounds())
}

func TestSource_DecodeFailure(t *testing.T) {
	b := Decode(bytes.NewReader([]byte("definitely not an image")))
	_, err := b.Wait(context.Background())
	assert.Error(t, err)
}

func TestSource_DecodeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, makeImage(5, 5, color.White)), 0644))

	b, err := DecodeFile(path)
	require.NoError(t, err)
	img, err := b.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())

	text := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("hello"), 0644))
	_, err = DecodeFile(text)
	assert.Error(t, err)
}
