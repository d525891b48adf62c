package halftone

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esimov/halftone/reduce"
)

func TestHalftone_RendersEveryScreen(t *testing.T) {
	p := &countingPool{}
	var painted []Plane
	h := New(p, Config{CellSize: [2]int{4, 4}}, WithPainter(PainterFunc(func(_ context.Context, planes []Plane) error {
		painted = planes
		return nil
	})))

	planes, err := h.Render(context.Background(), NewBitmap(makeImage(100, 50, color.Gray{Y: 90})))
	require.NoError(t, err)
	require.Len(t, planes, 4)
	assert.Equal(t, planes, painted)
	assert.Equal(t, int32(4), p.calls.Load())

	want := DefaultScreens()
	for i, plane := range planes {
		assert.Equal(t, want[i].Name, plane.Name)
		assert.Equal(t, want[i].Color, plane.Color)
		assert.Equal(t, want[i].Deg, plane.Deg)
		assert.Equal(t, [2]int{4, 4}, plane.CellSize)
		assert.Len(t, plane.Cells, plane.Size[0]*plane.Size[1])
	}
	assert.Equal(t, [2]int{27, 27}, planes[0].Size, "45° plane")
	assert.Equal(t, [2]int{25, 13}, planes[3].Size, "0° plane")
	assert.Equal(t, planes, h.Planes())
}

func TestHalftone_HooksOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}
	hooks := Hooks{
		OnLoading: func() { record("loading") },
		OnLoaded: func(w, h int) {
			assert.Equal(t, 12, w)
			assert.Equal(t, 8, h)
			record("loaded")
		},
		OnCanvasReady:   func([]Plane) { record("ready") },
		OnPaintComplete: func([]Plane) { record("complete") },
	}
	painter := PainterFunc(func(context.Context, []Plane) error {
		record("paint")
		return nil
	})

	h := New(&countingPool{}, Config{}, WithHooks(hooks), WithPainter(painter))
	_, err := h.Render(context.Background(), NewBitmap(makeImage(12, 8, color.White)))
	require.NoError(t, err)
	assert.Equal(t, []string{"loading", "loaded", "ready", "paint", "complete"}, order)
}

func TestHalftone_FailingPlaneDoesNotCancelOthers(t *testing.T) {
	boom := errors.New("reduction failed")
	var done sync.Map
	pool := SubmitterFunc(func(ctx context.Context, task reduce.Task) (reduce.Result, error) {
		if task.Name == "m" {
			return reduce.Result{}, boom
		}
		// Give the failure a head start.
		time.Sleep(5 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return reduce.Result{}, err
		}
		done.Store(task.Name, true)
		return reduce.Reduce(task)
	})

	painted := false
	h := New(pool, Config{}, WithPainter(PainterFunc(func(context.Context, []Plane) error {
		painted = true
		return nil
	})))

	planes, err := h.Render(context.Background(), NewBitmap(makeImage(16, 16, color.Black)))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, painted)
	require.Len(t, planes, 4)

	for _, name := range []string{"k", "c", "y"} {
		_, ok := done.Load(name)
		assert.True(t, ok, "plane %s", name)
	}
	for _, plane := range planes {
		if plane.Name == "m" {
			assert.Nil(t, plane.Cells)
		} else {
			assert.NotEmpty(t, plane.Cells)
		}
	}
}

func TestHalftone_PainterError(t *testing.T) {
	completed := false
	h := New(&countingPool{}, Config{},
		WithHooks(Hooks{OnPaintComplete: func([]Plane) { completed = true }}),
		WithPainter(PainterFunc(func(context.Context, []Plane) error {
			return errors.New("no canvas")
		})))

	_, err := h.Render(context.Background(), NewBitmap(makeImage(4, 4, color.White)))
	assert.Error(t, err)
	assert.False(t, completed)
}

func TestHalftone_Separate(t *testing.T) {
	h := New(&countingPool{}, Config{Separate: true, CellSize: [2]int{2, 2}})
	planes, err := h.Render(context.Background(), NewBitmap(makeImage(4, 4, color.NRGBA{R: 255, A: 255})))
	require.NoError(t, err)

	byName := make(map[string]Plane)
	for _, p := range planes {
		byName[p.Name] = p
	}
	// Pure red is full magenta and yellow coverage, no cyan and no black.
	// The 0° yellow plane has no background cells.
	assert.InDelta(t, 255, byName["c"].Cells[len(byName["c"].Cells)/2], 1e-6)
	assert.InDelta(t, 255, byName["k"].Cells[len(byName["k"].Cells)/2], 1e-6)
	for _, v := range byName["y"].Cells {
		assert.InDelta(t, 0, v, 1e-6)
	}
}

func TestHalftone_ConfigureReusesChannels(t *testing.T) {
	p := &countingPool{}
	h := New(p, Config{})
	before := h.Channels()
	require.Len(t, before, 4)

	h.Configure(Config{Screens: []Screen{
		{Name: "k", Color: "#000000", Deg: 45},
		{Name: "spot", Color: "#ff8800", Deg: 60},
	}, CellSize: [2]int{6, 6}})

	after := h.Channels()
	require.Len(t, after, 2)
	assert.Same(t, before[0], after[0])
	assert.Equal(t, "spot", after[1].Name())
	assert.Equal(t, [2]int{6, 6}, h.Config().CellSize)

	planes, err := h.Render(context.Background(), NewBitmap(makeImage(10, 10, color.White)))
	require.NoError(t, err)
	require.Len(t, planes, 2)
	assert.Equal(t, "#ff8800", planes[1].Color)
	assert.Equal(t, int32(2), p.calls.Load())

	h.Dispose()
}

func TestHalftone_SourceErrors(t *testing.T) {
	h := New(&countingPool{}, Config{Timeout: 10 * time.Millisecond})

	_, err := h.Render(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoSource)

	loading := false
	h = New(&countingPool{}, Config{Timeout: 10 * time.Millisecond},
		WithHooks(Hooks{OnLoading: func() { loading = true }}))
	never := &Bitmap{done: make(chan struct{})}
	_, err = h.Render(context.Background(), never)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, loading)
}
