package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/esimov/halftone/reduce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echo returns a one cell grid holding the task width, so every result can
// be matched back to the task which produced it.
func echo(t reduce.Task) (reduce.Result, error) {
	return reduce.Result{Cells: []float64{float64(t.VW)}, Column: 1, Row: 1}, nil
}

func staticFactory(r Reducer) Factory {
	return func(int) (Reducer, error) { return r, nil }
}

func TestPool_ShouldReduceTask(t *testing.T) {
	p := New(WithSize(2))
	defer p.Close()

	pix := make([]byte, 10*10*4)
	for i := range pix {
		pix[i] = 0xff
	}
	res, err := p.AddTask(context.Background(), reduce.Task{
		Origin:   pix,
		VW:       10,
		VH:       10,
		Name:     "k",
		CellSize: [2]int{4, 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Column)
	assert.Equal(t, 3, res.Row)
	assert.Len(t, res.Cells, 9)
}

func TestPool_ShouldBoundConcurrency(t *testing.T) {
	const (
		size  = 3
		tasks = 24
	)
	var active, peak atomic.Int64

	reducer := func(t reduce.Task) (reduce.Result, error) {
		n := active.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return echo(t)
	}
	p := New(WithSize(size), WithFactory(staticFactory(reducer)))
	defer p.Close()

	var wg sync.WaitGroup
	results := make([]float64, tasks)
	errs := make([]error, tasks)
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := p.AddTask(context.Background(), reduce.Task{VW: i, Name: fmt.Sprint(i)})
			errs[i] = err
			if err == nil {
				results[i] = res.Cells[0]
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < tasks; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, float64(i), results[i], "task %d got a foreign result", i)
	}
	assert.LessOrEqual(t, peak.Load(), int64(size))
	assert.Equal(t, uint64(tasks), p.Stats().Completed)
	assert.Equal(t, uint64(tasks), p.Stats().Submitted)
}

func TestPool_ShouldAdmitInFIFOOrder(t *testing.T) {
	gate := make(chan struct{})
	var (
		mu    sync.Mutex
		order []int
	)
	reducer := func(t reduce.Task) (reduce.Result, error) {
		if t.Name == "gate" {
			<-gate
		}
		mu.Lock()
		order = append(order, t.VW)
		mu.Unlock()
		return echo(t)
	}
	p := New(WithSize(1), WithFactory(staticFactory(reducer)))
	defer p.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.AddTask(context.Background(), reduce.Task{VW: -1, Name: "gate"})
	}()
	require.Eventually(t, func() bool { return p.Stats().Busy == 1 }, time.Second, time.Millisecond)

	const queued = 8
	for i := 0; i < queued; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.AddTask(context.Background(), reduce.Task{VW: i})
		}(i)
		want := i + 1
		require.Eventually(t, func() bool { return p.Stats().Queued == want }, time.Second, time.Millisecond)
	}
	close(gate)
	wg.Wait()

	assert.Equal(t, []int{-1, 0, 1, 2, 3, 4, 5, 6, 7}, order)
}

func TestPool_ShouldIsolateFaultyTask(t *testing.T) {
	var created atomic.Int64
	factory := func(int) (Reducer, error) {
		created.Add(1)
		return func(t reduce.Task) (reduce.Result, error) {
			if t.Name == "bad" {
				panic("malformed input")
			}
			return echo(t)
		}, nil
	}
	p := New(WithSize(1), WithFactory(factory))
	defer p.Close()

	_, err := p.AddTask(context.Background(), reduce.Task{Name: "bad"})
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "bad", taskErr.Name)

	res, err := p.AddTask(context.Background(), reduce.Task{VW: 7, Name: "good"})
	require.NoError(t, err)
	assert.Equal(t, []float64{7}, res.Cells)

	assert.Equal(t, int64(2), created.Load(), "the unit should have been recycled")
	assert.Equal(t, uint64(1), p.Stats().Failed)
}

func TestPool_ShouldPropagateReducerError(t *testing.T) {
	p := New(WithSize(1))
	defer p.Close()

	_, err := p.AddTask(context.Background(), reduce.Task{
		Origin:   make([]byte, 4),
		VW:       4,
		VH:       4,
		Name:     "short",
		CellSize: [2]int{2, 2},
	})
	assert.ErrorIs(t, err, reduce.ErrShortBuffer)

	var taskErr *TaskError
	assert.ErrorAs(t, err, &taskErr)
}

func TestPool_ShouldSurfaceStartupFailure(t *testing.T) {
	boom := errors.New("no unit for you")
	factory := func(unit int) (Reducer, error) {
		if unit == 1 {
			return nil, boom
		}
		return echo, nil
	}
	p := New(WithSize(3), WithFactory(factory))
	defer p.Close()

	for i := 0; i < 2; i++ {
		_, err := p.AddTask(context.Background(), reduce.Task{})
		var startErr *StartupError
		require.ErrorAs(t, err, &startErr)
		assert.Equal(t, 1, startErr.Unit)
		assert.ErrorIs(t, err, boom)
	}

	nilFactory := New(WithFactory(func(int) (Reducer, error) { return nil, nil }))
	_, err := nilFactory.AddTask(context.Background(), reduce.Task{})
	assert.Error(t, err)
}

func TestPool_ShouldStopWaitingOnContext(t *testing.T) {
	gate := make(chan struct{})
	reducer := func(t reduce.Task) (reduce.Result, error) {
		<-gate
		return echo(t)
	}
	p := New(WithSize(1), WithFactory(staticFactory(reducer)))
	defer p.Close()
	defer close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.AddTask(ctx, reduce.Task{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_ShouldRejectAfterClose(t *testing.T) {
	p := New(WithSize(2))
	_, err := p.AddTask(context.Background(), reduce.Task{CellSize: [2]int{1, 1}})
	require.NoError(t, err)

	p.Close()
	p.Close()

	_, err = p.AddTask(context.Background(), reduce.Task{CellSize: [2]int{1, 1}})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPool_SizePolicy(t *testing.T) {
	testCases := []struct {
		reported, configured, want int
	}{
		{0, 4, 1},
		{1, 4, 1},
		{1, 16, 1},
		{2, 4, 4},
		{8, 4, 4},
		{8, 0, 1},
		{8, -3, 1},
		{16, 12, 12},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, Size(tc.reported, tc.configured), "Size(%d, %d)", tc.reported, tc.configured)
	}

	assert.Equal(t, 1, newShared(1, WithSize(8)).Cap())
	assert.Equal(t, DefaultSize, newShared(8).Cap())
	assert.Equal(t, 6, newShared(8, WithSize(6)).Cap())
	assert.Equal(t, 1, New(WithSize(0)).Cap())
}

func TestPool_DefaultIsShared(t *testing.T) {
	a := Default()
	b := Init(WithSize(64))
	assert.Same(t, a, b)
	assert.GreaterOrEqual(t, a.Cap(), 1)
}
