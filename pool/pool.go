// Package pool runs reduction tasks on a fixed number of worker units.
//
// Tasks are admitted in FIFO order through a bounded queue: when every unit
// is busy and the queue is full, submitters block until a slot frees up.
// A unit executes one task at a time. A failing or panicking task rejects
// only its own submission, the unit keeps serving the queue afterwards.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/esimov/halftone/reduce"
	"github.com/pkg/errors"
)

const (
	// DefaultSize is the number of units used when the platform reports
	// more than one hardware thread and no size was configured.
	DefaultSize = 4
	// DefaultQueue is the number of tasks which can wait for a free unit
	// before submitters start blocking.
	DefaultQueue = 64
)

// ErrClosed is returned by AddTask once the pool has been closed.
var ErrClosed = errors.New("pool: closed")

// Reducer executes a single task.
type Reducer func(reduce.Task) (reduce.Result, error)

// Factory creates the reducer owned by a unit. It is called once per unit
// when the pool starts, and again when a unit is recycled after a panic.
type Factory func(unit int) (Reducer, error)

// DefaultFactory hands every unit the pure reduce.Reduce function.
func DefaultFactory(int) (Reducer, error) {
	return reduce.Reduce, nil
}

// TaskError is returned when a task fails inside a unit.
type TaskError struct {
	Name string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("pool: task %q failed: %v", e.Name, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// StartupError is returned by every AddTask call of a pool whose units
// could not be initialized.
type StartupError struct {
	Unit int
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("pool: unit %d failed to start: %v", e.Unit, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Stats is a snapshot of the pool counters.
type Stats struct {
	Size      int
	Busy      int
	Queued    int
	Submitted uint64
	Completed uint64
	Failed    uint64
}

// Option configures a Pool.
type Option func(*Pool)

// WithSize sets the number of units. Values below 1 are raised to 1.
func WithSize(n int) Option {
	return func(p *Pool) {
		p.size = n
	}
}

// WithQueue sets the capacity of the admission queue.
func WithQueue(n int) Option {
	return func(p *Pool) {
		p.queue = n
	}
}

// WithFactory sets the reducer factory used to initialize the units.
func WithFactory(f Factory) Option {
	return func(p *Pool) {
		p.factory = f
	}
}

// WithLogger sets a dedicated logger for the pool.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

type outcome struct {
	result reduce.Result
	err    error
}

type job struct {
	task reduce.Task
	res  chan outcome
}

// Pool is a fixed set of worker units. It is safe for concurrent use.
type Pool struct {
	size    int
	queue   int
	factory Factory
	logger  *slog.Logger

	jobs chan *job
	quit chan struct{}
	wg   sync.WaitGroup

	startOnce sync.Once
	startErr  error
	closeOnce sync.Once

	busy      atomic.Int64
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// New creates a pool. The units are started lazily by the first AddTask.
func New(opts ...Option) *Pool {
	p := &Pool{
		size:    DefaultSize,
		queue:   DefaultQueue,
		factory: DefaultFactory,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.size < 1 {
		p.size = 1
	}
	if p.queue < 0 {
		p.queue = 0
	}
	if p.factory == nil {
		p.factory = DefaultFactory
	}
	p.jobs = make(chan *job, p.queue)
	p.quit = make(chan struct{})
	return p
}

// Size applies the sizing policy: a platform reporting at most one
// hardware thread gets exactly one unit, otherwise the configured size
// is used, with a minimum of one.
func Size(reported, configured int) int {
	if reported <= 1 {
		return 1
	}
	if configured < 1 {
		return 1
	}
	return configured
}

// Cap returns the number of units.
func (p *Pool) Cap() int { return p.size }

func (p *Pool) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return Logger()
}

// start initializes every unit once. If any factory fails no unit is
// started and the error is kept for all later submissions.
func (p *Pool) start() error {
	p.startOnce.Do(func() {
		reducers := make([]Reducer, p.size)
		for i := range reducers {
			r, err := p.factory(i)
			if err == nil && r == nil {
				err = errors.New("factory returned a nil reducer")
			}
			if err != nil {
				p.startErr = &StartupError{Unit: i, Err: err}
				p.log().Error("pool startup failed", "unit", i, "err", err)
				return
			}
			reducers[i] = r
		}

		p.wg.Add(p.size)
		for i, r := range reducers {
			go p.unit(i, r)
		}
		p.log().Info("pool started", "size", p.size, "queue", p.queue)
	})
	return p.startErr
}

// AddTask queues a task and waits for its result. The context bounds the
// wait only: a task which already reached a unit runs to completion and
// its result is dropped.
func (p *Pool) AddTask(ctx context.Context, t reduce.Task) (reduce.Result, error) {
	if err := p.start(); err != nil {
		return reduce.Result{}, err
	}

	select {
	case <-p.quit:
		return reduce.Result{}, ErrClosed
	default:
	}

	j := &job{task: t, res: make(chan outcome, 1)}
	select {
	case p.jobs <- j:
		p.submitted.Add(1)
	case <-p.quit:
		return reduce.Result{}, ErrClosed
	case <-ctx.Done():
		return reduce.Result{}, ctx.Err()
	}

	select {
	case out := <-j.res:
		return out.result, out.err
	case <-ctx.Done():
		return reduce.Result{}, ctx.Err()
	case <-p.quit:
		select {
		case out := <-j.res:
			return out.result, out.err
		default:
			return reduce.Result{}, ErrClosed
		}
	}
}

// unit consumes the job queue until the pool is closed.
func (p *Pool) unit(id int, r Reducer) {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			return
		case j := <-p.jobs:
			out, panicked := p.run(id, r, j.task)
			if out.err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}
			j.res <- out

			if panicked {
				r = p.recycle(id, r)
			}
		}
	}
}

func (p *Pool) run(id int, r Reducer, t reduce.Task) (out outcome, panicked bool) {
	p.busy.Add(1)
	defer p.busy.Add(-1)

	defer func() {
		if rec := recover(); rec != nil {
			panicked = true
			err := errors.Errorf("unit %d panicked: %v", id, rec)
			p.log().Warn("task panicked", "unit", id, "task", t.Name, "err", err)
			out = outcome{err: &TaskError{Name: t.Name, Err: err}}
		}
	}()

	p.log().Debug("task started", "unit", id, "task", t.Name, "vw", t.VW, "vh", t.VH)
	res, err := r(t)
	if err != nil {
		return outcome{err: &TaskError{Name: t.Name, Err: errors.WithMessagef(err, "unit %d", id)}}, false
	}
	return outcome{result: res}, false
}

// recycle replaces the reducer of a unit which panicked. The old reducer
// is kept when the factory fails.
func (p *Pool) recycle(id int, old Reducer) Reducer {
	r, err := p.factory(id)
	if err != nil || r == nil {
		p.log().Error("unit recycle failed, keeping previous reducer", "unit", id, "err", err)
		return old
	}
	p.log().Debug("unit recycled", "unit", id)
	return r
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Size:      p.size,
		Busy:      int(p.busy.Load()),
		Queued:    len(p.jobs),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Close stops the units after their current task. Tasks still waiting in
// the queue are rejected with ErrClosed.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
		p.wg.Wait()
	})
}

var (
	defaultMu   sync.Mutex
	defaultPool *Pool
)

// Init configures the process-wide pool. Only the first call has any
// effect; later calls return the pool created by the first one. The
// configured size is passed through the Size policy using the number of
// CPUs reported by the runtime.
func Init(opts ...Option) *Pool {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultPool == nil {
		defaultPool = newShared(runtime.NumCPU(), opts...)
	}
	return defaultPool
}

// Default returns the process-wide pool, creating it with the default
// options if Init was never called.
func Default() *Pool {
	return Init()
}

func newShared(reported int, opts ...Option) *Pool {
	p := New(opts...)
	p.size = Size(reported, p.size)
	return p
}
