package sim

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRunnerStopped is returned by Submit once the runner loop has exited.
var ErrRunnerStopped = errors.New("runner stopped")

// Runner owns an Engine on a single goroutine. Ticks and input events from
// other goroutines are queued and applied in between ticks; the latest
// snapshot is published for concurrent readers.
type Runner struct {
	engine *Engine

	ticks   chan time.Duration
	inputs  chan inputRequest
	stopped chan struct{}
	once    sync.Once

	mu     sync.RWMutex
	latest Snapshot

	sink func(Snapshot)
}

type inputRequest struct {
	ctx  context.Context
	ev   InputEvent
	done chan error
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithSnapshotSink registers fn to receive every tick's snapshot on the
// runner goroutine.
func WithSnapshotSink(fn func(Snapshot)) RunnerOption {
	return func(r *Runner) { r.sink = fn }
}

// NewRunner wraps engine. The engine must not be used directly afterwards.
func NewRunner(engine *Engine, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:  engine,
		ticks:   make(chan time.Duration),
		inputs:  make(chan inputRequest),
		stopped: make(chan struct{}),
		latest:  engine.Snapshot(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tick hands a step of dt to the runner loop and blocks until the loop
// accepts it. Its signature matches timectrl.TickFunc.
func (r *Runner) Tick(_ time.Time, dt time.Duration) {
	select {
	case r.ticks <- dt:
	case <-r.stopped:
	}
}

// Submit queues an input event and waits until the engine has applied it.
func (r *Runner) Submit(ctx context.Context, ev InputEvent) error {
	req := inputRequest{ctx: ctx, ev: ev, done: make(chan error, 1)}
	select {
	case r.inputs <- req:
	case <-r.stopped:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the most recently published snapshot.
func (r *Runner) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Run drives the engine until ctx is done. It must be called once.
func (r *Runner) Run(ctx context.Context) error {
	defer r.once.Do(func() { close(r.stopped) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case dt := <-r.ticks:
			snap := r.engine.Advance(ctx, dt)
			r.publish(snap)
			if r.sink != nil {
				r.sink(snap)
			}
		case req := <-r.inputs:
			err := r.engine.HandleInput(req.ctx, req.ev)
			r.publish(r.engine.Snapshot())
			req.done <- err
		}
	}
}

func (r *Runner) publish(snap Snapshot) {
	r.mu.Lock()
	r.latest = snap
	r.mu.Unlock()
}
