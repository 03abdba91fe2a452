package pipeline

import (
	"context"
	"sync"
)

// Future is the one-shot result channel every static and dynamic task
// publishes through (spec §9, "One-shot result channels"): exactly one
// value or one error, visible to every reader, fulfilled exactly once.
// It is exported so executors outside this package (pkg/executor) can
// mint one for a dynamically emitted task and fulfill it when that task
// completes.
type Future struct {
	done chan struct{}
	once sync.Once
	val  any
	err  error
}

// NewFuture creates an unfulfilled Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Fulfill publishes val/err. Only the first call takes effect.
func (f *Future) Fulfill(val any, err error) {
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
	})
}

// Get blocks until Fulfill has been called.
func (f *Future) Get() (any, error) {
	<-f.done
	return f.val, f.err
}

// GetContext is Get with cancellation.
func (f *Future) GetContext(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready reports whether Fulfill has already been called, without blocking.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// TaskResult is a typed, shareable future over one task's output (spec §3,
// "Pipeline graph": "a task result slot ... delivered via a one-shot result
// channel/future"). Every holder — sibling children, the caller, a
// dynamically emitted task's parent — blocks on the same underlying Future
// until it is fulfilled exactly once.
type TaskResult[O any] struct {
	f *Future
}

// Get blocks until the task completes, returning its output or the error
// it (or an ancestor) failed with.
func (r *TaskResult[O]) Get() (O, error) {
	v, err := r.f.Get()
	return coerce[O](v, err)
}

// GetContext is Get with cancellation: it returns ctx.Err() if ctx is done
// before the result is ready.
func (r *TaskResult[O]) GetContext(ctx context.Context) (O, error) {
	v, err := r.f.GetContext(ctx)
	return coerce[O](v, err)
}

// Ready reports whether the result is already available, without blocking.
func (r *TaskResult[O]) Ready() bool { return r.f.Ready() }

func coerce[O any](v any, err error) (O, error) {
	if err != nil {
		var zero O
		return zero, err
	}
	out, _ := v.(O)
	return out, nil
}
