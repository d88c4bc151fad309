package engine

import (
	"context"
	"sync/atomic"
)

const (
	statePending int32 = iota
	stateRunning
	stateDone
	stateCancelled
)

// Future is the pending result of a task.
type Future[T any] struct {
	done  chan struct{}
	state atomic.Int32
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func resolvedFuture[T any](v T, err error) *Future[T] {
	f := newFuture[T]()
	f.state.Store(stateRunning)
	f.complete(v, err)
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the task completes or ctx is done. Giving up on ctx does
// not cancel the task.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel withdraws the task if the worker has not picked it up yet. It reports
// whether the task was withdrawn; a running or finished task is unaffected.
func (f *Future[T]) Cancel() bool {
	if !f.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	f.err = context.Canceled
	close(f.done)
	return true
}

// Cancelled reports whether Cancel withdrew the task.
func (f *Future[T]) Cancelled() bool {
	return f.state.Load() == stateCancelled
}

func (f *Future[T]) begin() bool {
	return f.state.CompareAndSwap(statePending, stateRunning)
}

func (f *Future[T]) complete(v T, err error) {
	f.value = v
	f.err = err
	f.state.Store(stateDone)
	close(f.done)
}
