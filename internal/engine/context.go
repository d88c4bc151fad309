package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/seantiz/graphkeep/internal/store"
)

// task is one queued unit of work. execute reports whether the worker should
// stop after it.
type task interface {
	execute(s store.Store) (stop bool)
}

type job[R any] struct {
	fut *Future[R]
	fn  func(store.Store) (R, error)
}

func (j *job[R]) execute(s store.Store) bool {
	if !j.fut.begin() {
		// Cancelled while queued.
		return false
	}
	v, err := call(j.fn, s)
	j.fut.complete(v, err)
	return false
}

func call[R any](fn func(store.Store) (R, error), s store.Store) (v R, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero R
			v, err = zero, &TaskError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	v, err = fn(s)
	if err != nil {
		return v, &TaskError{Err: err}
	}
	return v, nil
}

// ExecutionContext runs tasks against one store, one at a time, in submission
// order. It is safe for concurrent use.
type ExecutionContext struct {
	store  store.Store
	logger *slog.Logger

	mu       sync.Mutex
	queue    []task
	started  bool
	closing  bool
	shutdown *Future[store.Store]

	wake    chan struct{}
	stopped chan struct{}
}

// NewExecutionContext creates a context bound to s. No worker runs until Start.
func NewExecutionContext(s store.Store, logger *slog.Logger) *ExecutionContext {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ExecutionContext{
		store:   s,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Start launches the worker and queues the store start as its first task.
// Calling Start twice returns a future failed with ErrAlreadyStarted.
func (c *ExecutionContext) Start(ctx context.Context) *Future[store.Store] {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return resolvedFuture[store.Store](nil, ErrContextClosed)
	}
	if c.started {
		c.mu.Unlock()
		return resolvedFuture[store.Store](nil, ErrAlreadyStarted)
	}
	c.started = true
	j := &job[store.Store]{
		fut: newFuture[store.Store](),
		fn: func(s store.Store) (store.Store, error) {
			if err := s.Start(ctx); err != nil {
				return nil, fmt.Errorf("start store: %w", err)
			}
			return s, nil
		},
	}
	c.queue = append(c.queue, j)
	c.mu.Unlock()

	go c.run()
	c.signal()
	c.logger.Info("execution context started")
	return j.fut
}

// Shutdown stops accepting tasks, lets the worker finish everything queued
// before the call, then shuts the store down and stops the worker. Every call
// returns the same future, which cannot be cancelled.
func (c *ExecutionContext) Shutdown(ctx context.Context) *Future[store.Store] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown != nil {
		return c.shutdown
	}
	c.closing = true

	if !c.started {
		close(c.stopped)
		c.shutdown = resolvedFuture(c.store, nil)
		return c.shutdown
	}

	j := &job[store.Store]{
		fut: newFuture[store.Store](),
		fn: func(s store.Store) (store.Store, error) {
			if err := s.Shutdown(ctx); err != nil {
				return s, fmt.Errorf("shutdown store: %w", err)
			}
			return s, nil
		},
	}
	j.fut.begin()
	c.queue = append(c.queue, shutdownJob{j})
	c.shutdown = j.fut
	c.signal()
	c.logger.Info("execution context shutting down", "pending", len(c.queue)-1)
	return c.shutdown
}

// shutdownJob always runs and always stops the worker. Its future is marked
// running when queued, so Cancel cannot withdraw it.
type shutdownJob struct {
	*job[store.Store]
}

func (j shutdownJob) execute(s store.Store) bool {
	v, err := call(j.fn, s)
	j.fut.complete(v, err)
	return true
}

// Stopped is closed once the worker has exited.
func (c *ExecutionContext) Stopped() <-chan struct{} {
	return c.stopped
}

// Pending returns the number of queued tasks, including cancelled ones not
// yet skipped by the worker.
func (c *ExecutionContext) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// IsRunning reports whether the underlying store is running. It does not go
// through the queue.
func (c *ExecutionContext) IsRunning() bool {
	return c.store.IsRunning()
}

func (c *ExecutionContext) enqueue(t task) error {
	c.mu.Lock()
	switch {
	case c.closing:
		c.mu.Unlock()
		return ErrContextClosed
	case !c.started:
		c.mu.Unlock()
		return ErrNotStarted
	}
	c.queue = append(c.queue, t)
	c.mu.Unlock()

	c.signal()
	return nil
}

func (c *ExecutionContext) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *ExecutionContext) run() {
	defer close(c.stopped)
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.mu.Unlock()
			<-c.wake
			continue
		}
		t := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()

		if t.execute(c.store) {
			c.logger.Info("execution context stopped")
			return
		}
	}
}

// Submit queues fn for execution and returns its future. It never blocks on
// other tasks. A task error completes the future with a *TaskError and leaves
// the context usable.
func Submit[R any](c *ExecutionContext, fn func(store.Store) (R, error)) *Future[R] {
	j := &job[R]{fut: newFuture[R](), fn: fn}
	if err := c.enqueue(j); err != nil {
		var zero R
		return resolvedFuture(zero, err)
	}
	return j.fut
}

// Execute queues a task that produces no value.
func (c *ExecutionContext) Execute(fn func(store.Store) error) *Future[struct{}] {
	return Submit(c, func(s store.Store) (struct{}, error) {
		return struct{}{}, fn(s)
	})
}

// Root returns the current root sentinel.
func (c *ExecutionContext) Root() *Future[store.Root] {
	return Submit(c, func(s store.Store) (store.Root, error) {
		return s.Root(), nil
	})
}

// SetRoot replaces the root object.
func (c *ExecutionContext) SetRoot(v any) *Future[any] {
	return Submit(c, func(s store.Store) (any, error) {
		return s.SetRoot(v), nil
	})
}

// Store persists v and returns its object id.
func (c *ExecutionContext) Store(ctx context.Context, v any) *Future[int64] {
	return Submit(c, func(s store.Store) (int64, error) {
		return s.Store(ctx, v)
	})
}

// StoreRoot persists the root object and returns its id.
func (c *ExecutionContext) StoreRoot(ctx context.Context) *Future[int64] {
	return Submit(c, func(s store.Store) (int64, error) {
		return s.StoreRoot(ctx)
	})
}

// Statistics reads store statistics on the worker and waits for the result.
func (c *ExecutionContext) Statistics(ctx context.Context) (store.Statistics, error) {
	return Submit(c, func(s store.Store) (store.Statistics, error) {
		return s.Statistics(ctx)
	}).Await(ctx)
}

// RootAs returns the root as T, decoding a persisted root on first access.
// The future fails with store.ErrEmptyRoot when no root is set.
func RootAs[T any](c *ExecutionContext) *Future[T] {
	return Submit(c, func(s store.Store) (T, error) {
		v, ok, err := LoadRoot[T](s)
		if err != nil {
			return v, err
		}
		if !ok {
			return v, store.ErrEmptyRoot
		}
		return v, nil
	})
}

// LoadRoot is for use inside task bodies. It returns the root as T, and
// installs the decoded value as the live root when the root was still encoded.
func LoadRoot[T any](s store.Store) (T, bool, error) {
	root := s.Root()
	v, ok, err := store.RootAs[T](root)
	if err != nil || !ok {
		return v, ok, err
	}
	if root.Encoded() {
		s.SetRoot(v)
	}
	return v, true, nil
}
