package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrContextClosed is returned for tasks submitted after Shutdown.
	ErrContextClosed = errors.New("execution context closed")

	// ErrNotStarted is returned for tasks submitted before Start.
	ErrNotStarted = errors.New("execution context not started")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("execution context already started")
)

// TaskError wraps the error or panic raised by a task body.
type TaskError struct {
	Err error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task failed: %v", e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
