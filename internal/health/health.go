// Package health reports whether a store is running.
package health

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

const (
	DefaultName    = "graphkeep-store"
	DefaultTimeout = 10 * time.Second
)

// Status is the outcome of a check.
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// Data keys set on a failed probe.
const (
	DataErrorMessage = "ErrorMessage"
	DataErrorClass   = "ErrorClass"
)

// TimeoutError is reported when the store does not answer in time.
type TimeoutError struct {
	Timeout time.Duration
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("store did not report its state within %s", e.Timeout)
}

// Response is the result of one check.
type Response struct {
	Name   string            `json:"name"`
	Status Status            `json:"status"`
	Data   map[string]string `json:"data,omitempty"`
}

// Runner is the part of a store the probe needs.
type Runner interface {
	IsRunning() bool
}

// Option configures a StoreCheck.
type Option func(*StoreCheck)

// WithName sets the name reported in responses.
func WithName(name string) Option {
	return func(c *StoreCheck) { c.name = name }
}

// WithTimeout bounds how long a check waits for the store.
func WithTimeout(d time.Duration) Option {
	return func(c *StoreCheck) { c.timeout = d }
}

// StoreCheck probes a store's running state with a bounded wait.
type StoreCheck struct {
	store   Runner
	name    string
	timeout time.Duration
}

// NewStoreCheck creates a check for s.
func NewStoreCheck(s Runner, opts ...Option) *StoreCheck {
	c := &StoreCheck{
		store:   s,
		name:    DefaultName,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the check name.
func (c *StoreCheck) Name() string { return c.name }

// Check asks the store whether it is running. The store is queried on its
// own goroutine; a timeout, a cancelled ctx or a panic reports DOWN with the
// error message and error type in Data.
func (c *StoreCheck) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		running bool
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("%v", r)
				}
				done <- result{err: err}
			}
		}()
		done <- result{running: c.store.IsRunning()}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			res.err = TimeoutError{Timeout: c.timeout}
		} else {
			res.err = ctx.Err()
		}
	}

	if res.err != nil {
		return Response{
			Name:   c.name,
			Status: StatusDown,
			Data: map[string]string{
				DataErrorMessage: res.err.Error(),
				DataErrorClass:   errorClass(res.err),
			},
		}
	}
	if !res.running {
		return Response{Name: c.name, Status: StatusDown}
	}
	return Response{Name: c.name, Status: StatusUp}
}

func errorClass(err error) string {
	t := reflect.TypeOf(err)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}
