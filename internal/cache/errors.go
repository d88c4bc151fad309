package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache is closed")

	// ErrNilKey is returned when a nil key is used.
	ErrNilKey = errors.New("cache key is nil")

	// ErrNilValue is returned when a nil value is put.
	ErrNilValue = errors.New("cache value is nil")
)

// ConfigMismatchError means a declared type does not match the type in use.
// The rejected operation leaves the cache unchanged.
type ConfigMismatchError struct {
	Cache    string
	Field    string
	Expected string
	Actual   string
}

func (e ConfigMismatchError) Error() string {
	if e.Cache == "" {
		return fmt.Sprintf("cache config type mismatch for %s: expected=%s actual=%s",
			e.Field, e.Expected, e.Actual)
	}
	return fmt.Sprintf("cache %q type mismatch for %s: expected=%s actual=%s",
		e.Cache, e.Field, e.Expected, e.Actual)
}

// UnknownFactoryError means a configuration names a factory that was not
// registered.
type UnknownFactoryError struct {
	Option string
	Name   string
}

func (e UnknownFactoryError) Error() string {
	return fmt.Sprintf("cache option %s: unknown factory %q", e.Option, e.Name)
}
