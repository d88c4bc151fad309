package store

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Root is the root object of a graph. The zero value is the empty root.
//
// A root loaded from disk stays in its encoded form until RootAs decodes it
// into the caller's type.
type Root struct {
	value any
	raw   json.RawMessage
}

// EmptyRoot returns the root of an uninitialized graph.
func EmptyRoot() Root {
	return Root{}
}

// RootOf wraps a live root object. A nil v yields the empty root.
func RootOf(v any) Root {
	if isNil(v) {
		return Root{}
	}
	return Root{value: v}
}

func encodedRoot(raw []byte) Root {
	return Root{raw: append(json.RawMessage(nil), raw...)}
}

// IsEmpty reports whether no root has been set or persisted.
func (r Root) IsEmpty() bool {
	return r.value == nil && len(r.raw) == 0
}

// Value returns the live root object, or nil when the root is empty or still
// encoded.
func (r Root) Value() any {
	return r.value
}

// Encoded reports whether the root was loaded from disk and not yet decoded.
func (r Root) Encoded() bool {
	return r.value == nil && len(r.raw) > 0
}

// RootTypeError is returned when the root does not hold the requested type.
type RootTypeError struct {
	Expected string
	Actual   string
}

func (e *RootTypeError) Error() string {
	return fmt.Sprintf("root type mismatch: expected=%s actual=%s", e.Expected, e.Actual)
}

// RootAs returns the root as T. ok is false when the root is empty. An encoded
// root is decoded into a fresh T.
func RootAs[T any](r Root) (v T, ok bool, err error) {
	if r.IsEmpty() {
		return v, false, nil
	}
	if r.value != nil {
		typed, match := r.value.(T)
		if !match {
			return v, false, &RootTypeError{
				Expected: reflect.TypeFor[T]().String(),
				Actual:   fmt.Sprintf("%T", r.value),
			}
		}
		return typed, true, nil
	}

	rt := reflect.TypeFor[T]()
	if rt.Kind() == reflect.Pointer {
		ptr := reflect.New(rt.Elem())
		if err := json.Unmarshal(r.raw, ptr.Interface()); err != nil {
			return v, false, fmt.Errorf("decode root as %s: %w", rt, err)
		}
		return ptr.Interface().(T), true, nil
	}
	if err := json.Unmarshal(r.raw, &v); err != nil {
		return v, false, fmt.Errorf("decode root as %s: %w", rt, err)
	}
	return v, true, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// identity returns a stable address for reference values so that storing the
// same object twice updates one record.
func identity(v any) (uintptr, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		if rv.IsNil() {
			return 0, false
		}
		return rv.Pointer(), true
	}
	return 0, false
}
