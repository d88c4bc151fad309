package registry

import "fmt"

// ConstructionError means a factory failed to build the instance for Key.
// The key stays unresolved and the next Resolve retries.
type ConstructionError struct {
	Key Key
	Err error
}

func (e ConstructionError) Error() string {
	return fmt.Sprintf("construct resource %s: %v", e.Key.String(), e.Err)
}

func (e ConstructionError) Unwrap() error {
	return e.Err
}

// TypeMismatchError means ResolveAs[T] could not use the resolved instance as T.
type TypeMismatchError struct {
	Key      Key
	Expected string
	Actual   string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("resource type mismatch for %s: expected=%s actual=%s",
		e.Key.String(), e.Expected, e.Actual)
}
