package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Teardown releases an instance. It is called at most once.
type Teardown func(ctx context.Context) error

// Factory builds the instance for a key. A nil teardown means the instance
// needs no cleanup.
type Factory func(ctx context.Context) (instance any, teardown Teardown, err error)

type entry struct {
	key      Key
	instance any
	teardown Teardown
	seq      uint64
}

// Registry holds resolved instances. Reads of a resolved key take no lock;
// construction is deduplicated per key.
type Registry struct {
	logger *slog.Logger

	entries sync.Map // Key -> *entry
	sf      singleflight.Group
	seq     atomic.Uint64
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{logger: logger}
}

// Resolve returns the instance for key, building it with factory on first use.
// Concurrent callers for the same unresolved key share one factory call and
// its result or failure.
func (r *Registry) Resolve(ctx context.Context, key Key, factory Factory) (any, error) {
	if e, ok := r.load(key); ok {
		return e.instance, nil
	}
	if factory == nil {
		return nil, fmt.Errorf("resolve %s: factory is nil", key.String())
	}

	v, err, _ := r.sf.Do(key.flightKey(), func() (any, error) {
		if e, ok := r.load(key); ok {
			return e.instance, nil
		}

		instance, teardown, err := build(ctx, factory)
		if err != nil {
			r.logger.Warn("resource construction failed", "key", key.String(), "error", err)
			return nil, ConstructionError{Key: key, Err: err}
		}

		e := &entry{
			key:      key,
			instance: instance,
			teardown: teardown,
			seq:      r.seq.Add(1),
		}
		r.entries.Store(key, e)
		r.logger.Info("resource constructed", "key", key.String(), "type", fmt.Sprintf("%T", instance))
		return instance, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func build(ctx context.Context, factory Factory) (instance any, teardown Teardown, err error) {
	defer func() {
		if p := recover(); p != nil {
			instance, teardown, err = nil, nil, fmt.Errorf("factory panic: %v", p)
		}
	}()
	return factory(ctx)
}

// ResolveAs is a typed wrapper around Resolve.
func ResolveAs[T any](ctx context.Context, r *Registry, key Key, factory Factory) (T, error) {
	var zero T
	v, err := r.Resolve(ctx, key, factory)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, TypeMismatchError{
			Key:      key,
			Expected: reflect.TypeFor[T]().String(),
			Actual:   fmt.Sprintf("%T", v),
		}
	}
	return typed, nil
}

// Lookup returns a resolved instance without building it.
func (r *Registry) Lookup(key Key) (any, bool) {
	e, ok := r.load(key)
	if !ok {
		return nil, false
	}
	return e.instance, true
}

// Keys returns the resolved keys in construction order.
func (r *Registry) Keys() []Key {
	entries := r.snapshot()
	keys := make([]Key, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys
}

// Len returns the number of resolved keys.
func (r *Registry) Len() int {
	n := 0
	r.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Release tears down the instance for key and forgets it. A later Resolve
// builds a new instance. Releasing an unresolved key is a no-op.
func (r *Registry) Release(ctx context.Context, key Key) error {
	v, ok := r.entries.LoadAndDelete(key)
	if !ok {
		return nil
	}
	return r.teardown(ctx, v.(*entry))
}

// ReleaseAll tears down every instance, newest first. Instances a factory
// resolved while building are therefore released after the instance that
// depends on them. Teardown errors are joined.
func (r *Registry) ReleaseAll(ctx context.Context) error {
	entries := r.snapshot()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !r.entries.CompareAndDelete(e.key, e) {
			continue
		}
		if err := r.teardown(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) teardown(ctx context.Context, e *entry) error {
	if e.teardown == nil {
		r.logger.Info("resource released", "key", e.key.String())
		return nil
	}
	if err := e.teardown(ctx); err != nil {
		r.logger.Error("resource teardown failed", "key", e.key.String(), "error", err)
		return fmt.Errorf("release resource %s: %w", e.key.String(), err)
	}
	r.logger.Info("resource released", "key", e.key.String())
	return nil
}

func (r *Registry) load(key Key) (*entry, bool) {
	v, ok := r.entries.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

func (r *Registry) snapshot() []*entry {
	var entries []*entry
	r.entries.Range(func(_, v any) bool {
		entries = append(entries, v.(*entry))
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return entries
}
