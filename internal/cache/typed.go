package cache

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
)

// Typed is a Cache with compile-time key and value types.
type Typed[K comparable, V any] struct {
	c *Cache
}

// NewTyped creates a typed cache. The key and value types of cfg are set from
// K and V.
func NewTyped[K comparable, V any](name string, cfg Configuration, logger *slog.Logger) (*Typed[K, V], error) {
	cfg.KeyType = reflect.TypeFor[K]()
	cfg.ValueType = reflect.TypeFor[V]()
	c, err := New(name, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Typed[K, V]{c: c}, nil
}

// Wrap returns a typed view of c. The configured types of c must be K and V.
func Wrap[K comparable, V any](c *Cache) (*Typed[K, V], error) {
	kt, vt := reflect.TypeFor[K](), reflect.TypeFor[V]()
	if c.cfg.KeyType != kt {
		return nil, ConfigMismatchError{Cache: c.name, Field: OptionKeyType, Expected: typeName(c.cfg.KeyType), Actual: kt.String()}
	}
	if c.cfg.ValueType != vt {
		return nil, ConfigMismatchError{Cache: c.name, Field: OptionValueType, Expected: typeName(c.cfg.ValueType), Actual: vt.String()}
	}
	return &Typed[K, V]{c: c}, nil
}

// Get returns the value for key.
func (t *Typed[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V
	v, ok, err := t.c.Get(ctx, key)
	if err != nil || !ok {
		return zero, ok, err
	}
	typed, match := v.(V)
	if !match {
		return zero, false, fmt.Errorf("cache %q: stored value has type %T", t.c.name, v)
	}
	return typed, true, nil
}

// Put stores value under key.
func (t *Typed[K, V]) Put(ctx context.Context, key K, value V) error {
	return t.c.Put(ctx, key, value)
}

// Remove deletes key and reports whether it was present.
func (t *Typed[K, V]) Remove(ctx context.Context, key K) (bool, error) {
	return t.c.Remove(ctx, key)
}

func (t *Typed[K, V]) Clear() error { return t.c.Clear() }
func (t *Typed[K, V]) Close() error { return t.c.Close() }
func (t *Typed[K, V]) Name() string { return t.c.Name() }
func (t *Typed[K, V]) Len() int { return t.c.Len() }
func (t *Typed[K, V]) Stats() Statistics { return t.c.Stats() }
func (t *Typed[K, V]) Untyped() *Cache { return t.c }
