package cache

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu      sync.Mutex
	writes  map[any]any
	deletes []any
	err     error
}

func (w *recordingWriter) Write(_ context.Context, key, value any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if w.writes == nil {
		w.writes = make(map[any]any)
	}
	w.writes[key] = value
	return nil
}

func (w *recordingWriter) Delete(_ context.Context, key any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.deletes = append(w.deletes, key)
	return nil
}

// keepNewest evicts all but the n newest entries.
type keepNewest int

func (n keepNewest) Evict(keys []any) []any {
	if len(keys) <= int(n) {
		return nil
	}
	return keys[:len(keys)-int(n)]
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache(t *testing.T, cfg Configuration) *Cache {
	t.Helper()
	c, err := New("test", cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutAndGet(t *testing.T) {
	c := newTestCache(t, NewConfiguration(intType, stringType))
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 1, "Hello"))
	v, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hello", v)

	_, ok, err = c.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutWrongValueTypeLeavesCacheUnchanged(t *testing.T) {
	c := newTestCache(t, NewConfiguration(intType, stringType))
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 1, "Hello"))

	err := c.Put(ctx, 1, 42)
	var mismatch ConfigMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, OptionValueType, mismatch.Field)
	assert.Equal(t, "string", mismatch.Expected)
	assert.Equal(t, "int", mismatch.Actual)

	err = c.Put(ctx, 2, 3.5)
	require.ErrorAs(t, err, &mismatch)

	v, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hello", v)
	assert.Equal(t, 1, c.Len())
}

func TestWrongKeyTypeRejected(t *testing.T) {
	c := newTestCache(t, NewConfiguration(intType, stringType))
	ctx := context.Background()

	var mismatch ConfigMismatchError
	require.ErrorAs(t, c.Put(ctx, "one", "Hello"), &mismatch)
	assert.Equal(t, OptionKeyType, mismatch.Field)

	_, _, err := c.Get(ctx, int64(1))
	require.ErrorAs(t, err, &mismatch)

	assert.ErrorIs(t, c.Put(ctx, nil, "x"), ErrNilKey)
	assert.ErrorIs(t, c.Put(ctx, 1, nil), ErrNilValue)
	assert.Equal(t, 0, c.Len())
}

func TestInterfaceValueType(t *testing.T) {
	cfg := NewConfiguration(stringType, reflect.TypeFor[error]())
	c := newTestCache(t, cfg)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "boom", errors.New("boom")))
	var mismatch ConfigMismatchError
	require.ErrorAs(t, c.Put(ctx, "str", "not an error"), &mismatch)
}

func TestUntypedCacheAcceptsAnything(t *testing.T) {
	c := newTestCache(t, NewConfiguration(nil, nil))
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 1, "a"))
	require.NoError(t, c.Put(ctx, "b", 2))
	assert.Error(t, c.Put(ctx, []int{1}, "slice keys are not comparable"))
	assert.Equal(t, 2, c.Len())
}

func TestRemoveAndClear(t *testing.T) {
	c := newTestCache(t, NewConfiguration(intType, stringType))
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 1, "a"))
	require.NoError(t, c.Put(ctx, 2, "b"))

	removed, err := c.Remove(ctx, 1)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = c.Remove(ctx, 1)
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Len())
}

func TestClosedCache(t *testing.T) {
	c, err := New("closing", NewConfiguration(intType, stringType), nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 1, "a"))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, c.IsClosed())

	_, _, err = c.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Put(ctx, 1, "b"), ErrClosed)
	_, err = c.Remove(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Clear(), ErrClosed)
}

func TestReadThrough(t *testing.T) {
	var loads int
	cfg := NewConfiguration(intType, stringType)
	cfg.ReadThrough = true
	cfg.StatisticsEnabled = true
	cfg.CacheLoaderFactory = func() Loader {
		return LoaderFunc(func(_ context.Context, key any) (any, bool, error) {
			loads++
			if key.(int) < 0 {
				return nil, false, nil
			}
			return "loaded", true, nil
		})
	}
	c := newTestCache(t, cfg)
	ctx := context.Background()

	v, ok, err := c.Get(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "loaded", v)

	v, ok, err = c.Get(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "loaded", v)
	assert.Equal(t, 1, loads, "second read should be served from the cache")

	_, ok, err = c.Get(ctx, -1)
	require.NoError(t, err)
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestReadThroughLoaderTypeChecked(t *testing.T) {
	cfg := NewConfiguration(intType, stringType)
	cfg.ReadThrough = true
	cfg.CacheLoaderFactory = func() Loader {
		return LoaderFunc(func(context.Context, any) (any, bool, error) { return 99, true, nil })
	}
	c := newTestCache(t, cfg)

	_, _, err := c.Get(context.Background(), 1)
	var mismatch ConfigMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 0, c.Len())
}

func TestWriteThrough(t *testing.T) {
	w := &recordingWriter{}
	cfg := NewConfiguration(intType, stringType)
	cfg.WriteThrough = true
	cfg.CacheWriterFactory = func() Writer { return w }
	c := newTestCache(t, cfg)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 1, "a"))
	_, err := c.Remove(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[any]any{1: "a"}, w.writes)
	assert.Equal(t, []any{1}, w.deletes)

	w.err = errors.New("disk full")
	err = c.Put(ctx, 2, "b")
	assert.ErrorIs(t, err, w.err)
	assert.Equal(t, 0, c.Len(), "failed write must not reach the cache")
}

type profile struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func TestStoreByValue(t *testing.T) {
	cfg := NewConfiguration(stringType, reflect.TypeFor[*profile]())
	cfg.StoreByValue = true
	c := newTestCache(t, cfg)
	ctx := context.Background()

	p := &profile{Name: "ada", Tags: []string{"a"}}
	require.NoError(t, c.Put(ctx, "ada", p))
	p.Tags[0] = "changed"

	v, ok, err := c.Get(ctx, "ada")
	require.NoError(t, err)
	require.True(t, ok)
	got := v.(*profile)
	assert.Equal(t, "a", got.Tags[0])
	assert.False(t, got == p)

	got.Name = "mutated"
	again, _, err := c.Get(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "ada", again.(*profile).Name)
}

func TestStoreByReference(t *testing.T) {
	c := newTestCache(t, NewConfiguration(stringType, reflect.TypeFor[*profile]()))
	ctx := context.Background()

	p := &profile{Name: "ada"}
	require.NoError(t, c.Put(ctx, "ada", p))
	v, _, err := c.Get(ctx, "ada")
	require.NoError(t, err)
	assert.True(t, v.(*profile) == p)
}

func TestExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var events []Event

	cfg := NewConfiguration(intType, stringType)
	cfg.ExpiryPolicy = AccessedExpiry(time.Minute)
	cfg.StatisticsEnabled = true
	cfg.ListenerConfigurations = []ListenerConfiguration{{
		Name: "record",
		New:  func() Listener { return func(e Event) { events = append(events, e) } },
	}}
	c := newTestCache(t, cfg)
	c.now = clock.Now
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 1, "a"))
	clock.Advance(50 * time.Second)
	_, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok, "entry should live within its lifetime")

	clock.Advance(50 * time.Second)
	_, ok, err = c.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok, "access should have extended the entry")

	clock.Advance(61 * time.Second)
	_, ok, err = c.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "entry should have expired")

	require.Len(t, events, 2)
	assert.Equal(t, EventCreated, events[0].Type)
	assert.Equal(t, EventExpired, events[1].Type)
	assert.Equal(t, "a", events[1].OldValue)
	assert.Equal(t, int64(1), c.Stats().Expirations)
}

func TestListenerEvents(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Event
	)
	cfg := NewConfiguration(intType, stringType)
	cfg.ListenerConfigurations = []ListenerConfiguration{
		{Name: "record", New: func() Listener {
			return func(e Event) {
				mu.Lock()
				events = append(events, e)
				mu.Unlock()
			}
		}},
		{Name: "faulty", New: func() Listener { return func(Event) { panic("listener bug") } }},
	}
	c := newTestCache(t, cfg)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 1, "a"))
	require.NoError(t, c.Put(ctx, 1, "b"))
	_, err := c.Remove(ctx, 1)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	assert.Equal(t, EventCreated, events[0].Type)
	assert.Equal(t, EventUpdated, events[1].Type)
	assert.Equal(t, "a", events[1].OldValue)
	assert.Equal(t, "b", events[1].Value)
	assert.Equal(t, EventRemoved, events[2].Type)
	assert.Equal(t, "test", events[2].Cache)
}

func TestEvictionManager(t *testing.T) {
	cfg := NewConfiguration(intType, stringType)
	cfg.StatisticsEnabled = true
	cfg.EvictionManagerFactory = func() EvictionManager { return keepNewest(2) }
	c := newTestCache(t, cfg)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, c.Put(ctx, i, "v"))
	}
	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, 1)
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, 4)
	assert.True(t, ok)
	assert.Equal(t, int64(2), c.Stats().Evictions)
}

func TestStatisticsDisabledByDefault(t *testing.T) {
	c := newTestCache(t, NewConfiguration(intType, stringType))
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 1, "a"))
	c.Get(ctx, 1)
	c.Get(ctx, 2)
	assert.Equal(t, Statistics{}, c.Stats())
}

func TestTypedCache(t *testing.T) {
	typed, err := NewTyped[int, string]("typed", NewConfiguration(nil, nil), nil)
	require.NoError(t, err)
	defer typed.Close()
	ctx := context.Background()

	require.NoError(t, typed.Put(ctx, 1, "Hello"))
	v, ok, err := typed.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hello", v)

	// The untyped view still enforces the declared types.
	var mismatch ConfigMismatchError
	require.ErrorAs(t, typed.Untyped().Put(ctx, 2, 42), &mismatch)
	assert.Equal(t, 1, typed.Len())

	_, err = Wrap[int, int](typed.Untyped())
	require.ErrorAs(t, err, &mismatch)
	again, err := Wrap[int, string](typed.Untyped())
	require.NoError(t, err)
	assert.Equal(t, "typed", again.Name())
}

func TestNonComparableKeyType(t *testing.T) {
	_, err := New("bad", NewConfiguration(reflect.TypeFor[[]byte](), stringType), nil)
	assert.Error(t, err)
}
