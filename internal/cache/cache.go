package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics are the counters of a cache with statistics enabled.
type Statistics struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Puts        int64 `json:"puts"`
	Removals    int64 `json:"removals"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}

type entry struct {
	value   any
	expires time.Time
	seq     uint64
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

type counters struct {
	hits, misses, puts, removals, evictions, expirations atomic.Int64
}

// Cache is an in-memory key/value cache checked against its configured key and
// value types. It is safe for concurrent use.
type Cache struct {
	name      string
	cfg       Configuration
	logger    *slog.Logger
	loader    Loader
	writer    Writer
	eviction  EvictionManager
	listeners []Listener
	now       func() time.Time

	mu      sync.Mutex
	entries map[any]*entry
	seq     uint64
	closed  bool

	stats counters
}

// New creates a cache from cfg.
func New(name string, cfg Configuration, logger *slog.Logger) (*Cache, error) {
	if cfg.KeyType != nil && !cfg.KeyType.Comparable() {
		return nil, fmt.Errorf("cache %q: key type %s is not comparable", name, cfg.KeyType)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Cache{
		name:     name,
		cfg:      cfg,
		logger:   logger,
		eviction: noEviction{},
		now:      time.Now,
		entries:  make(map[any]*entry),
	}
	if cfg.EvictionManagerFactory != nil {
		c.eviction = cfg.EvictionManagerFactory()
	}
	if cfg.CacheLoaderFactory != nil {
		c.loader = cfg.CacheLoaderFactory()
	}
	if cfg.CacheWriterFactory != nil {
		c.writer = cfg.CacheWriterFactory()
	}
	for _, lc := range cfg.ListenerConfigurations {
		if lc.New != nil {
			c.listeners = append(c.listeners, lc.New())
		}
	}

	logger.Info("cache created",
		"cache", name,
		"key_type", typeName(cfg.KeyType),
		"value_type", typeName(cfg.ValueType),
		"statistics", cfg.StatisticsEnabled,
		"read_through", cfg.ReadThrough,
		"write_through", cfg.WriteThrough,
	)
	return c, nil
}

// Name returns the cache name.
func (c *Cache) Name() string { return c.name }

// Configuration returns the configuration the cache was built with.
func (c *Cache) Configuration() Configuration { return c.cfg }

// Get returns the value for key. On a miss a read-through cache asks its
// loader and keeps what it finds.
func (c *Cache) Get(ctx context.Context, key any) (any, bool, error) {
	if err := c.checkKey(key); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false, ErrClosed
	}
	now := c.now()
	e, events := c.live(key, now)
	if e != nil {
		if d := c.cfg.ExpiryPolicy.Access; d > 0 {
			e.expires = now.Add(d)
		}
		v := e.value
		c.mu.Unlock()
		c.count(&c.stats.hits)
		c.dispatch(events)
		out, err := c.copyOut(v)
		return out, err == nil, err
	}
	c.mu.Unlock()
	c.count(&c.stats.misses)
	c.dispatch(events)

	if !c.cfg.ReadThrough || c.loader == nil {
		return nil, false, nil
	}
	return c.load(ctx, key)
}

func (c *Cache) load(ctx context.Context, key any) (any, bool, error) {
	v, found, err := c.loader.Load(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("cache %q: load %v: %w", c.name, key, err)
	}
	if !found {
		return nil, false, nil
	}
	if err := c.checkValue(v); err != nil {
		return nil, false, err
	}
	stored, err := c.copyIn(v)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false, ErrClosed
	}
	now := c.now()
	var events []Event
	if e, evs := c.live(key, now); e != nil {
		// Another caller filled the key while the loader ran.
		stored = e.value
		events = evs
	} else {
		events = append(evs, c.insert(key, stored, now))
	}
	c.mu.Unlock()

	c.dispatch(events)
	out, err := c.copyOut(stored)
	return out, err == nil, err
}

// Put stores value under key. A value of the wrong type is rejected with
// ConfigMismatchError and the cache is left unchanged. A write-through cache
// writes the value first and fails the put if the writer fails.
func (c *Cache) Put(ctx context.Context, key, value any) error {
	if err := c.checkKey(key); err != nil {
		return err
	}
	if err := c.checkValue(value); err != nil {
		return err
	}
	if c.isClosed() {
		return ErrClosed
	}
	stored, err := c.copyIn(value)
	if err != nil {
		return err
	}
	if c.cfg.WriteThrough && c.writer != nil {
		if err := c.writer.Write(ctx, key, value); err != nil {
			return fmt.Errorf("cache %q: write %v: %w", c.name, key, err)
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	now := c.now()
	e, events := c.live(key, now)
	if e != nil {
		old := e.value
		e.value = stored
		if d := c.cfg.ExpiryPolicy.Update; d > 0 {
			e.expires = now.Add(d)
		}
		events = append(events, Event{Cache: c.name, Type: EventUpdated, Key: key, Value: stored, OldValue: old})
	} else {
		events = append(events, c.insert(key, stored, now))
	}
	c.evict()
	c.mu.Unlock()

	c.count(&c.stats.puts)
	c.dispatch(events)
	return nil
}

// Remove deletes key and reports whether it was present.
func (c *Cache) Remove(ctx context.Context, key any) (bool, error) {
	if err := c.checkKey(key); err != nil {
		return false, err
	}
	if c.isClosed() {
		return false, ErrClosed
	}
	if c.cfg.WriteThrough && c.writer != nil {
		if err := c.writer.Delete(ctx, key); err != nil {
			return false, fmt.Errorf("cache %q: delete %v: %w", c.name, key, err)
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	e, events := c.live(key, c.now())
	if e != nil {
		delete(c.entries, key)
		events = append(events, Event{Cache: c.name, Type: EventRemoved, Key: key, OldValue: e.value})
	}
	c.mu.Unlock()

	if e != nil {
		c.count(&c.stats.removals)
	}
	c.dispatch(events)
	return e != nil, nil
}

// Clear drops every entry without notifying listeners or the writer.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.entries = make(map[any]*entry)
	return nil
}

// Len returns the number of entries, including expired ones not yet purged.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters. All counters stay zero unless
// statistics are enabled.
func (c *Cache) Stats() Statistics {
	return Statistics{
		Hits:        c.stats.hits.Load(),
		Misses:      c.stats.misses.Load(),
		Puts:        c.stats.puts.Load(),
		Removals:    c.stats.removals.Load(),
		Evictions:   c.stats.evictions.Load(),
		Expirations: c.stats.expirations.Load(),
	}
}

// Close drops all entries. Later operations fail with ErrClosed. Close is
// idempotent.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.entries = nil
	c.logger.Info("cache closed", "cache", c.name)
	return nil
}

// IsClosed reports whether Close has been called.
func (c *Cache) IsClosed() bool {
	return c.isClosed()
}

func (c *Cache) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// live returns the unexpired entry for key, dropping it if it has expired.
// Callers hold c.mu.
func (c *Cache) live(key any, now time.Time) (*entry, []Event) {
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if !e.expired(now) {
		return e, nil
	}
	delete(c.entries, key)
	c.count(&c.stats.expirations)
	return nil, []Event{{Cache: c.name, Type: EventExpired, Key: key, OldValue: e.value}}
}

// insert adds a new entry. Callers hold c.mu.
func (c *Cache) insert(key, value any, now time.Time) Event {
	c.seq++
	e := &entry{value: value, seq: c.seq}
	if d := c.cfg.ExpiryPolicy.Creation; d > 0 {
		e.expires = now.Add(d)
	}
	c.entries[key] = e
	return Event{Cache: c.name, Type: EventCreated, Key: key, Value: value}
}

// evict applies the eviction manager. Callers hold c.mu.
func (c *Cache) evict() {
	if _, ok := c.eviction.(noEviction); ok {
		return
	}
	keys := make([]any, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return c.entries[keys[i]].seq < c.entries[keys[j]].seq })

	for _, k := range c.eviction.Evict(keys) {
		if _, ok := c.entries[k]; ok {
			delete(c.entries, k)
			c.count(&c.stats.evictions)
		}
	}
}

func (c *Cache) dispatch(events []Event) {
	for _, ev := range events {
		for _, l := range c.listeners {
			c.notify(l, ev)
		}
	}
}

func (c *Cache) notify(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cache listener panicked", "cache", c.name, "event", ev.Type.String(), "panic", r)
		}
	}()
	l(ev)
}

func (c *Cache) count(n *atomic.Int64) {
	if c.cfg.StatisticsEnabled {
		n.Add(1)
	}
}

func (c *Cache) checkKey(key any) error {
	if key == nil {
		return ErrNilKey
	}
	if !matches(c.cfg.KeyType, key) {
		return ConfigMismatchError{
			Cache:    c.name,
			Field:    OptionKeyType,
			Expected: c.cfg.KeyType.String(),
			Actual:   fmt.Sprintf("%T", key),
		}
	}
	if !reflect.TypeOf(key).Comparable() {
		return fmt.Errorf("cache %q: key type %T is not comparable", c.name, key)
	}
	return nil
}

func (c *Cache) checkValue(value any) error {
	if value == nil {
		return ErrNilValue
	}
	if !matches(c.cfg.ValueType, value) {
		return ConfigMismatchError{
			Cache:    c.name,
			Field:    OptionValueType,
			Expected: c.cfg.ValueType.String(),
			Actual:   fmt.Sprintf("%T", value),
		}
	}
	return nil
}

func matches(t reflect.Type, v any) bool {
	if t == nil {
		return true
	}
	vt := reflect.TypeOf(v)
	if t.Kind() == reflect.Interface {
		return vt.Implements(t)
	}
	return vt == t
}

func (c *Cache) copyIn(v any) (any, error) {
	if !c.cfg.StoreByValue {
		return v, nil
	}
	return copyValue(v)
}

func (c *Cache) copyOut(v any) (any, error) {
	if !c.cfg.StoreByValue {
		return v, nil
	}
	return copyValue(v)
}

// copyValue deep-copies v through its JSON encoding.
func copyValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("copy %T: %w", v, err)
	}
	ptr := reflect.New(reflect.TypeOf(v))
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("copy %T: %w", v, err)
	}
	return ptr.Elem().Interface(), nil
}
