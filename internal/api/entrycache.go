package api

import (
	"context"
	"sync"

	"github.com/seantiz/graphkeep/internal/cache"
	"github.com/seantiz/graphkeep/internal/model"
)

// entryCache fronts per-name entry lists. Each name carries a version that
// every new greeting bumps; a reader only fills the cache if the version it
// saw before reading the log is still current, so a list read before a
// greeting can never land in the cache after that greeting's invalidation.
type entryCache struct {
	c *cache.Typed[string, []model.LogEntry]

	mu       sync.Mutex
	versions map[string]uint64
}

func newEntryCache(c *cache.Typed[string, []model.LogEntry]) *entryCache {
	if c == nil {
		return nil
	}
	return &entryCache{c: c, versions: make(map[string]uint64)}
}

func (e *entryCache) version(name string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.versions[name]
}

func (e *entryCache) get(ctx context.Context, name string) ([]model.LogEntry, bool, error) {
	return e.c.Get(ctx, name)
}

// fill stores entries read at version seen. It reports whether they were
// stored.
func (e *entryCache) fill(ctx context.Context, name string, seen uint64, entries []model.LogEntry) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.versions[name] != seen {
		return false, nil
	}
	if err := e.c.Put(ctx, name, entries); err != nil {
		return false, err
	}
	return true, nil
}

// invalidate must run after the new entry is in the log.
func (e *entryCache) invalidate(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.versions[name]++
	_, err := e.c.Remove(ctx, name)
	return err
}
