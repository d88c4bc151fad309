package cache

import "github.com/prometheus/client_golang/prometheus"

// Collector exports a cache's statistics when statistics are enabled and its
// size when management is enabled. Each cache gets its own collector labelled
// with the cache name.
type Collector struct {
	c *Cache

	hits        *prometheus.Desc
	misses      *prometheus.Desc
	puts        *prometheus.Desc
	removals    *prometheus.Desc
	evictions   *prometheus.Desc
	expirations *prometheus.Desc
	entries     *prometheus.Desc
}

// NewCollector returns a collector for c.
func NewCollector(c *Cache) *Collector {
	labels := prometheus.Labels{"cache": c.Name()}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(name, help, nil, labels)
	}
	return &Collector{
		c:           c,
		hits:        desc("graphkeep_cache_hits_total", "Cache reads that found an entry."),
		misses:      desc("graphkeep_cache_misses_total", "Cache reads that found no entry."),
		puts:        desc("graphkeep_cache_puts_total", "Values written to the cache."),
		removals:    desc("graphkeep_cache_removals_total", "Entries removed from the cache."),
		evictions:   desc("graphkeep_cache_evictions_total", "Entries dropped by the eviction manager."),
		expirations: desc("graphkeep_cache_expirations_total", "Entries dropped by the expiry policy."),
		entries:     desc("graphkeep_cache_entries", "Entries currently held by the cache."),
	}
}

func (col *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- col.hits
	ch <- col.misses
	ch <- col.puts
	ch <- col.removals
	ch <- col.evictions
	ch <- col.expirations
	ch <- col.entries
}

func (col *Collector) Collect(ch chan<- prometheus.Metric) {
	cfg := col.c.Configuration()

	if cfg.StatisticsEnabled {
		s := col.c.Stats()
		for _, m := range []struct {
			desc  *prometheus.Desc
			value int64
		}{
			{col.hits, s.Hits},
			{col.misses, s.Misses},
			{col.puts, s.Puts},
			{col.removals, s.Removals},
			{col.evictions, s.Evictions},
			{col.expirations, s.Expirations},
		} {
			ch <- prometheus.MustNewConstMetric(m.desc, prometheus.CounterValue, float64(m.value))
		}
	}
	if cfg.ManagementEnabled {
		ch <- prometheus.MustNewConstMetric(col.entries, prometheus.GaugeValue, float64(col.c.Len()))
	}
}
