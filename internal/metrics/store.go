// Package metrics exports store statistics and execution context state to
// Prometheus.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/graphkeep/internal/config"
	"github.com/seantiz/graphkeep/internal/store"
)

// Toggle names under the vendor config node. Each metric is enabled unless
// vendor.<name>.enabled is false; vendor.enabled=false turns them all off.
const (
	GlobalFileCount = "globalFileCount"
	LiveDataLength  = "liveDataLength"
	TotalDataLength = "totalDataLength"

	vendorNode = "vendor"
)

const defaultScrapeTimeout = 5 * time.Second

// StatisticsSource supplies store statistics, typically through an execution
// context so the read is serialized with other store work.
type StatisticsSource interface {
	Statistics(ctx context.Context) (store.Statistics, error)
}

type storeMetric struct {
	toggle string
	desc   *prometheus.Desc
	value  func(store.Statistics) int64
}

var storeMetricDefs = []struct {
	toggle string
	name   string
	help   string
	value  func(store.Statistics) int64
}{
	{
		GlobalFileCount,
		"graphkeep_store_global_file_count",
		"Number of files in the storage directory.",
		func(s store.Statistics) int64 { return s.FileCount },
	},
	{
		LiveDataLength,
		"graphkeep_store_live_data_length_bytes",
		"Size of the stored object data.",
		func(s store.Statistics) int64 { return s.LiveDataLength },
	},
	{
		TotalDataLength,
		"graphkeep_store_total_data_length_bytes",
		"Total size of the database files.",
		func(s store.Statistics) int64 { return s.TotalDataLength },
	},
}

// Option configures StoreMetrics.
type Option func(*StoreMetrics)

// WithLogger sets the logger used for failed statistics reads.
func WithLogger(l *slog.Logger) Option {
	return func(m *StoreMetrics) { m.logger = l }
}

// WithScrapeTimeout bounds one statistics read.
func WithScrapeTimeout(d time.Duration) Option {
	return func(m *StoreMetrics) { m.timeout = d }
}

// WithConstLabels adds labels to every store metric.
func WithConstLabels(l prometheus.Labels) Option {
	return func(m *StoreMetrics) { m.labels = l }
}

// StoreMetrics is a Prometheus collector over store statistics. Statistics
// are read once per scrape.
type StoreMetrics struct {
	source  StatisticsSource
	logger  *slog.Logger
	timeout time.Duration
	labels  prometheus.Labels
	metrics []storeMetric
}

// NewStoreMetrics builds the collector. node is the metrics config node
// holding the vendor toggles; a missing node enables every metric.
func NewStoreMetrics(source StatisticsSource, node config.Node, opts ...Option) *StoreMetrics {
	m := &StoreMetrics{
		source:  source,
		logger:  slog.New(slog.DiscardHandler),
		timeout: defaultScrapeTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}

	vendor := node.Get(vendorNode)
	if !vendor.Bool("enabled", true) {
		return m
	}
	for _, def := range storeMetricDefs {
		if !vendor.Get(def.toggle).Bool("enabled", true) {
			continue
		}
		m.metrics = append(m.metrics, storeMetric{
			toggle: def.toggle,
			desc:   prometheus.NewDesc(def.name, def.help, nil, m.labels),
			value:  def.value,
		})
	}
	return m
}

// Enabled returns the toggle names of the exported metrics.
func (m *StoreMetrics) Enabled() []string {
	names := make([]string, len(m.metrics))
	for i, sm := range m.metrics {
		names[i] = sm.toggle
	}
	return names
}

func (m *StoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, sm := range m.metrics {
		ch <- sm.desc
	}
}

// Collect reads statistics once and emits every enabled gauge. A failed read
// is logged and yields no samples.
func (m *StoreMetrics) Collect(ch chan<- prometheus.Metric) {
	if len(m.metrics) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	stats, err := m.source.Statistics(ctx)
	if err != nil {
		m.logger.Warn("read store statistics", "error", err)
		return
	}
	for _, sm := range m.metrics {
		ch <- prometheus.MustNewConstMetric(sm.desc, prometheus.GaugeValue, float64(sm.value(stats)))
	}
}
