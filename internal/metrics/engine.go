package metrics

import "github.com/prometheus/client_golang/prometheus"

// QueueDepth is anything that reports a task backlog.
type QueueDepth interface {
	Pending() int
}

// NewQueueGauge returns a gauge reporting the pending tasks of an execution
// context.
func NewQueueGauge(q QueueDepth, labels prometheus.Labels) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "graphkeep_engine_pending_tasks",
			Help:        "Tasks queued on the execution context and not yet run.",
			ConstLabels: labels,
		},
		func() float64 { return float64(q.Pending()) },
	)
}
