package metrics

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/seantiz/graphkeep/internal/config"
	"github.com/seantiz/graphkeep/internal/store"
)

type fakeSource struct {
	stats store.Statistics
	err   error
	calls int
}

func (f *fakeSource) Statistics(context.Context) (store.Statistics, error) {
	f.calls++
	return f.stats, f.err
}

type fakeQueue int

func (q fakeQueue) Pending() int { return int(q) }

func metricsNode(doc map[string]any) config.Node {
	return config.NewTree(map[string]any{"metrics": doc}).Node("metrics")
}

func TestStoreMetricsAllEnabledByDefault(t *testing.T) {
	src := &fakeSource{stats: store.Statistics{FileCount: 3, LiveDataLength: 120, TotalDataLength: 4096}}
	m := NewStoreMetrics(src, config.Node{})

	want := []string{GlobalFileCount, LiveDataLength, TotalDataLength}
	if got := m.Enabled(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Enabled() = %v, want %v", got, want)
	}

	expected := `
# HELP graphkeep_store_global_file_count Number of files in the storage directory.
# TYPE graphkeep_store_global_file_count gauge
graphkeep_store_global_file_count 3
# HELP graphkeep_store_live_data_length_bytes Size of the stored object data.
# TYPE graphkeep_store_live_data_length_bytes gauge
graphkeep_store_live_data_length_bytes 120
# HELP graphkeep_store_total_data_length_bytes Total size of the database files.
# TYPE graphkeep_store_total_data_length_bytes gauge
graphkeep_store_total_data_length_bytes 4096
`
	if err := testutil.CollectAndCompare(m, strings.NewReader(expected)); err != nil {
		t.Error(err)
	}

	src.calls = 0
	ch := make(chan prometheus.Metric, 3)
	m.Collect(ch)
	if src.calls != 1 || len(ch) != 3 {
		t.Errorf("one scrape read statistics %d times and emitted %d samples, want 1 and 3", src.calls, len(ch))
	}
}

func TestStoreMetricsToggles(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
		want []string
	}{
		{
			"one disabled",
			map[string]any{"vendor": map[string]any{
				"globalFileCount": map[string]any{"enabled": false},
			}},
			[]string{LiveDataLength, TotalDataLength},
		},
		{
			"string flag",
			map[string]any{"vendor": map[string]any{
				"liveDataLength":  map[string]any{"enabled": "false"},
				"totalDataLength": map[string]any{"enabled": "true"},
			}},
			[]string{GlobalFileCount, TotalDataLength},
		},
		{
			"all disabled",
			map[string]any{"vendor": map[string]any{"enabled": false}},
			[]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewStoreMetrics(&fakeSource{}, metricsNode(tt.doc))
			if got := m.Enabled(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
			if n := testutil.CollectAndCount(m); n != len(tt.want) {
				t.Errorf("collected %d metrics, want %d", n, len(tt.want))
			}
		})
	}
}

func TestStoreMetricsReadFailure(t *testing.T) {
	m := NewStoreMetrics(&fakeSource{err: errors.New("store is not running")}, config.Node{})

	if n := testutil.CollectAndCount(m); n != 0 {
		t.Errorf("collected %d metrics after a failed read, want 0", n)
	}
}

func TestStoreMetricsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStoreMetrics(&fakeSource{stats: store.Statistics{FileCount: 1}}, config.Node{},
		WithConstLabels(prometheus.Labels{"node": "graphkeep.storage"}))
	if err := reg.Register(m); err != nil {
		t.Fatalf("Register: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 3 {
		t.Fatalf("gathered %d families, want 3", len(families))
	}
	label := families[0].GetMetric()[0].GetLabel()[0]
	if label.GetName() != "node" || label.GetValue() != "graphkeep.storage" {
		t.Errorf("label = %s=%s", label.GetName(), label.GetValue())
	}
}

func TestQueueGauge(t *testing.T) {
	g := NewQueueGauge(fakeQueue(7), nil)
	if v := testutil.ToFloat64(g); v != 7 {
		t.Errorf("pending = %v, want 7", v)
	}
}
