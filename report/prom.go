package report

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/weiihann/cmapbench/harness"
)

// Metrics holds per-run gauges labelled by adapter, thread count and
// workload, in a private registry meant for node_exporter's textfile
// collector.
type Metrics struct {
	registry   *prometheus.Registry
	throughput *prometheus.GaugeVec
	latency    *prometheus.GaugeVec
	spent      *prometheus.GaugeVec
	totalOps   *prometheus.GaugeVec
	workload   string
}

// NewMetrics creates the gauges for the named workload.
func NewMetrics(workload string) *Metrics {
	labels := []string{"adapter", "threads", "workload"}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		workload: workload,
		throughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cmapbench",
			Name:      "throughput_ops_per_second",
			Help:      "Operations per second over the measured phase.",
		}, labels),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cmapbench",
			Name:      "latency_seconds",
			Help:      "Mean wall-clock time per operation.",
		}, labels),
		spent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cmapbench",
			Name:      "spent_seconds",
			Help:      "Wall-clock duration of the measured phase.",
		}, labels),
		totalOps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cmapbench",
			Name:      "operations",
			Help:      "Operations executed in the measured phase.",
		}, labels),
	}

	m.registry.MustRegister(m.throughput, m.latency, m.spent, m.totalOps)

	return m
}

// Record sets the gauges for r. A later result for the same adapter and
// thread count replaces the earlier one.
func (m *Metrics) Record(r harness.Result) error {
	lv := []string{r.Name, strconv.Itoa(r.Threads), m.workload}

	m.throughput.WithLabelValues(lv...).Set(r.Throughput)
	m.latency.WithLabelValues(lv...).Set(r.Latency.Seconds())
	m.spent.WithLabelValues(lv...).Set(r.Spent.Seconds())
	m.totalOps.WithLabelValues(lv...).Set(float64(r.TotalOps))

	return nil
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the gauges in text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write prometheus textfile %s: %w", path, err)
	}

	return nil
}
