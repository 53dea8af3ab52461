// Package metrics exposes Prometheus instruments for reconciliation passes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "elbctl"

// Metrics groups the reconciler's instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	deltas     *prometheus.CounterVec
	targets    prometheus.Gauge
	refreshOK  prometheus.Gauge
}

// New registers the instruments on a fresh registry along with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Lifecycle operations by name and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of lifecycle operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		deltas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delta_items_total",
			Help:      "Items added or removed remotely, by configuration category.",
		}, []string{"category", "action"}),
		targets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_targets",
			Help:      "Backend targets registered after the last reload.",
		}),
		refreshOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "attributes_refresh_ok",
			Help:      "1 if the last attribute refresh succeeded, 0 otherwise.",
		}),
	}
	m.registry.MustRegister(
		m.operations, m.duration, m.deltas, m.targets, m.refreshOK,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveOperation records one lifecycle operation.
func (m *Metrics) ObserveOperation(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveDelta records the size of an applied delta.
func (m *Metrics) ObserveDelta(category string, added, removed int) {
	if m == nil {
		return
	}
	if added > 0 {
		m.deltas.WithLabelValues(category, "add").Add(float64(added))
	}
	if removed > 0 {
		m.deltas.WithLabelValues(category, "remove").Add(float64(removed))
	}
}

// SetTargets records the registered target count.
func (m *Metrics) SetTargets(n int) {
	if m == nil {
		return
	}
	m.targets.Set(float64(n))
}

// SetRefreshOK records the outcome of an attribute refresh.
func (m *Metrics) SetRefreshOK(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.refreshOK.Set(1)
	} else {
		m.refreshOK.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
