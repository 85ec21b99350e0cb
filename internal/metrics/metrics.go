// Package metrics exports registry and HTTP activity to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/kvobserve/internal/observer"
	"github.com/dshills/kvobserve/internal/observer/dispatch"
)

const namespace = "kvobserve"

// Collector implements observer.Metrics on top of Prometheus vectors.
type Collector struct {
	passes       *prometheus.CounterVec
	notified     *prometheus.CounterVec
	pruned       *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	deferred     *prometheus.CounterVec
	reconciled   *prometheus.CounterVec

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	reg prometheus.Registerer
}

var _ observer.Metrics = (*Collector)(nil)

// New creates a Collector and registers its vectors with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "observer",
			Name:      "passes_total",
			Help:      "Total number of notification passes",
		}, []string{"registry"}),
		notified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "observer",
			Name:      "notified_total",
			Help:      "Total number of subscribers handed an action",
		}, []string{"registry"}),
		pruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "observer",
			Name:      "pruned_total",
			Help:      "Total number of dead subscribers removed during passes",
		}, []string{"registry"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "observer",
			Name:      "pass_duration_seconds",
			Help:      "Duration of notification passes in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"registry"}),
		deferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "observer",
			Name:      "deferred_total",
			Help:      "Total number of mutations parked while the registry was busy",
		}, []string{"registry", "op"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "observer",
			Name:      "reconciled_total",
			Help:      "Total number of parked mutations applied",
		}, []string{"registry", "op"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		reg: reg,
	}

	reg.MustRegister(
		c.passes, c.notified, c.pruned, c.passDuration,
		c.deferred, c.reconciled,
		c.requests, c.requestDuration,
	)
	return c
}

// ObservePass implements observer.Metrics.
func (c *Collector) ObservePass(registry string, notified, pruned int, elapsed time.Duration) {
	c.passes.WithLabelValues(registry).Inc()
	c.notified.WithLabelValues(registry).Add(float64(notified))
	c.pruned.WithLabelValues(registry).Add(float64(pruned))
	c.passDuration.WithLabelValues(registry).Observe(elapsed.Seconds())
}

// ObserveDeferred implements observer.Metrics.
func (c *Collector) ObserveDeferred(registry string, op observer.Op) {
	c.deferred.WithLabelValues(registry, op.String()).Inc()
}

// ObserveReconciled implements observer.Metrics.
func (c *Collector) ObserveReconciled(registry string, adds, removes int) {
	if adds > 0 {
		c.reconciled.WithLabelValues(registry, observer.OpAdd.String()).Add(float64(adds))
	}
	if removes > 0 {
		c.reconciled.WithLabelValues(registry, observer.OpRemove.String()).Add(float64(removes))
	}
}

// ObserveRequest records one HTTP request.
func (c *Collector) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	c.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// WatchPool exports the queue depth and dropped count of a delivery pool.
func (c *Collector) WatchPool(name string, p *dispatch.Pool) {
	labels := prometheus.Labels{"pool": name}
	c.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "dispatch",
			Name:        "queue_depth",
			Help:        "Number of deliveries waiting in the pool queue",
			ConstLabels: labels,
		}, func() float64 { return float64(p.QueueDepth()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "dispatch",
			Name:        "dropped_total",
			Help:        "Total number of deliveries refused by the pool",
			ConstLabels: labels,
		}, func() float64 { return float64(p.Stats().Dropped) }),
	)
}
