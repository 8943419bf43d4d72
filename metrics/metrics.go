// Package metrics exposes cache and sweep activity as Prometheus metrics.
// Nothing is registered globally; callers register a Collector with the
// registry of their choice. A nil *Collector accepts every call and does
// nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation results used as the "result" label.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultExpired = "expired"
	ResultOK      = "ok"
	ResultError   = "error"
	ResultInvalid = "invalid"
)

// Collector holds the cache metrics. It implements prometheus.Collector.
type Collector struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	sweeps        *prometheus.CounterVec
	swept         prometheus.Counter
	sweepDuration prometheus.Histogram
}

var _ prometheus.Collector = (*Collector)(nil)

// New returns a Collector with every metric name prefixed by namespace.
func New(namespace string) *Collector {
	return &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_operations_total",
				Help:      "Cache operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_operation_duration_seconds",
				Help:      "Cache operation latencies in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"operation"},
		),
		sweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_sweeps_total",
				Help:      "Expired entry sweeps by result",
			},
			[]string{"result"},
		),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_swept_entries_total",
			Help:      "Entries removed by sweeps",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_sweep_duration_seconds",
			Help:      "Sweep latencies in seconds",
		}),
	}
}

// Register adds the collector to reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	return reg.Register(c)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.operations.Describe(ch)
	c.duration.Describe(ch)
	c.sweeps.Describe(ch)
	c.swept.Describe(ch)
	c.sweepDuration.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.operations.Collect(ch)
	c.duration.Collect(ch)
	c.sweeps.Collect(ch)
	c.swept.Collect(ch)
	c.sweepDuration.Collect(ch)
}

// ObserveOperation records one facade call.
func (c *Collector) ObserveOperation(operation string, result string, took time.Duration) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(operation, result).Inc()
	c.duration.WithLabelValues(operation).Observe(took.Seconds())
}

// SweepFinished records one sweep and how many entries it removed.
func (c *Collector) SweepFinished(removed int64, err error, took time.Duration) {
	if c == nil {
		return
	}
	if err != nil {
		c.sweeps.WithLabelValues(ResultError).Inc()
		return
	}
	c.sweeps.WithLabelValues(ResultOK).Inc()
	c.swept.Add(float64(removed))
	c.sweepDuration.Observe(took.Seconds())
}
