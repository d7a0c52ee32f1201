// Package metrics exposes queue and transport metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "queue_service"

// Recorder owns the service collectors on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	conflicts  *prometheus.CounterVec
	waiting    *prometheus.GaugeVec
	requests   *prometheus.CounterVec
}

// NewRecorder registers the collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Queue operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Queue operation latency including retries",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"operation"},
		),
		conflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conflicts_total",
				Help:      "Attempts lost to concurrent writers",
			},
			[]string{"operation"},
		),
		waiting: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "waiting_entries",
				Help:      "Entries waiting per queue after the last committed change",
			},
			[]string{"queue_id"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
	}
}

// ObserveOperation records one finished coordinator operation.
func (r *Recorder) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	r.operations.WithLabelValues(operation, outcome).Inc()
	r.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// IncConflict counts a lost optimistic attempt.
func (r *Recorder) IncConflict(operation string) {
	r.conflicts.WithLabelValues(operation).Inc()
}

// SetWaiting publishes the waiting count of a queue.
func (r *Recorder) SetWaiting(queueID string, waiting int64) {
	r.waiting.WithLabelValues(queueID).Set(float64(waiting))
}

// ObserveHTTP counts one served HTTP request.
func (r *Recorder) ObserveHTTP(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	r.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
