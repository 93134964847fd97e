// Package metrics counts reconciler operations and exports them in the
// Prometheus text format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	keySuccess = "success"
	keyError   = "error"
)

// Recorder holds the operation metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry
	count    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New returns a Recorder with its collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		count: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chall_sync_operations_total",
			Help: "How many challenge operations completed, partitioned by operation and status (success, error)",
		}, []string{"op", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chall_sync_operation_duration_seconds",
			Help:    "Duration of challenge operations",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"op"}),
	}
	r.registry.MustRegister(r.count, r.duration)
	return r
}

// Observe records one operation.
func (r *Recorder) Observe(op string, elapsed time.Duration, err error) {
	status := keySuccess
	if err != nil {
		status = keyError
	}
	r.count.WithLabelValues(op, status).Inc()
	r.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteTextfile writes every metric to path for the node exporter textfile
// collector. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
