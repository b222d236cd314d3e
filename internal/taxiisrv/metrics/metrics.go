// Package metrics holds the prometheus collectors of the TAXII server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var IngestedObjects = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "taxii",
	Subsystem: "store",
	Name:      "ingested_objects",
}, []string{"result"})

var JobsCreated = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "taxii",
	Subsystem: "jobs",
	Name:      "created",
})

var JobsCleaned = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "taxii",
	Subsystem: "jobs",
	Name:      "cleaned",
})

var CleanupFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "taxii",
	Subsystem: "jobs",
	Name:      "cleanup_failures",
})

var StoreOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "taxii",
	Subsystem: "store",
	Name:      "operation_duration_ms",
	Buckets:   []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
}, []string{"operation"})

// Collectors returns every collector of the package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{IngestedObjects, JobsCreated, JobsCleaned, CleanupFailures, StoreOpDuration}
}

// Register registers all collectors with reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveSince records the duration of a store operation started at start.
func ObserveSince(op string, start time.Time) {
	StoreOpDuration.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000)
}
