package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pathkeeper"

// Outcomes of lookups and dynamic reads.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

var (
	savesCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Count of records saved.",
		},
	)
	lookupsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Count of record lookups by outcome.",
		},
		[]string{"outcome"},
	)
	dynamicReadsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dynamic_reads_total",
			Help:      "Count of reads served through registered paths by outcome.",
		},
		[]string{"outcome"},
	)
	storageFailuresCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_failures_total",
			Help:      "Count of failed store calls by operation.",
		},
		[]string{"operation"},
	)
	registeredRoutesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_routes",
			Help:      "Number of paths registered for dynamic reads since start.",
		},
	)
	reportsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Count of generated collection reports by collection.",
		},
		[]string{"collection"},
	)
	requestLatencies = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution in seconds by route and status.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"route", "status"},
	)
)

var registerMetrics sync.Once

// Register all metrics with reg.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(savesCounter)
		reg.MustRegister(lookupsCounter)
		reg.MustRegister(dynamicReadsCounter)
		reg.MustRegister(storageFailuresCounter)
		reg.MustRegister(registeredRoutesGauge)
		reg.MustRegister(reportsCounter)
		reg.MustRegister(requestLatencies)
	})
}

// RecordSave records a successful save.
func RecordSave() {
	savesCounter.Inc()
}

// RecordLookup records a lookup with its outcome.
func RecordLookup(outcome string) {
	lookupsCounter.WithLabelValues(outcome).Inc()
}

// RecordDynamicRead records a read through a registered path with its outcome.
func RecordDynamicRead(outcome string) {
	dynamicReadsCounter.WithLabelValues(outcome).Inc()
}

// RecordStorageFailure records a failed store call.
func RecordStorageFailure(operation string) {
	storageFailuresCounter.WithLabelValues(operation).Inc()
}

// SetRegisteredRoutes sets the current size of the route table.
func SetRegisteredRoutes(n int) {
	registeredRoutesGauge.Set(float64(n))
}

// RecordReport records a report produced for a collection.
func RecordReport(collection string) {
	reportsCounter.WithLabelValues(collection).Inc()
}

// RecordRequestLatency records the duration of a served HTTP request.
func RecordRequestLatency(route, status string, d time.Duration) {
	requestLatencies.WithLabelValues(route, status).Observe(d.Seconds())
}
