package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	rowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portage",
			Subsystem: "transfer",
			Name:      "rows_total",
			Help:      "Total rows observed during a transfer, by outcome.",
		},
		[]string{"outcome"}, // read | written | skipped
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "portage",
			Subsystem: "transfer",
			Name:      "batch_duration_seconds",
			Help:      "Time to validate, transform, and write one batch.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	transferErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portage",
			Subsystem: "transfer",
			Name:      "errors_total",
			Help:      "Total transfer errors, by pgerrors.Kind.",
		},
		[]string{"kind"},
	)

	processRSS = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "portage",
			Subsystem: "transfer",
			Name:      "process_rss_bytes",
			Help:      "Resident set size of the transfer process, sampled each batch.",
		},
	)
)

// RecordRows increments the rows counter for outcome by n.
func RecordRows(outcome string, n int) {
	if n <= 0 {
		return
	}
	rowsProcessed.WithLabelValues(outcome).Add(float64(n))
}

// RecordBatchDuration observes how long one batch took end to end.
func RecordBatchDuration(d time.Duration) {
	batchDuration.Observe(d.Seconds())
}

// RecordError increments the error counter for a pgerrors.Kind string.
func RecordError(kind string) {
	transferErrors.WithLabelValues(kind).Inc()
}

// RecordRSS updates the sampled process RSS gauge.
func RecordRSS(bytes uint64) {
	processRSS.Set(float64(bytes))
}

// Handler exposes the process's metrics in the Prometheus exposition
// format, for cmd/portage to optionally serve on a --metrics-addr flag.
func Handler() http.Handler {
	return promhttp.Handler()
}
