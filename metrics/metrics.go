// Package metrics has prometheus metric variables/functions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConvergence = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nginxmailhost_convergence_total",
			Help: "Number of converged mailhosts by result.",
		},
		[]string{"result"}, // ok, invalid, error
	)

	metricConvergenceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nginxmailhost_convergence_duration_seconds",
			Help:    "Duration of full convergence passes.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.100, 0.5, 1, 5},
		},
	)

	metricFileWrite = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nginxmailhost_file_writes_total",
			Help: "Number of configuration files written or removed due to content changes.",
		},
	)

	metricReload = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nginxmailhost_reloads_total",
			Help: "Number of nginx reloads by result.",
		},
		[]string{"result"}, // ok, error
	)
)

// ConvergeObserve counts the result of converging one mailhost.
func ConvergeObserve(result string) {
	metricConvergence.WithLabelValues(result).Inc()
}

// ConvergeDurationObserve tracks the duration of one full convergence pass.
func ConvergeDurationObserve(start time.Time) {
	metricConvergenceDuration.Observe(float64(time.Since(start)) / float64(time.Second))
}

// FileWriteInc counts a written or removed configuration file.
func FileWriteInc() {
	metricFileWrite.Inc()
}

// ReloadObserve counts a reload attempt.
func ReloadObserve(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metricReload.WithLabelValues(result).Inc()
}
