package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	classificationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "classification_total",
			Help:      "Classification outcomes by resulting raw file status.",
		},
		[]string{"status", "path"},
	)
	extractionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "extraction_total",
			Help:      "Extraction outcomes by resulting document status.",
		},
		[]string{"status"},
	)
	verificationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "verification_total",
			Help:      "Complete-document actions.",
		},
		[]string{"action"},
	)
	triageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "triage_actions_total",
			Help:      "Triage actions created, by kind and delivery result.",
		},
		[]string{"kind", "result"},
	)
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "worker_jobs_total",
			Help:      "Queue jobs handled by the worker.",
		},
		[]string{"kind", "result"},
	)
	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "rate_limited_total",
			Help:      "Requests rejected with 429, by rate limit group.",
		},
		[]string{"group"},
	)
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intake",
			Name:      "stage_duration_ms",
			Help:      "Stage duration in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
		[]string{"stage"},
	)
)

func init() {
	registry.MustRegister(
		classificationTotal,
		extractionTotal,
		verificationTotal,
		triageTotal,
		jobsTotal,
		rateLimitedTotal,
		stageDuration,
	)
}

// IncClassification counts a classification outcome. path is auto, manual, or anyway.
func IncClassification(status, path string) {
	classificationTotal.WithLabelValues(status, path).Inc()
}

// IncExtraction counts an extraction outcome.
func IncExtraction(status string) {
	extractionTotal.WithLabelValues(status).Inc()
}

// IncVerification counts a complete-document action.
func IncVerification(action string) {
	verificationTotal.WithLabelValues(action).Inc()
}

// IncTriage counts a triage action; result is created or failed.
func IncTriage(kind, result string) {
	triageTotal.WithLabelValues(kind, result).Inc()
}

// IncJob counts a worker job; result is received, completed, failed, or dropped.
func IncJob(kind, result string) {
	jobsTotal.WithLabelValues(kind, result).Inc()
}

// IncRateLimited counts a throttled request.
func IncRateLimited(group string) {
	rateLimitedTotal.WithLabelValues(group).Inc()
}

// ObserveStageDuration records how long a stage took.
func ObserveStageDuration(stage string, d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0
	if ms < 0 {
		ms = 0
	}
	stageDuration.WithLabelValues(stage).Observe(ms)
}

// Registry returns the registry backing the exported metrics.
func Registry() *prometheus.Registry {
	return registry
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
