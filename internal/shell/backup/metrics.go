package backup

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// =============================================================================
// Metrics
// =============================================================================

const metricsNamespace = "d2c"

// Run results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultPartial = "partial"
	ResultFailure = "failure"
)

// Metrics are the Prometheus collectors of the backup pipeline.
type Metrics struct {
	runs            *prometheus.CounterVec
	documents       prometheus.Counter
	documentsFailed prometheus.Counter
	skipped         prometheus.Counter
	lastRun         prometheus.Gauge
	duration        prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "Total backup runs by result",
			},
			[]string{"result"},
		),
		documents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "documents_written_total",
				Help:      "Total compose documents written",
			},
		),
		documentsFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "documents_failed_total",
				Help:      "Total compose documents that could not be rendered or written",
			},
		),
		skipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "containers_skipped_total",
				Help:      "Total containers left out because their record was malformed",
			},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix timestamp of the last finished run",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of backup runs",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
	}
	for _, result := range []string{ResultSuccess, ResultPartial, ResultFailure} {
		m.runs.WithLabelValues(result)
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.documents, m.documentsFailed, m.skipped, m.lastRun, m.duration)
	}
	return m
}

func (m *Metrics) observe(result string, written, failed, skipped int, finished time.Time, took time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	m.documents.Add(float64(written))
	m.documentsFailed.Add(float64(failed))
	m.skipped.Add(float64(skipped))
	m.lastRun.Set(float64(finished.Unix()))
	m.duration.Observe(took.Seconds())
}
