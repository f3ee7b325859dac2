// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_privacy_pipeline"

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Turn metrics
	TurnsTotal    *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	// Recorder metrics
	RecordedSeconds prometheus.Counter

	// Redaction metrics
	DetectSubmits     prometheus.Counter
	DetectPollsTotal  prometheus.Counter
	DetectJobDuration prometheus.Histogram
	DetectHTTPErrors  *prometheus.CounterVec
	DetectJobsFailed  prometheus.Counter

	// Realtime session metrics
	SessionDeltas     prometheus.Counter
	SessionAudioBytes prometheus.Counter
	SessionDuration   prometheus.Histogram

	// Audit publish metrics
	AuditPublishTotal  *prometheus.CounterVec
	AuditPublishErrors *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of pipeline turns by outcome",
		}, []string{"outcome"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),

		RecordedSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorded_audio_seconds_total",
			Help:      "Total seconds of microphone audio captured",
		}),

		DetectSubmits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detect_submits_total",
			Help:      "Total number of redaction jobs submitted",
		}),
		DetectPollsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detect_polls_total",
			Help:      "Total number of status polls issued",
		}),
		DetectJobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detect_job_duration_seconds",
			Help:      "Wall time from submit until a terminal job status",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
		DetectHTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detect_http_errors_total",
			Help:      "Total non-2xx responses from the detect service",
		}, []string{"endpoint"}),
		DetectJobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detect_jobs_failed_total",
			Help:      "Total redaction jobs that reported FAILED",
		}),

		SessionDeltas: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_audio_deltas_total",
			Help:      "Total audio delta events received over the realtime session",
		}),
		SessionAudioBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_audio_bytes_total",
			Help:      "Total decoded reply audio bytes",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of realtime sessions in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		AuditPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_publish_total",
			Help:      "Total audit events published",
		}, []string{"event_type"}),
		AuditPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_publish_errors_total",
			Help:      "Total audit publish errors",
		}, []string{"event_type"}),
	}
}

// RecordTurn records a completed turn by outcome ("success" or "error").
func (m *Metrics) RecordTurn(outcome string) {
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

// RecordStage records one pipeline stage duration.
func (m *Metrics) RecordStage(stage string, seconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordPoll records one status poll.
func (m *Metrics) RecordPoll() {
	m.DetectPollsTotal.Inc()
}

// RecordHTTPError records a non-2xx response from a detect endpoint.
func (m *Metrics) RecordHTTPError(endpoint string) {
	m.DetectHTTPErrors.WithLabelValues(endpoint).Inc()
}

// RecordDelta records a received audio delta event.
func (m *Metrics) RecordDelta() {
	m.SessionDeltas.Inc()
}

// RecordAuditPublish records an audit event publish attempt.
func (m *Metrics) RecordAuditPublish(eventType string, err error) {
	m.AuditPublishTotal.WithLabelValues(eventType).Inc()
	if err != nil {
		m.AuditPublishErrors.WithLabelValues(eventType).Inc()
	}
}
