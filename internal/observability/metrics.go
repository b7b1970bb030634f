package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions prometheus.Gauge

	exchangeTotal    *prometheus.CounterVec
	exchangeDuration prometheus.Histogram

	remoteCallTotal    *prometheus.CounterVec
	remoteCallDuration *prometheus.HistogramVec

	approvalDecisions *prometheus.CounterVec

	journalAppendDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current active collaboration session count.",
				},
			),
			exchangeTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "exchange_total",
					Help: "Total exchange attempts by outcome.",
				},
				[]string{"status"},
			),
			exchangeDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "exchange_duration_seconds",
					Help:    "End-to-end exchange duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			remoteCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "remote_call_total",
					Help: "Total remote model calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			remoteCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "remote_call_duration_seconds",
					Help:    "Remote model round-trip duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			approvalDecisions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "approval_decisions_total",
					Help: "Total operator approval decisions.",
				},
				[]string{"decision"},
			),
			journalAppendDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "journal_append_duration_seconds",
					Help:    "Transcript journal append duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.exchangeTotal,
			m.exchangeDuration,
			m.remoteCallTotal,
			m.remoteCallDuration,
			m.approvalDecisions,
			m.journalAppendDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered forces metric registration. Safe to call multiple times.
func EnsureRegistered() {
	getMetrics()
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	getMetrics()
	return promhttp.Handler()
}

// SetActiveSessions updates the active session gauge.
func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

// RecordExchange records one exchange attempt with its outcome.
func RecordExchange(status string, duration time.Duration) {
	m := getMetrics()
	m.exchangeTotal.WithLabelValues(status).Inc()
	m.exchangeDuration.Observe(duration.Seconds())
}

// RecordRemoteCall records one remote model round trip.
func RecordRemoteCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "success"
	if !success {
		status = "failure"
	}
	m.remoteCallTotal.WithLabelValues(provider, status).Inc()
	m.remoteCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordApprovalDecision records an operator allow/deny decision.
func RecordApprovalDecision(approved bool) {
	decision := "approved"
	if !approved {
		decision = "denied"
	}
	getMetrics().approvalDecisions.WithLabelValues(decision).Inc()
}

// RecordJournalAppend records a transcript journal write duration.
func RecordJournalAppend(duration time.Duration) {
	getMetrics().journalAppendDuration.Observe(duration.Seconds())
}
