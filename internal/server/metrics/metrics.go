// Package metrics exposes settlement counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/afriswift/settlement/internal/server/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "settlement"

// Metrics owns a registry and the collectors registered on it. It
// implements settlement.Observer.
type Metrics struct {
	Registry *prometheus.Registry

	intentTransitions *prometheus.CounterVec
	gatingRejections  *prometheus.CounterVec
	externalCalls     *prometheus.CounterVec
	ledgerRetries     prometheus.Counter
	credentialRefresh *prometheus.CounterVec
	reconcileIntents  *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
	rpcRequests       *prometheus.CounterVec
	rpcDuration       *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		intentTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "intents",
				Name:      "transitions_total",
				Help:      "Intent status changes by kind and target status.",
			},
			[]string{"kind", "status"},
		),
		gatingRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "intents",
				Name:      "gating_rejections_total",
				Help:      "Requests refused before any external call.",
			},
			[]string{"kind"},
		),
		externalCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "external",
				Name:      "calls_total",
				Help:      "Value-moving external calls by target and outcome.",
			},
			[]string{"target", "outcome"},
		),
		ledgerRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "retries_total",
				Help:      "Retried balance applications.",
			},
		),
		credentialRefresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "credentials",
				Name:      "refreshes_total",
				Help:      "Anchor token refreshes by result.",
			},
			[]string{"result"},
		),
		reconcileIntents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "intents_total",
				Help:      "Intents handled by reconciliation passes.",
			},
			[]string{"result"},
		),
		reconcileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "pass_duration_seconds",
				Help:      "Duration of reconciliation passes.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
		rpcRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "requests_total",
				Help:      "Handled gRPC requests.",
			},
			[]string{"method", "code"},
		),
		rpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "request_duration_seconds",
				Help:      "Duration of gRPC requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"method"},
		),
	}

	m.Registry.MustRegister(
		m.intentTransitions,
		m.gatingRejections,
		m.externalCalls,
		m.ledgerRetries,
		m.credentialRefresh,
		m.reconcileIntents,
		m.reconcileDuration,
		m.rpcRequests,
		m.rpcDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IntentTransition(kind models.IntentKind, to models.IntentStatus) {
	m.intentTransitions.WithLabelValues(string(kind), string(to)).Inc()
}

func (m *Metrics) GatingRejected(kind models.IntentKind) {
	m.gatingRejections.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) ExternalCall(target, outcome string) {
	m.externalCalls.WithLabelValues(target, outcome).Inc()
}

func (m *Metrics) LedgerRetry() {
	m.ledgerRetries.Inc()
}

// CredentialRefresh is meant to be installed as the credential cache's
// refresh hook.
func (m *Metrics) CredentialRefresh(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.credentialRefresh.WithLabelValues(result).Inc()
}

// ReconcilePass records one reconciliation pass.
func (m *Metrics) ReconcilePass(advanced, aborted, errors int, d time.Duration) {
	m.reconcileIntents.WithLabelValues("advanced").Add(float64(advanced))
	m.reconcileIntents.WithLabelValues("aborted").Add(float64(aborted))
	m.reconcileIntents.WithLabelValues("error").Add(float64(errors))
	m.reconcileDuration.Observe(d.Seconds())
}

// ObserveRPC records a finished gRPC call.
func (m *Metrics) ObserveRPC(method, code string, d time.Duration) {
	m.rpcRequests.WithLabelValues(method, code).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(d.Seconds())
}
