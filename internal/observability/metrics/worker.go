package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	ingestTotal    *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	ingestInFlight prometheus.Gauge
	claimMisses    prometheus.Counter
	pollTicks      prometheus.Counter
	runTransitions *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "research",
			Subsystem: "worker",
			Name:      "document_ingest_total",
			Help:      "Total ingested documents by terminal status.",
		},
		[]string{"service", "status"},
	)
	ingestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "research",
			Subsystem: "worker",
			Name:      "document_ingest_duration_seconds",
			Help:      "Document ingestion duration in seconds by terminal status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	ingestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "research",
			Subsystem: "worker",
			Name:      "document_ingest_in_flight",
			Help:      "Number of documents currently being ingested.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	claimMisses := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "research",
			Subsystem: "worker",
			Name:      "claim_misses_total",
			Help:      "Claims lost to a concurrent poller. Expected under normal operation.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	pollTicks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "research",
			Subsystem: "worker",
			Name:      "poll_ticks_total",
			Help:      "Completed poll ticks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	runTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "research",
			Subsystem: "orchestrator",
			Name:      "run_transitions_total",
			Help:      "Research run phase transitions.",
		},
		[]string{"service", "phase"},
	)

	registry.MustRegister(ingestTotal, ingestDuration, ingestInFlight, claimMisses, pollTicks, runTransitions)

	return &WorkerMetrics{
		registry:       registry,
		ingestTotal:    ingestTotal,
		ingestDuration: ingestDuration,
		ingestInFlight: ingestInFlight,
		claimMisses:    claimMisses,
		pollTicks:      pollTicks,
		runTransitions: runTransitions,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.ingestInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(service string, duration time.Duration, err error) {
	m.ingestInFlight.Dec()

	status := "ready"
	if err != nil {
		status = "failed"
	}
	m.ingestTotal.WithLabelValues(service, status).Inc()
	m.ingestDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ClaimMiss() {
	m.claimMisses.Inc()
}

func (m *WorkerMetrics) PollTick() {
	m.pollTicks.Inc()
}

func (m *WorkerMetrics) RunTransition(service, phase string) {
	m.runTransitions.WithLabelValues(service, phase).Inc()
}
