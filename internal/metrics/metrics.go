package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	apiRequests      *prometheus.CounterVec
	apiDuration      *prometheus.HistogramVec
	hydrateTruncated prometheus.Counter
	pipelines        *prometheus.CounterVec
	staleResponses   *prometheus.CounterVec
	updates          *prometheus.CounterVec
}

// New registers the bot metrics on reg. Pass prometheus.DefaultRegisterer in
// main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dogfinder_api_requests_total",
				Help: "Total number of requests sent to the adoption service",
			},
			[]string{"operation", "status"},
		),
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dogfinder_api_request_duration_milliseconds",
				Help:    "Adoption service request duration in milliseconds",
				Buckets: prometheus.ExponentialBuckets(5, 2, 12),
			},
			[]string{"operation"},
		),
		hydrateTruncated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dogfinder_hydrate_truncated_total",
				Help: "Batch lookups that had to drop ids over the service limit",
			},
		),
		pipelines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dogfinder_search_pipelines_total",
				Help: "Search pipelines by outcome",
			},
			[]string{"outcome"},
		),
		staleResponses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dogfinder_stale_responses_total",
				Help: "Responses discarded because a newer search started",
			},
			[]string{"stage"},
		),
		updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dogfinder_telegram_updates_total",
				Help: "Telegram updates handled by kind",
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(m.apiRequests, m.apiDuration, m.hydrateTruncated, m.pipelines, m.staleResponses, m.updates)
	return m
}

func (m *Metrics) ObserveRequest(op string, status string, duration time.Duration) {
	m.apiRequests.WithLabelValues(op, status).Inc()
	m.apiDuration.WithLabelValues(op).Observe(float64(duration.Milliseconds()))
}

func (m *Metrics) ObserveTruncation(requested, sent int) {
	if requested > sent {
		m.hydrateTruncated.Inc()
	}
}

func (m *Metrics) PipelineFinished(outcome string) {
	m.pipelines.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StaleDiscarded(stage string) {
	m.staleResponses.WithLabelValues(stage).Inc()
}

func (m *Metrics) UpdateHandled(kind string) {
	m.updates.WithLabelValues(kind).Inc()
}
