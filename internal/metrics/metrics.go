// Package metrics exposes Prometheus instrumentation for the support desk.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ConversationsStarted *prometheus.CounterVec
	Transitions          *prometheus.CounterVec
	Outcomes             *prometheus.CounterVec
	Generations          *prometheus.CounterVec
	GenerationSeconds    *prometheus.HistogramVec
	ActiveSessions       prometheus.Gauge
	StreamConnections    prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ConversationsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderdesk_conversations_started_total",
				Help: "Conversations started, by category",
			},
			[]string{"category"},
		),
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderdesk_stage_transitions_total",
				Help: "Processed user inputs, by stage before and after",
			},
			[]string{"from", "to"},
		),
		Outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderdesk_conversation_outcomes_total",
				Help: "Conversations reaching a terminal state",
			},
			[]string{"outcome"}, // resolved, escalated
		),
		Generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderdesk_generations_total",
				Help: "Text generation attempts, by provider and result",
			},
			[]string{"provider", "result"}, // result: ok, fallback
		),
		GenerationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orderdesk_generation_seconds",
				Help:    "Latency of text generation calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orderdesk_sessions",
			Help: "Conversations held in the session store",
		}),
		StreamConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orderdesk_stream_connections",
			Help: "Open WebSocket chat connections",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ConversationStarted counts a new conversation.
func (m *Metrics) ConversationStarted(category string) {
	if m == nil {
		return
	}
	m.ConversationsStarted.WithLabelValues(category).Inc()
}

// Transition counts a processed input and any terminal outcome.
func (m *Metrics) Transition(from, to string, resolved, escalated bool) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
	if resolved {
		m.Outcomes.WithLabelValues("resolved").Inc()
	}
	if escalated {
		m.Outcomes.WithLabelValues("escalated").Inc()
	}
}

// SetSessions records the store size.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// StreamOpened counts an accepted WebSocket connection.
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.StreamConnections.Inc()
}

// StreamClosed counts a finished WebSocket connection.
func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.StreamConnections.Dec()
}

// ObserveGeneration implements llm.Observer.
func (m *Metrics) ObserveGeneration(provider string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "fallback"
	}
	m.Generations.WithLabelValues(provider, result).Inc()
	m.GenerationSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}
