// Package metrics holds the Prometheus instruments for clawcord.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	// Registry owns these metrics; the ops server exposes it on /metrics.
	Registry *prometheus.Registry

	gatewayEvents      *prometheus.CounterVec
	messagesIgnored    *prometheus.CounterVec
	commands           *prometheus.CounterVec
	messagesSent       *prometheus.CounterVec
	handlerFailures    *prometheus.CounterVec
	completions        *prometheus.CounterVec
	completionDuration prometheus.Histogram
	tokensUsed         *prometheus.CounterVec
}

// New creates a private registry so repeated construction (tests) never
// panics on duplicate registration.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		gatewayEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawcord_gateway_events_total",
				Help: "Gateway events dispatched, by kind.",
			},
			[]string{"kind"},
		),
		messagesIgnored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawcord_messages_ignored_total",
				Help: "Messages dropped by the filter pipeline, by reason.",
			},
			[]string{"reason"},
		),
		commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawcord_commands_total",
				Help: "Prefixed commands seen, by command and outcome.",
			},
			[]string{"command", "outcome"},
		),
		messagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawcord_messages_sent_total",
				Help: "Messages sent to the gateway, by status.",
			},
			[]string{"status"},
		),
		handlerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawcord_handler_failures_total",
				Help: "Handler invocations that returned an error or panicked.",
			},
			[]string{"kind", "type"},
		),
		completions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawcord_completions_total",
				Help: "Completion requests, by status.",
			},
			[]string{"status"},
		),
		completionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "clawcord_completion_duration_seconds",
				Help:    "Completion request latency.",
				Buckets: prometheus.DefBuckets,
			},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawcord_llm_tokens_total",
				Help: "LLM tokens consumed.",
			},
			[]string{"type"},
		),
	}
}

func (m *Metrics) IncrGatewayEvent(kind string) {
	m.gatewayEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrIgnored(reason string) {
	m.messagesIgnored.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrCommand(command, outcome string) {
	m.commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) IncrSent(status string) {
	m.messagesSent.WithLabelValues(status).Inc()
}

// IncrHandlerFailure counts a failed invocation; failureType is "error" or "panic".
func (m *Metrics) IncrHandlerFailure(kind, failureType string) {
	m.handlerFailures.WithLabelValues(kind, failureType).Inc()
}

// RecordCompletion records one completion request outcome and latency.
func (m *Metrics) RecordCompletion(status string, d time.Duration) {
	m.completions.WithLabelValues(status).Inc()
	m.completionDuration.Observe(d.Seconds())
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int64) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}
