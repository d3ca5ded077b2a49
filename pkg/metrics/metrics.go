// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TurnsTotal tracks processed conversation turns by outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_turns_total",
			Help: "Total conversation turns processed",
		},
		[]string{"outcome"},
	)

	// TurnDuration tracks end-to-end turn processing duration.
	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "advisor_turn_duration_seconds",
			Help:    "End-to-end turn processing duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
	)

	// AgentRunsTotal tracks agent invocations by agent and outcome.
	AgentRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_agent_runs_total",
			Help: "Total agent invocations",
		},
		[]string{"agent", "outcome"},
	)

	// AgentDuration tracks per-agent execution duration.
	AgentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "advisor_agent_duration_seconds",
			Help:    "Agent execution duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"agent"},
	)

	// RoutingMatches tracks routing category matches.
	RoutingMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_routing_matches_total",
			Help: "Routing category matches",
		},
		[]string{"category"},
	)

	// ContextBuildsTotal tracks context snapshot builds.
	ContextBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_context_builds_total",
			Help: "User context snapshot builds",
		},
		[]string{"outcome"},
	)

	// InsightsEmitted tracks persisted insights by type.
	InsightsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_insights_emitted_total",
			Help: "Insights persisted to the memory store",
		},
		[]string{"type"},
	)

	// LLMRequestDuration tracks completion call duration.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM completion request duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// MessagesTotal tracks total messages appended to the memory store.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_messages_total",
			Help: "Total messages appended",
		},
		[]string{"role"},
	)

	// SessionsActive tracks currently open sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "advisor_sessions_active",
			Help: "Number of open conversation sessions",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordAgentRun records metrics for a single agent invocation.
func RecordAgentRun(agent string, success bool, seconds float64) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	AgentRunsTotal.WithLabelValues(agent, outcome).Inc()
	AgentDuration.WithLabelValues(agent).Observe(seconds)
}

// RecordLLMRequest records metrics for a completion call.
func RecordLLMRequest(model, status string, seconds float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(model, status).Observe(seconds)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}
