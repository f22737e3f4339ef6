// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total number of LLM chat requests by provider and outcome",
		},
		[]string{"provider", "model", "status"},
	)

	LLMFailovers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_failovers_total",
			Help: "Total number of failovers from primary to backup provider",
		},
		[]string{"primary", "backup"},
	)

	LLMCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_cost_usd_total",
			Help: "Cumulative LLM spend in USD by merchant and provider",
		},
		[]string{"merchant", "provider"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Cumulative token usage by provider and direction",
		},
		[]string{"provider", "direction"},
	)

	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_processed_total",
			Help: "Inbound messages processed by resolved intent",
		},
		[]string{"intent"},
	)

	MessageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "message_processing_duration_seconds",
			Help: "Duration of one conversation turn end to end",
		},
		[]string{"intent"},
	)

	HandoffTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handoff_transitions_total",
			Help: "Handoff state transitions by from/to status",
		},
		[]string{"from", "to"},
	)

	SchedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_runs_total",
			Help: "Completed scheduled job runs",
		},
		[]string{"job"},
	)

	SchedulerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_errors_total",
			Help: "Per-conversation failures inside scheduled job batches",
		},
		[]string{"job"},
	)

	BudgetAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budget_alerts_total",
			Help: "Budget threshold alerts raised",
		},
		[]string{"threshold"},
	)

	HybridExpiryParseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hybrid_expiry_parse_failures_total",
			Help: "Hybrid-mode expiry timestamps that failed to parse (fail-open path)",
		},
	)

	RateLimitTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_timeouts_total",
			Help: "Catalog rate limiter acquire timeouts by merchant",
		},
		[]string{"merchant"},
	)
)
