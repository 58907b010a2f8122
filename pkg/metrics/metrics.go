package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokensIssued counts action tokens issued (or re-issued) by type.
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhub_action_tokens_issued_total",
			Help: "Total number of action tokens issued",
		},
		[]string{"type"},
	)

	// TokenRedemptions counts redemption attempts by type and result (success|invalid).
	TokenRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhub_action_token_redemptions_total",
			Help: "Total number of action token redemption attempts",
		},
		[]string{"type", "result"},
	)

	// AuthzDecisions counts group role matrix evaluations by action and outcome (allow|deny).
	AuthzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhub_authz_decisions_total",
			Help: "Total number of group authorization decisions",
		},
		[]string{"action", "result"},
	)

	// TaskTransitions counts lifecycle transitions applied to tasks and sub-tasks.
	TaskTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhub_task_transitions_total",
			Help: "Total number of task lifecycle transitions",
		},
		[]string{"kind", "transition"},
	)

	// MailDeliveries counts outbound notification attempts by transport and result.
	MailDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhub_mail_deliveries_total",
			Help: "Total number of outbound mail attempts",
		},
		[]string{"transport", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskhub_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
