// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActivationsTotal counts client activation attempts by plan and outcome.
	ActivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "entitlekit",
		Name:      "activations_total",
		Help:      "Client activation requests by plan and outcome.",
	}, []string{"plan", "outcome"})

	// TrialBlocksTotal counts trials refused by the abuse guard, by matching signal.
	TrialBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "entitlekit",
		Name:      "trial_blocks_total",
		Help:      "Free-trial requests refused because an identity signal was already used.",
	}, []string{"signal"})

	// WebhookRequestsTotal counts webhook deliveries by event type and HTTP status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "entitlekit",
		Name:      "webhook_requests_total",
		Help:      "Payment-provider webhook deliveries by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "entitlekit",
		Name:      "webhook_duration_seconds",
		Help:      "Webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// ExpiredTotal counts records moved to inactive by the expiry sweep.
	ExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "entitlekit",
		Name:      "expired_total",
		Help:      "Entitlement records moved to inactive after their end date.",
	})
)
