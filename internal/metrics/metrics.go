// Package metrics holds the Prometheus collectors for notification delivery.
// They register with the default registry and are served on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// Delivery outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomePermanent   = "permanent"
	OutcomeTransient   = "transient"
	OutcomeRateLimited = "rate_limited"
)

var (
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Total number of endpoint deliveries by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_delivery_duration_seconds",
			Help:    "Latency of the network call for one endpoint delivery",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10, 30},
		},
		[]string{"channel"},
	)

	fanoutTargets = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notification_fanout_targets",
			Help:    "Number of endpoints targeted by one fan-out",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	retrySuccessTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_retry_success_total",
			Help: "Total number of failure records resolved by a retry",
		},
	)

	rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_rate_limited_total",
			Help: "Total number of sends rejected by the per-endpoint rate limit",
		},
		[]string{"channel"},
	)
)

// ObserveDelivery records one delivery outcome. Rate-limited sends never
// reach the network and record no latency.
func ObserveDelivery(ch domain.ChannelType, outcome string, latency time.Duration) {
	deliveriesTotal.WithLabelValues(string(ch), outcome).Inc()
	if outcome == OutcomeRateLimited {
		rateLimitedTotal.WithLabelValues(string(ch)).Inc()
		return
	}
	deliveryDuration.WithLabelValues(string(ch)).Observe(latency.Seconds())
}

func ObserveFanout(targets int) {
	fanoutTargets.Observe(float64(targets))
}

func RetrySucceeded() {
	retrySuccessTotal.Inc()
}
