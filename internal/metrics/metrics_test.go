package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

func TestObserveDelivery(t *testing.T) {
	before := testutil.ToFloat64(deliveriesTotal.WithLabelValues("slack", OutcomeSuccess))
	ObserveDelivery(domain.ChannelSlack, OutcomeSuccess, 120*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(deliveriesTotal.WithLabelValues("slack", OutcomeSuccess)))
}

func TestObserveDelivery_RateLimited(t *testing.T) {
	before := testutil.ToFloat64(rateLimitedTotal.WithLabelValues("webhook"))
	ObserveDelivery(domain.ChannelWebhook, OutcomeRateLimited, 0)
	assert.Equal(t, before+1, testutil.ToFloat64(rateLimitedTotal.WithLabelValues("webhook")))
}

func TestRetrySucceeded(t *testing.T) {
	before := testutil.ToFloat64(retrySuccessTotal)
	RetrySucceeded()
	assert.Equal(t, before+1, testutil.ToFloat64(retrySuccessTotal))
}
