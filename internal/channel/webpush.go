package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// VAPIDConfig holds the application server keys for web push.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// WebPushAdapter delivers to browser push subscriptions.
type WebPushAdapter struct {
	client *http.Client
	vapid  VAPIDConfig
	ttl    int
}

func NewWebPushAdapter(client *http.Client, vapid VAPIDConfig) *WebPushAdapter {
	return &WebPushAdapter{client: client, vapid: vapid, ttl: 24 * 60 * 60}
}

func (a *WebPushAdapter) Channel() domain.ChannelType { return domain.ChannelWebPush }

func (a *WebPushAdapter) Validate(ep domain.Endpoint) error {
	if _, err := parseURL(ep.URL, false); err != nil {
		return err
	}
	if ep.P256dh == "" || ep.Auth == "" {
		return fmt.Errorf("%w: push subscription keys are required", domain.ErrValidation)
	}
	return nil
}

func (a *WebPushAdapter) BuildPayload(msg Message) ([]byte, error) {
	return buildPushPayload(msg)
}

func (a *WebPushAdapter) Send(ctx context.Context, ep domain.Endpoint, payload []byte) Result {
	sub := &webpush.Subscription{
		Endpoint: ep.URL,
		Keys:     webpush.Keys{Auth: ep.Auth, P256dh: ep.P256dh},
	}

	start := time.Now()
	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		HTTPClient:      a.client,
		Subscriber:      a.vapid.Subject,
		VAPIDPublicKey:  a.vapid.PublicKey,
		VAPIDPrivateKey: a.vapid.PrivateKey,
		TTL:             a.ttl,
		Urgency:         urgencyFor(payload),
	})
	if err != nil {
		return failure(fmt.Errorf("sending web push: %w", err), false, 0, time.Since(start))
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	latency := time.Since(start)

	r := httpResponse{status: resp.StatusCode, body: string(body)}
	if !success(resp.StatusCode) {
		return failure(statusError(r), gone(resp.StatusCode), resp.StatusCode, latency)
	}
	return Result{
		Success:    true,
		MessageID:  resp.Header.Get("Location"),
		StatusCode: resp.StatusCode,
		Latency:    latency,
	}
}

// urgencyFor reads the injected priority back out of a rendered payload.
func urgencyFor(payload []byte) webpush.Urgency {
	switch pushPriority(payload) {
	case domain.PriorityCritical, domain.PriorityHigh:
		return webpush.UrgencyHigh
	case domain.PriorityLow:
		return webpush.UrgencyLow
	default:
		return webpush.UrgencyNormal
	}
}
