package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// WebhookAdapter posts a signed JSON envelope to an arbitrary URL.
type WebhookAdapter struct {
	client        *http.Client
	allowInsecure bool
}

func NewWebhookAdapter(client *http.Client, allowInsecure bool) *WebhookAdapter {
	return &WebhookAdapter{client: client, allowInsecure: allowInsecure}
}

// UnknownEvent is the X-Webhook-Event of a payload that is not a webhook
// envelope.
const UnknownEvent domain.NotificationType = "unknown"

type webhookEnvelope struct {
	ID        string                  `json:"id"`
	Event     domain.NotificationType `json:"event"`
	Priority  domain.Priority         `json:"priority"`
	Timestamp time.Time               `json:"timestamp"`
	Data      webhookData             `json:"data"`
}

type webhookData struct {
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	URL     string         `json:"url,omitempty"`
	Facts   []Fact         `json:"facts,omitempty"`
	Actions []Action       `json:"actions,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

func (a *WebhookAdapter) Channel() domain.ChannelType { return domain.ChannelWebhook }

func (a *WebhookAdapter) Validate(ep domain.Endpoint) error {
	_, err := parseURL(ep.URL, !a.allowInsecure)
	return err
}

func (a *WebhookAdapter) BuildPayload(msg Message) ([]byte, error) {
	msg = renderMessage(msg)
	env := webhookEnvelope{
		ID:        msg.ID,
		Event:     msg.Type,
		Priority:  msg.Priority,
		Timestamp: msg.SentAt.UTC(),
		Data: webhookData{
			Title:   msg.Title,
			Body:    msg.Body,
			URL:     msg.URL,
			Facts:   msg.Facts,
			Actions: msg.Actions,
			Extra:   msg.Data,
		},
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshaling webhook payload: %w", err)
	}
	return b, nil
}

func (a *WebhookAdapter) Send(ctx context.Context, ep domain.Endpoint, payload []byte) Result {
	if err := a.Validate(ep); err != nil {
		return failure(err, true, 0, 0)
	}

	// Headers come from the envelope. A payload that is not one is still
	// delivered and signed, tagged with UnknownEvent.
	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		env = webhookEnvelope{Event: UnknownEvent}
	}
	deliveryID := env.ID
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}

	headers := map[string]string{
		"X-Webhook-Signature": ComputeSignature(payload, ep.Secret),
		"X-Webhook-Event":     string(env.Event),
		"X-Webhook-ID":        deliveryID,
		"X-Webhook-Timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}
	resp, latency, err := post(ctx, a.client, ep.URL, payload, headers)
	if err != nil {
		return failure(fmt.Errorf("posting webhook: %w", err), false, 0, latency)
	}
	if !success(resp.status) {
		return failure(statusError(resp), gone(resp.status), resp.status, latency)
	}
	return Result{Success: true, MessageID: deliveryID, StatusCode: resp.status, Latency: latency}
}

// ComputeSignature returns the hex HMAC-SHA256 of payload keyed by secret.
func ComputeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
