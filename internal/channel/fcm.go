package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// FCMClient is the part of *messaging.Client the adapter uses.
type FCMClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMAdapter delivers to Firebase Cloud Messaging device tokens. The token
// is stored in the endpoint URL field.
type FCMAdapter struct {
	client      FCMClient
	isPermanent func(error) bool
}

func NewFCMAdapter(client FCMClient) *FCMAdapter {
	return &FCMAdapter{client: client, isPermanent: permanentFCMError}
}

// NewFCMClient builds a messaging client from a service account file.
func NewFCMClient(ctx context.Context, credentialsFile string) (*messaging.Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating messaging client: %w", err)
	}
	return client, nil
}

func permanentFCMError(err error) bool {
	return messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err)
}

func (a *FCMAdapter) Channel() domain.ChannelType { return domain.ChannelFCM }

func (a *FCMAdapter) Validate(ep domain.Endpoint) error {
	if ep.URL == "" {
		return fmt.Errorf("%w: fcm token is required", domain.ErrValidation)
	}
	return nil
}

func (a *FCMAdapter) BuildPayload(msg Message) ([]byte, error) {
	return buildPushPayload(msg)
}

func (a *FCMAdapter) Send(ctx context.Context, ep domain.Endpoint, payload []byte) Result {
	p, err := decodePushPayload(payload)
	if err != nil {
		return failure(err, false, 0, 0)
	}

	androidPriority := "normal"
	if p.RequireInteraction {
		androidPriority = "high"
	}
	m := &messaging.Message{
		Token: ep.URL,
		Notification: &messaging.Notification{
			Title:    p.Title,
			Body:     p.Body,
			ImageURL: p.Image,
		},
		Data: stringifyData(p.Data),
		Android: &messaging.AndroidConfig{
			Priority: androidPriority,
			Notification: &messaging.AndroidNotification{
				Tag:   p.Tag,
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}
	if p.URL != "" {
		m.Webpush = &messaging.WebpushConfig{
			FCMOptions: &messaging.WebpushFCMOptions{Link: p.URL},
		}
	}

	start := time.Now()
	id, err := a.client.Send(ctx, m)
	latency := time.Since(start)
	if err != nil {
		return failure(fmt.Errorf("sending fcm message: %w", err), a.isPermanent(err), 0, latency)
	}
	return Result{Success: true, MessageID: id, Latency: latency}
}

// stringifyData converts values to the string map FCM requires.
func stringifyData(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case nil:
			out[k] = ""
		default:
			b, _ := json.Marshal(v)
			out[k] = string(b)
		}
	}
	return out
}
