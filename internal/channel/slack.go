package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// Slack responds with these bodies when a webhook is permanently dead.
var slackDeadHookBodies = map[string]bool{
	"invalid_token":       true,
	"no_service":          true,
	"no_team":             true,
	"no_active_hooks":     true,
	"channel_not_found":   true,
	"channel_is_archived": true,
	"team_disabled":       true,
}

// SlackAdapter posts to Slack incoming webhooks.
type SlackAdapter struct {
	client      *http.Client
	validateURL func(string) error
}

func NewSlackAdapter(client *http.Client) *SlackAdapter {
	return &SlackAdapter{client: client, validateURL: ValidateSlackURL}
}

// ValidateSlackURL accepts https://hooks.slack.com/services/... only.
func ValidateSlackURL(raw string) error {
	u, err := parseURL(raw, true)
	if err != nil {
		return err
	}
	if !strings.EqualFold(u.Host, "hooks.slack.com") || !strings.HasPrefix(u.Path, "/services/") {
		return fmt.Errorf("%w: not a Slack incoming webhook url (want https://hooks.slack.com/services/...)", domain.ErrValidation)
	}
	return nil
}

func (a *SlackAdapter) Channel() domain.ChannelType { return domain.ChannelSlack }

func (a *SlackAdapter) Validate(ep domain.Endpoint) error {
	return a.validateURL(ep.URL)
}

func (a *SlackAdapter) BuildPayload(msg Message) ([]byte, error) {
	msg = renderMessage(msg)
	var payload map[string]any
	if msg.RichCard {
		payload = slackBlocks(msg)
	} else {
		payload = slackAttachment(msg)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling slack payload: %w", err)
	}
	return b, nil
}

func slackAttachment(msg Message) map[string]any {
	att := map[string]any{
		"color":    "#" + ThemeColor(msg.Type),
		"title":    msg.Title,
		"text":     msg.Body,
		"fallback": msg.Title,
		"footer":   fmt.Sprintf("%s | priority %s", msg.Type, msg.Priority),
		"ts":       msg.SentAt.Unix(),
	}
	if msg.URL != "" {
		att["title_link"] = msg.URL
	}
	if len(msg.Facts) > 0 {
		fields := make([]map[string]any, 0, len(msg.Facts))
		for _, f := range msg.Facts {
			fields = append(fields, map[string]any{"title": f.Name, "value": f.Value, "short": len(f.Value) <= 40})
		}
		att["fields"] = fields
	}
	if actions := cardActions(msg); len(actions) > 0 {
		buttons := make([]map[string]any, 0, len(actions))
		for _, act := range actions {
			buttons = append(buttons, map[string]any{"type": "button", "text": act.Title, "url": act.URL})
		}
		att["actions"] = buttons
	}
	return map[string]any{
		"text":        msg.Title,
		"attachments": []any{att},
	}
}

func slackBlocks(msg Message) map[string]any {
	blocks := []any{
		map[string]any{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": msg.Title},
		},
	}
	if msg.Body != "" {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": msg.Body},
		})
	}
	if len(msg.Facts) > 0 {
		fields := make([]any, 0, len(msg.Facts))
		for _, f := range msg.Facts {
			fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*%s*\n%s", f.Name, f.Value)})
		}
		blocks = append(blocks, map[string]any{"type": "section", "fields": fields})
	}
	if actions := cardActions(msg); len(actions) > 0 {
		elems := make([]any, 0, len(actions))
		for _, act := range actions {
			elems = append(elems, map[string]any{
				"type": "button",
				"text": map[string]any{"type": "plain_text", "text": act.Title},
				"url":  act.URL,
			})
		}
		blocks = append(blocks, map[string]any{"type": "actions", "elements": elems})
	}
	blocks = append(blocks, map[string]any{
		"type": "context",
		"elements": []any{map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("%s | priority %s | <!date^%d^{date_short_pretty} {time}|%s>",
				msg.Type, msg.Priority, msg.SentAt.Unix(), msg.SentAt.UTC().Format("2006-01-02 15:04 UTC")),
		}},
	})
	return map[string]any{
		"text":   msg.Title,
		"blocks": blocks,
	}
}

func (a *SlackAdapter) Send(ctx context.Context, ep domain.Endpoint, payload []byte) Result {
	if err := a.validateURL(ep.URL); err != nil {
		return failure(err, true, 0, 0)
	}
	resp, latency, err := post(ctx, a.client, ep.URL, payload, nil)
	if err != nil {
		return failure(fmt.Errorf("posting to slack: %w", err), false, 0, latency)
	}
	if !success(resp.status) {
		dead := gone(resp.status) || slackDeadHookBodies[strings.TrimSpace(resp.body)]
		return failure(statusError(resp), dead, resp.status, latency)
	}
	return Result{Success: true, MessageID: uuid.NewString(), StatusCode: resp.status, Latency: latency}
}
