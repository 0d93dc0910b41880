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

// TeamsAdapter posts to Microsoft Teams incoming webhooks and workflow
// triggers.
type TeamsAdapter struct {
	client      *http.Client
	validateURL func(string) error
}

func NewTeamsAdapter(client *http.Client) *TeamsAdapter {
	return &TeamsAdapter{client: client, validateURL: ValidateTeamsURL}
}

// ValidateTeamsURL accepts the Teams connector and Power Automate webhook hosts.
func ValidateTeamsURL(raw string) error {
	u, err := parseURL(raw, true)
	if err != nil {
		return err
	}
	host := strings.ToLower(u.Host)
	switch {
	case strings.HasSuffix(host, ".webhook.office.com"):
	case host == "outlook.office.com" && strings.HasPrefix(u.Path, "/webhook"):
	case strings.HasSuffix(host, ".logic.azure.com"):
	default:
		return fmt.Errorf("%w: not a Microsoft Teams webhook url", domain.ErrValidation)
	}
	return nil
}

func (a *TeamsAdapter) Channel() domain.ChannelType { return domain.ChannelTeams }

func (a *TeamsAdapter) Validate(ep domain.Endpoint) error {
	return a.validateURL(ep.URL)
}

func (a *TeamsAdapter) BuildPayload(msg Message) ([]byte, error) {
	msg = renderMessage(msg)
	var payload map[string]any
	if msg.RichCard {
		payload = teamsAdaptiveCard(msg)
	} else {
		payload = teamsMessageCard(msg)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling teams payload: %w", err)
	}
	return b, nil
}

func teamsMessageCard(msg Message) map[string]any {
	card := map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": ThemeColor(msg.Type),
		"summary":    msg.Title,
		"title":      msg.Title,
		"text":       msg.Body,
	}
	if len(msg.Facts) > 0 {
		facts := make([]map[string]string, 0, len(msg.Facts))
		for _, f := range msg.Facts {
			facts = append(facts, map[string]string{"name": f.Name, "value": f.Value})
		}
		card["sections"] = []any{map[string]any{"facts": facts}}
	}
	if actions := cardActions(msg); len(actions) > 0 {
		potential := make([]any, 0, len(actions))
		for _, act := range actions {
			potential = append(potential, map[string]any{
				"@type":   "OpenUri",
				"name":    act.Title,
				"targets": []map[string]string{{"os": "default", "uri": act.URL}},
			})
		}
		card["potentialAction"] = potential
	}
	return card
}

func teamsAdaptiveCard(msg Message) map[string]any {
	color := "Default"
	switch msg.Type {
	case domain.TypeReportApproved:
		color = "Good"
	case domain.TypeReportRejected, domain.TypeSystemAlert:
		color = "Attention"
	case domain.TypeWorkflowDeadline:
		color = "Warning"
	}

	body := []any{
		map[string]any{"type": "TextBlock", "text": msg.Title, "weight": "Bolder", "size": "Medium", "color": color, "wrap": true},
	}
	if msg.Body != "" {
		body = append(body, map[string]any{"type": "TextBlock", "text": msg.Body, "wrap": true})
	}
	if len(msg.Facts) > 0 {
		facts := make([]map[string]string, 0, len(msg.Facts))
		for _, f := range msg.Facts {
			facts = append(facts, map[string]string{"title": f.Name, "value": f.Value})
		}
		body = append(body, map[string]any{"type": "FactSet", "facts": facts})
	}
	body = append(body, map[string]any{
		"type":     "TextBlock",
		"text":     fmt.Sprintf("%s | priority %s | %s", msg.Type, msg.Priority, msg.SentAt.UTC().Format("2006-01-02 15:04 UTC")),
		"isSubtle": true,
		"size":     "Small",
		"wrap":     true,
	})

	content := map[string]any{
		"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
		"type":    "AdaptiveCard",
		"version": "1.4",
		"body":    body,
	}
	if actions := cardActions(msg); len(actions) > 0 {
		acts := make([]any, 0, len(actions))
		for _, act := range actions {
			acts = append(acts, map[string]any{"type": "Action.OpenUrl", "title": act.Title, "url": act.URL})
		}
		content["actions"] = acts
	}
	return map[string]any{
		"type": "message",
		"attachments": []any{map[string]any{
			"contentType": "application/vnd.microsoft.card.adaptive",
			"content":     content,
		}},
	}
}

func (a *TeamsAdapter) Send(ctx context.Context, ep domain.Endpoint, payload []byte) Result {
	if err := a.validateURL(ep.URL); err != nil {
		return failure(err, true, 0, 0)
	}
	resp, latency, err := post(ctx, a.client, ep.URL, payload, nil)
	if err != nil {
		return failure(fmt.Errorf("posting to teams: %w", err), false, 0, latency)
	}
	if !success(resp.status) {
		return failure(statusError(resp), gone(resp.status), resp.status, latency)
	}
	// Legacy connectors answer 200 with an error string when the downstream call failed.
	if strings.Contains(resp.body, "returned HTTP error") {
		return failure(fmt.Errorf("teams webhook: %s", strings.TrimSpace(resp.body)), false, resp.status, latency)
	}
	return Result{Success: true, MessageID: uuid.NewString(), StatusCode: resp.status, Latency: latency}
}
