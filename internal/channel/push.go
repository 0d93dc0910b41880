package channel

import (
	"encoding/json"
	"fmt"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

const (
	DefaultIcon  = "/icons/icon-192x192.png"
	DefaultBadge = "/icons/badge-72x72.png"
)

type pushPayload struct {
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Icon               string         `json:"icon"`
	Badge              string         `json:"badge"`
	Image              string         `json:"image,omitempty"`
	URL                string         `json:"url,omitempty"`
	Tag                string         `json:"tag,omitempty"`
	RequireInteraction bool           `json:"requireInteraction,omitempty"`
	Actions            []pushAction   `json:"actions,omitempty"`
	Data               map[string]any `json:"data"`
}

type pushAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	URL    string `json:"url,omitempty"`
}

// buildPushPayload renders the JSON shared by web push and FCM. Timestamp,
// priority and type are injected into the data block after template
// rendering.
func buildPushPayload(msg Message) ([]byte, error) {
	msg = renderMessage(msg)
	data := make(map[string]any, len(msg.Data)+5)
	for k, v := range msg.Data {
		data[k] = v
	}
	data["timestamp"] = msg.SentAt.UTC().UnixMilli()
	data["priority"] = msg.Priority.String()
	data["type"] = string(msg.Type)
	if msg.ID != "" {
		data["notification_id"] = msg.ID
	}
	if msg.URL != "" {
		data["url"] = msg.URL
	}

	p := pushPayload{
		Title:              msg.Title,
		Body:               msg.Body,
		Icon:               msg.Icon,
		Badge:              msg.Badge,
		Image:              msg.Image,
		URL:                msg.URL,
		Tag:                msg.Tag,
		RequireInteraction: msg.Priority >= domain.PriorityHigh,
		Data:               data,
	}
	if p.Icon == "" {
		p.Icon = DefaultIcon
	}
	if p.Badge == "" {
		p.Badge = DefaultBadge
	}
	if p.Tag == "" {
		p.Tag = string(msg.Type)
	}
	for i, a := range msg.Actions {
		p.Actions = append(p.Actions, pushAction{Action: fmt.Sprintf("action_%d", i), Title: a.Title, URL: a.URL})
	}

	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling push payload: %w", err)
	}
	return b, nil
}

func decodePushPayload(payload []byte) (pushPayload, error) {
	var p pushPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, fmt.Errorf("decoding push payload: %w", err)
	}
	return p, nil
}

func pushPriority(payload []byte) domain.Priority {
	p, err := decodePushPayload(payload)
	if err != nil {
		return domain.PriorityMedium
	}
	name, _ := p.Data["priority"].(string)
	prio, err := domain.ParsePriority(name)
	if err != nil {
		return domain.PriorityMedium
	}
	return prio
}
