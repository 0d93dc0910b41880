package dispatch

import (
	"time"

	"github.com/Priya8975/notification-dispatch/internal/channel"
	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// RealtimeMessage is the in-app payload pushed to connected clients.
type RealtimeMessage struct {
	NotificationID string                  `json:"notification_id"`
	Type           domain.NotificationType `json:"type"`
	Priority       domain.Priority         `json:"priority"`
	Title          string                  `json:"title"`
	Body           string                  `json:"body"`
	URL            string                  `json:"url,omitempty"`
	Data           map[string]any          `json:"data,omitempty"`
	SentAt         time.Time               `json:"sent_at"`
}

// notifyRealtime pushes the notification to in-app clients. Preference
// checks run before it returns; the pushes themselves run on their own
// goroutine, are at most once and never retried. Failures are logged.
func (s *Service) notifyRealtime(req SendRequest, id string, sentAt time.Time, allowed func(string) map[domain.DeliveryChannel]bool) {
	if s.realtime == nil {
		return
	}
	if len(req.Recipients) == 0 && len(req.Groups) == 0 && !req.Broadcast {
		return
	}

	var users []string
	for _, rc := range req.Recipients {
		if rc.UserID == "" || rc.UserID == req.SenderID {
			continue
		}
		if allowed(rc.UserID)[domain.DeliveryRealtime] {
			users = append(users, rc.UserID)
		}
	}
	groups := append([]string(nil), req.Groups...)
	broadcast := req.Broadcast

	msg := RealtimeMessage{
		NotificationID: id,
		Type:           req.Type,
		Priority:       req.Priority,
		Title:          channel.RenderTemplate(req.Title, req.TemplateVars),
		Body:           channel.RenderTemplate(req.Body, req.TemplateVars),
		URL:            req.URL,
		Data:           req.Data,
		SentAt:         sentAt,
	}
	event := string(req.Type)

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("realtime delivery panicked", "notification_id", id, "panic", r)
			}
		}()

		for _, u := range users {
			if err := s.realtime.NotifyUser(u, event, msg); err != nil {
				s.logger.Warn("realtime delivery failed", "notification_id", id, "user_id", u, "error", err)
			}
		}
		for _, g := range groups {
			if err := s.realtime.NotifyGroup(g, event, msg); err != nil {
				s.logger.Warn("realtime group delivery failed", "notification_id", id, "group", g, "error", err)
			}
		}
		if broadcast {
			if err := s.realtime.BroadcastAll(event, msg); err != nil {
				s.logger.Warn("realtime broadcast failed", "notification_id", id, "error", err)
			}
		}
	}()
}
