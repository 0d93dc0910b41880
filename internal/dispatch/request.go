package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/channel"
	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// SendRequest is one logical notification plus the selection of who gets it.
type SendRequest struct {
	Type         domain.NotificationType `json:"type"`
	Priority     domain.Priority         `json:"priority"`
	Title        string                  `json:"title"`
	Body         string                  `json:"body"`
	URL          string                  `json:"url,omitempty"`
	Icon         string                  `json:"icon,omitempty"`
	Badge        string                  `json:"badge,omitempty"`
	Image        string                  `json:"image,omitempty"`
	Tag          string                  `json:"tag,omitempty"`
	Data         map[string]any          `json:"data,omitempty"`
	Facts        []channel.Fact          `json:"facts,omitempty"`
	Actions      []channel.Action        `json:"actions,omitempty"`
	RichCard     bool                    `json:"rich_card,omitempty"`
	TemplateVars map[string]string       `json:"template_vars,omitempty"`

	// Endpoint selection. Dimensions combine with AND.
	EndpointIDs []string             `json:"endpoint_ids,omitempty"`
	UserIDs     []string             `json:"user_ids,omitempty"`
	Channels    []domain.ChannelType `json:"channels,omitempty"`
	DeviceTypes []string             `json:"device_types,omitempty"`
	Category    string               `json:"category,omitempty"`
	RecentOnly  bool                 `json:"recent_only,omitempty"`

	// Direct recipients get email and in-app delivery.
	Recipients []domain.Recipient `json:"recipients,omitempty"`
	Groups     []string           `json:"groups,omitempty"`
	Broadcast  bool               `json:"broadcast,omitempty"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	// SenderID is never notified about their own action.
	SenderID string `json:"sender_id,omitempty"`
}

func (r *SendRequest) normalize() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if r.Type == "" {
		return fmt.Errorf("%w: type is required", domain.ErrValidation)
	}
	if r.Priority == 0 {
		r.Priority = domain.PriorityMedium
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("%w: invalid priority %d", domain.ErrValidation, int(r.Priority))
	}
	for _, ch := range r.Channels {
		if !ch.Valid() {
			return fmt.Errorf("%w: unknown channel %q", domain.ErrValidation, ch)
		}
	}
	return nil
}

func (r SendRequest) hasEndpointFilter() bool {
	return len(r.EndpointIDs) > 0 || len(r.UserIDs) > 0 || len(r.Channels) > 0 ||
		len(r.DeviceTypes) > 0 || r.Category != "" || r.RecentOnly
}

// targetsEndpoints reports whether stored endpoints are part of the fan-out.
// A request that names only recipients, groups or a broadcast reaches their
// devices and nothing else. A request with no selection at all is a
// system-wide announcement to every eligible endpoint.
func (r SendRequest) targetsEndpoints() bool {
	if r.hasEndpointFilter() {
		return true
	}
	return len(r.Recipients) == 0 && len(r.Groups) == 0 && !r.Broadcast
}

func (r SendRequest) filter(recentWindow time.Duration) domain.EndpointFilter {
	f := domain.EndpointFilter{
		IDs:         r.EndpointIDs,
		UserIDs:     r.UserIDs,
		Channels:    r.Channels,
		DeviceTypes: r.DeviceTypes,
		Category:    r.Category,
	}
	if len(f.IDs) == 0 && len(f.UserIDs) == 0 && len(r.Recipients) > 0 {
		for _, rc := range r.Recipients {
			f.UserIDs = append(f.UserIDs, rc.UserID)
		}
	}
	if r.RecentOnly {
		f.ActiveWithin = recentWindow
	}
	return f
}

func (r SendRequest) message(id string, sentAt time.Time) channel.Message {
	return channel.Message{
		ID:           id,
		Type:         r.Type,
		Priority:     r.Priority,
		Title:        r.Title,
		Body:         r.Body,
		URL:          r.URL,
		Icon:         r.Icon,
		Badge:        r.Badge,
		Image:        r.Image,
		Tag:          r.Tag,
		Data:         r.Data,
		Facts:        r.Facts,
		Actions:      r.Actions,
		RichCard:     r.RichCard,
		TemplateVars: r.TemplateVars,
		SentAt:       sentAt,
	}
}

var reportTitles = map[domain.NotificationType]string{
	domain.TypeReportGenerated:  "Report generated",
	domain.TypeReportSubmitted:  "Report submitted for review",
	domain.TypeReportApproved:   "Report approved",
	domain.TypeReportRejected:   "Report rejected",
	domain.TypeWorkflowAssigned: "Report assigned to you",
	domain.TypeWorkflowDeadline: "Report deadline approaching",
	domain.TypeCommentAdded:     "New comment on report",
}

// ReportRequest builds the request that notifies rc's recipient about a
// report event.
func ReportRequest(rc domain.ReportNotificationContext, t domain.NotificationType, p domain.Priority) SendRequest {
	title, ok := reportTitles[t]
	if !ok {
		title = "Report update"
	}

	facts := []channel.Fact{{Name: "Report", Value: rc.Title}}
	data := map[string]any{"report_id": rc.ReportID}
	if rc.Department != "" {
		facts = append(facts, channel.Fact{Name: "Department", Value: rc.Department})
		data["department"] = rc.Department
	}
	if rc.DueDate != nil {
		due := rc.DueDate.UTC().Format("2006-01-02")
		facts = append(facts, channel.Fact{Name: "Due", Value: due})
		data["due_date"] = due
	}

	return SendRequest{
		Type:     t,
		Priority: p,
		Title:    title + ": {report_title}",
		Body:     "Hi {recipient_name}, there is an update on \"{report_title}\".",
		URL:      "/reports/" + rc.ReportID,
		Tag:      "report-" + rc.ReportID,
		Data:     data,
		Facts:    facts,
		TemplateVars: map[string]string{
			"report_title":   rc.Title,
			"recipient_name": rc.RecipientName,
		},
		Recipients: []domain.Recipient{{
			UserID: rc.RecipientID,
			Name:   rc.RecipientName,
			Email:  rc.RecipientEmail,
		}},
	}
}
