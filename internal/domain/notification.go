package domain

import "time"

// NotificationType identifies the business event behind a notification.
type NotificationType string

const (
	TypeReportGenerated  NotificationType = "report_generated"
	TypeReportSubmitted  NotificationType = "report_submitted"
	TypeReportApproved   NotificationType = "report_approved"
	TypeReportRejected   NotificationType = "report_rejected"
	TypeWorkflowAssigned NotificationType = "workflow_assigned"
	TypeWorkflowDeadline NotificationType = "workflow_deadline"
	TypeCommentAdded     NotificationType = "comment_added"
	TypeSystemAlert      NotificationType = "system_alert"
)

// DeliveryChannel is a per-user preference channel.
type DeliveryChannel string

const (
	DeliveryEmail    DeliveryChannel = "email"
	DeliveryRealtime DeliveryChannel = "realtime"
	DeliveryPush     DeliveryChannel = "push"
	DeliverySMS      DeliveryChannel = "sms"
)

// Recipient is a user addressed directly by email and in-app delivery.
type Recipient struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// ReportNotificationContext carries the report and recipient fields needed
// to notify someone about a report event.
type ReportNotificationContext struct {
	ReportID       string     `json:"report_id"`
	Title          string     `json:"title"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	RecipientID    string     `json:"recipient_id"`
	RecipientName  string     `json:"recipient_name"`
	RecipientEmail string     `json:"recipient_email"`
	Department     string     `json:"department,omitempty"`
}
