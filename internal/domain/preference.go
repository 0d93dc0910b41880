package domain

import "time"

// ScheduleMode controls how a user wants a notification type batched.
type ScheduleMode string

const (
	ScheduleImmediate    ScheduleMode = "immediate"
	ScheduleDailyDigest  ScheduleMode = "daily_digest"
	ScheduleWeeklyDigest ScheduleMode = "weekly_digest"
)

func (m ScheduleMode) Valid() bool {
	switch m {
	case ScheduleImmediate, ScheduleDailyDigest, ScheduleWeeklyDigest:
		return true
	}
	return false
}

// NotificationPreference is a user's channel settings for one notification
// type. At most one row exists per (UserID, NotificationType).
type NotificationPreference struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	NotificationType NotificationType `json:"notification_type"`
	EmailEnabled     bool             `json:"email_enabled"`
	RealtimeEnabled  bool             `json:"realtime_enabled"`
	PushEnabled      bool             `json:"push_enabled"`
	SMSEnabled       bool             `json:"sms_enabled"`
	MinimumPriority  Priority         `json:"minimum_priority"`
	QuietHoursStart  *string          `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd    *string          `json:"quiet_hours_end,omitempty"`
	Timezone         string           `json:"timezone,omitempty"`
	ScheduleMode     ScheduleMode     `json:"schedule_mode"`
	IsDefault        bool             `json:"is_default,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Enabled reports the toggle for a preference channel.
func (p NotificationPreference) Enabled(ch DeliveryChannel) bool {
	switch ch {
	case DeliveryEmail:
		return p.EmailEnabled
	case DeliveryRealtime:
		return p.RealtimeEnabled
	case DeliveryPush:
		return p.PushEnabled
	case DeliverySMS:
		return p.SMSEnabled
	}
	return false
}

// PreferenceUpdate is a partial update; only non-nil fields change.
type PreferenceUpdate struct {
	EmailEnabled    *bool         `json:"email_enabled,omitempty"`
	RealtimeEnabled *bool         `json:"realtime_enabled,omitempty"`
	PushEnabled     *bool         `json:"push_enabled,omitempty"`
	SMSEnabled      *bool         `json:"sms_enabled,omitempty"`
	MinimumPriority *Priority     `json:"minimum_priority,omitempty"`
	QuietHoursStart *string       `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   *string       `json:"quiet_hours_end,omitempty"`
	Timezone        *string       `json:"timezone,omitempty"`
	ScheduleMode    *ScheduleMode `json:"schedule_mode,omitempty"`
}

// Apply copies the supplied fields onto p. An empty quiet-hours string
// clears that bound.
func (u PreferenceUpdate) Apply(p *NotificationPreference) {
	if u.EmailEnabled != nil {
		p.EmailEnabled = *u.EmailEnabled
	}
	if u.RealtimeEnabled != nil {
		p.RealtimeEnabled = *u.RealtimeEnabled
	}
	if u.PushEnabled != nil {
		p.PushEnabled = *u.PushEnabled
	}
	if u.SMSEnabled != nil {
		p.SMSEnabled = *u.SMSEnabled
	}
	if u.MinimumPriority != nil {
		p.MinimumPriority = *u.MinimumPriority
	}
	if u.QuietHoursStart != nil {
		p.QuietHoursStart = emptyToNil(*u.QuietHoursStart)
	}
	if u.QuietHoursEnd != nil {
		p.QuietHoursEnd = emptyToNil(*u.QuietHoursEnd)
	}
	if u.Timezone != nil {
		p.Timezone = *u.Timezone
	}
	if u.ScheduleMode != nil {
		p.ScheduleMode = *u.ScheduleMode
	}
}

func emptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
