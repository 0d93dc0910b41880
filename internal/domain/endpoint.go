package domain

import "time"

// ChannelType is the transport an endpoint is reached through.
type ChannelType string

const (
	ChannelWebPush ChannelType = "webpush"
	ChannelFCM     ChannelType = "fcm"
	ChannelSlack   ChannelType = "slack"
	ChannelTeams   ChannelType = "teams"
	ChannelWebhook ChannelType = "webhook"
	ChannelEmail   ChannelType = "email"
)

// PreferenceChannel maps a transport to the user preference channel that
// governs it. Chat and webhook transports are system level and return "".
func (c ChannelType) PreferenceChannel() DeliveryChannel {
	switch c {
	case ChannelWebPush, ChannelFCM:
		return DeliveryPush
	case ChannelEmail:
		return DeliveryEmail
	default:
		return ""
	}
}

func (c ChannelType) Valid() bool {
	switch c {
	case ChannelWebPush, ChannelFCM, ChannelSlack, ChannelTeams, ChannelWebhook, ChannelEmail:
		return true
	}
	return false
}

// Endpoint is a single addressable delivery target: a push-capable device
// registration or a chat/webhook URL.
type Endpoint struct {
	ID                 string          `json:"id"`
	UserID             *string         `json:"user_id,omitempty"`
	Channel            ChannelType     `json:"channel"`
	Name               string          `json:"name,omitempty"`
	Group              string          `json:"group,omitempty"`
	DeviceType         string          `json:"device_type,omitempty"`
	URL                string          `json:"url"`
	P256dh             string          `json:"p256dh,omitempty"`
	Auth               string          `json:"auth,omitempty"`
	Secret             string          `json:"secret,omitempty"`
	IsActive           bool            `json:"is_active"`
	PermissionGranted  bool            `json:"permission_granted"`
	Categories         map[string]bool `json:"categories,omitempty"`
	MinPriority        Priority        `json:"min_priority,omitempty"`
	RateLimitPerMinute int             `json:"rate_limit_per_minute,omitempty"`
	SuccessCount       int             `json:"success_count"`
	FailureCount       int             `json:"failure_count"`
	LastError          *string         `json:"last_error,omitempty"`
	LastUsedAt         *time.Time      `json:"last_used_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Owner returns the owning user id or "" for system-level endpoints.
func (e Endpoint) Owner() string {
	if e.UserID == nil {
		return ""
	}
	return *e.UserID
}

// Eligible reports whether the endpoint may receive fan-out traffic.
func (e Endpoint) Eligible() bool {
	return e.IsActive && e.PermissionGranted
}

// EndpointFilter selects endpoints for a fan-out. Dimensions combine with
// AND; an empty dimension imposes no constraint.
type EndpointFilter struct {
	IDs             []string      `json:"ids,omitempty"`
	UserIDs         []string      `json:"user_ids,omitempty"`
	Channels        []ChannelType `json:"channels,omitempty"`
	DeviceTypes     []string      `json:"device_types,omitempty"`
	Category        string        `json:"category,omitempty"`
	ActiveWithin    time.Duration `json:"active_within,omitempty"`
	IncludeInactive bool          `json:"include_inactive,omitempty"`
}

// EndpointUpdate is a partial update; nil fields are left unchanged.
type EndpointUpdate struct {
	Name               *string         `json:"name,omitempty"`
	Group              *string         `json:"group,omitempty"`
	DeviceType         *string         `json:"device_type,omitempty"`
	IsActive           *bool           `json:"is_active,omitempty"`
	Categories         map[string]bool `json:"categories,omitempty"`
	MinPriority        *Priority       `json:"min_priority,omitempty"`
	RateLimitPerMinute *int            `json:"rate_limit_per_minute,omitempty"`
}

// Apply copies the supplied fields onto the endpoint.
func (u EndpointUpdate) Apply(e *Endpoint) {
	if u.Name != nil {
		e.Name = *u.Name
	}
	if u.Group != nil {
		e.Group = *u.Group
	}
	if u.DeviceType != nil {
		e.DeviceType = *u.DeviceType
	}
	if u.IsActive != nil {
		e.IsActive = *u.IsActive
		if *u.IsActive {
			e.PermissionGranted = true
		}
	}
	if u.Categories != nil {
		if e.Categories == nil {
			e.Categories = make(map[string]bool, len(u.Categories))
		}
		for k, v := range u.Categories {
			e.Categories[k] = v
		}
	}
	if u.MinPriority != nil {
		e.MinPriority = *u.MinPriority
	}
	if u.RateLimitPerMinute != nil {
		e.RateLimitPerMinute = *u.RateLimitPerMinute
	}
}

// CategoryEnabled reports the endpoint's flag for a category. Categories the
// endpoint never set are enabled.
func (e Endpoint) CategoryEnabled(category string) bool {
	enabled, ok := e.Categories[category]
	return !ok || enabled
}

// Matches applies the filter to a single endpoint at time now.
func (f EndpointFilter) Matches(e Endpoint, now time.Time) bool {
	if !f.IncludeInactive && !e.Eligible() {
		return false
	}
	if len(f.IDs) > 0 && !contains(f.IDs, e.ID) {
		return false
	}
	if len(f.UserIDs) > 0 && (e.UserID == nil || !contains(f.UserIDs, *e.UserID)) {
		return false
	}
	if len(f.Channels) > 0 && !contains(f.Channels, e.Channel) {
		return false
	}
	if len(f.DeviceTypes) > 0 && !contains(f.DeviceTypes, e.DeviceType) {
		return false
	}
	if f.Category != "" && !e.CategoryEnabled(f.Category) {
		return false
	}
	if f.ActiveWithin > 0 {
		seen := e.CreatedAt
		if e.LastUsedAt != nil {
			seen = *e.LastUsedAt
		}
		if seen.Before(now.Add(-f.ActiveWithin)) {
			return false
		}
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
