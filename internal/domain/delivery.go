package domain

import (
	"encoding/json"
	"time"
)

// Delivery attempt statuses.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// DeliveryAttempt is the immutable record of one send to one endpoint.
type DeliveryAttempt struct {
	ID             string          `json:"id"`
	NotificationID string          `json:"notification_id"`
	EndpointID     string          `json:"endpoint_id,omitempty"`
	Channel        ChannelType     `json:"channel"`
	Target         string          `json:"target"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Status         string          `json:"status"`
	StatusCode     *int            `json:"status_code,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	ResponseTimeMs int64           `json:"response_time_ms"`
	CreatedAt      time.Time       `json:"created_at"`
}

// FailureRecord keeps the exact payload of a transiently failed send so the
// retry sweep can replay it.
type FailureRecord struct {
	ID             string      `json:"id"`
	NotificationID string      `json:"notification_id"`
	EndpointID     string      `json:"endpoint_id,omitempty"`
	Channel        ChannelType `json:"channel"`
	TargetURL      string      `json:"target_url"`
	Payload        []byte      `json:"payload,omitempty"`
	Error          string      `json:"error"`
	StatusCode     *int        `json:"status_code,omitempty"`
	RetryCount     int         `json:"retry_count"`
	NextRetryAt    *time.Time  `json:"next_retry_at,omitempty"`
	Resolved       bool        `json:"resolved"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// FailureFilter selects failure records for listing and retry.
type FailureFilter struct {
	IDs            []string
	Since          *time.Time
	DueBefore      *time.Time
	UnresolvedOnly bool
	Limit          int
}

// DailyStat is the per (channel, group, day) rollup.
type DailyStat struct {
	Channel      ChannelType `json:"channel"`
	Group        string      `json:"group"`
	Day          time.Time   `json:"day"`
	Sent         int         `json:"sent"`
	Failed       int         `json:"failed"`
	Received     int         `json:"received"`
	AvgLatencyMs float64     `json:"avg_latency_ms"`
	MinLatencyMs int64       `json:"min_latency_ms"`
	MaxLatencyMs int64       `json:"max_latency_ms"`
}

// DailyStatDelta is one increment applied with upsert semantics.
type DailyStatDelta struct {
	Channel   ChannelType
	Group     string
	Day       time.Time
	Sent      int
	Failed    int
	Received  int
	LatencyMs *int64
}

// Apply folds the delta into s. Latency stats only consider sends.
func (d DailyStatDelta) Apply(s *DailyStat) {
	prevSamples := s.Sent + s.Failed
	s.Sent += d.Sent
	s.Failed += d.Failed
	s.Received += d.Received
	if d.LatencyMs == nil {
		return
	}
	lat := *d.LatencyMs
	if prevSamples == 0 {
		s.AvgLatencyMs = float64(lat)
		s.MinLatencyMs = lat
		s.MaxLatencyMs = lat
		return
	}
	samples := s.Sent + s.Failed
	s.AvgLatencyMs = (s.AvgLatencyMs*float64(prevSamples) + float64(lat)) / float64(samples)
	if lat < s.MinLatencyMs {
		s.MinLatencyMs = lat
	}
	if lat > s.MaxLatencyMs {
		s.MaxLatencyMs = lat
	}
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
