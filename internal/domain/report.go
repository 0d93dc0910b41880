package domain

import "time"

// DeliveryResult is the outcome of one endpoint within a fan-out.
type DeliveryResult struct {
	EndpointID  string      `json:"endpoint_id,omitempty"`
	Channel     ChannelType `json:"channel"`
	Success     bool        `json:"success"`
	MessageID   string      `json:"message_id,omitempty"`
	Error       string      `json:"error,omitempty"`
	Permanent   bool        `json:"permanent,omitempty"`
	RateLimited bool        `json:"rate_limited,omitempty"`
	LatencyMs   int64       `json:"latency_ms"`
}

// DeliveryReport aggregates one fan-out.
type DeliveryReport struct {
	NotificationID       string           `json:"notification_id"`
	TotalTargeted        int              `json:"total_targeted"`
	SuccessfulDeliveries int              `json:"successful_deliveries"`
	FailedDeliveries     int              `json:"failed_deliveries"`
	RateLimited          int              `json:"rate_limited"`
	SuccessRate          float64          `json:"success_rate"`
	DeliveryTimeMs       int64            `json:"delivery_time_ms"`
	Errors               []string         `json:"errors"`
	Results              []DeliveryResult `json:"results,omitempty"`
	Scheduled            bool             `json:"scheduled,omitempty"`
	ScheduledAt          *time.Time       `json:"scheduled_at,omitempty"`
}

// SuccessRate returns successful/targeted*100, or 0 when nothing was
// targeted.
func SuccessRate(successful, targeted int) float64 {
	if targeted <= 0 {
		return 0
	}
	rate := float64(successful) / float64(targeted) * 100
	if rate > 100 {
		return 100
	}
	if rate < 0 {
		return 0
	}
	return rate
}

// TestResult is the outcome of a connectivity test against one endpoint.
type TestResult struct {
	Success        bool   `json:"success"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	StatusMessage  string `json:"status_message"`
}

// ChannelStats totals one channel over a stats range.
type ChannelStats struct {
	Sent         int     `json:"sent"`
	Failed       int     `json:"failed"`
	Received     int     `json:"received"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// AggregateStats is the reporting view over a date range.
type AggregateStats struct {
	From               time.Time                    `json:"from"`
	To                 time.Time                    `json:"to"`
	TotalSent          int                          `json:"total_sent"`
	TotalFailed        int                          `json:"total_failed"`
	TotalReceived      int                          `json:"total_received"`
	SuccessRate        float64                      `json:"success_rate"`
	AvgLatencyMs       float64                      `json:"avg_latency_ms"`
	ActiveEndpoints    int                          `json:"active_endpoints"`
	UnresolvedFailures int                          `json:"unresolved_failures"`
	ByChannel          map[ChannelType]ChannelStats `json:"by_channel"`
	Daily              []DailyStat                  `json:"daily"`
}

// Bulk operation names.
const (
	BulkActivate   = "activate"
	BulkDeactivate = "deactivate"
	BulkDelete     = "delete"
	BulkUpdate     = "update"
	BulkTest       = "test"
)

// BulkResult reports per-item counts for a bulk endpoint operation.
type BulkResult struct {
	Operation       string   `json:"operation"`
	TotalItems      int      `json:"total_items"`
	FoundItems      int      `json:"found_items"`
	SuccessfulItems int      `json:"successful_items"`
	FailedItems     int      `json:"failed_items"`
	Errors          []string `json:"errors"`
}
