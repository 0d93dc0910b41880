package preference

import (
	"fmt"
	"os"

	"github.com/Priya8975/notification-dispatch/internal/domain"
	"gopkg.in/yaml.v3"
)

// Default is the channel setting applied when a user has no explicit
// preference row for a notification type.
type Default struct {
	Email           bool
	Realtime        bool
	Push            bool
	SMS             bool
	MinimumPriority domain.Priority
}

// Defaults maps each known notification type to its system default. A type
// missing from the table is unknown and delivers nothing.
type Defaults map[domain.NotificationType]Default

// DefaultTable returns the defaults shipped with the service.
func DefaultTable() Defaults {
	return Defaults{
		domain.TypeReportGenerated:  {Email: true, Realtime: true, MinimumPriority: domain.PriorityMedium},
		domain.TypeReportSubmitted:  {Realtime: true, MinimumPriority: domain.PriorityLow},
		domain.TypeReportApproved:   {Email: true, Realtime: true, Push: true, MinimumPriority: domain.PriorityMedium},
		domain.TypeReportRejected:   {Email: true, Realtime: true, Push: true, MinimumPriority: domain.PriorityMedium},
		domain.TypeWorkflowAssigned: {Email: true, Realtime: true, Push: true, MinimumPriority: domain.PriorityLow},
		domain.TypeWorkflowDeadline: {Email: true, Realtime: true, Push: true, MinimumPriority: domain.PriorityLow},
		domain.TypeCommentAdded:     {Realtime: true, MinimumPriority: domain.PriorityLow},
		domain.TypeSystemAlert:      {Email: true, Realtime: true, Push: true, MinimumPriority: domain.PriorityHigh},
	}
}

// Preference builds the row a user would get from this default.
func (d Default) Preference(userID string, t domain.NotificationType) domain.NotificationPreference {
	return domain.NotificationPreference{
		UserID:           userID,
		NotificationType: t,
		EmailEnabled:     d.Email,
		RealtimeEnabled:  d.Realtime,
		PushEnabled:      d.Push,
		SMSEnabled:       d.SMS,
		MinimumPriority:  d.MinimumPriority,
		ScheduleMode:     domain.ScheduleImmediate,
		Timezone:         "UTC",
		IsDefault:        true,
	}
}

type yamlDefault struct {
	Email           *bool  `yaml:"email"`
	Realtime        *bool  `yaml:"realtime"`
	Push            *bool  `yaml:"push"`
	SMS             *bool  `yaml:"sms"`
	MinimumPriority string `yaml:"minimum_priority"`
}

// LoadDefaults reads a YAML file of per-type overrides and merges it over the
// shipped table. Types not present in the shipped table are added.
//
//	report_generated:
//	  push: true
//	  minimum_priority: high
func LoadDefaults(path string) (Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading preference defaults: %w", err)
	}

	var raw map[string]yamlDefault
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing preference defaults: %w", err)
	}

	table := DefaultTable()
	for name, override := range raw {
		t := domain.NotificationType(name)
		d, ok := table[t]
		if !ok {
			d = Default{MinimumPriority: domain.PriorityLow}
		}
		if override.Email != nil {
			d.Email = *override.Email
		}
		if override.Realtime != nil {
			d.Realtime = *override.Realtime
		}
		if override.Push != nil {
			d.Push = *override.Push
		}
		if override.SMS != nil {
			d.SMS = *override.SMS
		}
		if override.MinimumPriority != "" {
			p, err := domain.ParsePriority(override.MinimumPriority)
			if err != nil {
				return nil, fmt.Errorf("defaults for %s: %w", name, err)
			}
			d.MinimumPriority = p
		}
		table[t] = d
	}
	return table, nil
}
