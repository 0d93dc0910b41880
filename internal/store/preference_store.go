package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Priya8975/notification-dispatch/internal/domain"
	"github.com/jackc/pgx/v5"
)

const preferenceColumns = `id, user_id, notification_type, email_enabled, realtime_enabled, push_enabled, sms_enabled,
	minimum_priority, quiet_hours_start, quiet_hours_end, timezone, schedule_mode, created_at, updated_at`

func scanPreference(row pgx.Row) (*domain.NotificationPreference, error) {
	var (
		p        domain.NotificationPreference
		nt, mode string
		priority int16
	)
	err := row.Scan(&p.ID, &p.UserID, &nt, &p.EmailEnabled, &p.RealtimeEnabled, &p.PushEnabled, &p.SMSEnabled,
		&priority, &p.QuietHoursStart, &p.QuietHoursEnd, &p.Timezone, &mode, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.NotificationType = domain.NotificationType(nt)
	p.ScheduleMode = domain.ScheduleMode(mode)
	p.MinimumPriority = domain.Priority(priority)
	return &p, nil
}

func (s *PostgresStore) GetPreference(ctx context.Context, userID string, t domain.NotificationType) (*domain.NotificationPreference, error) {
	p, err := scanPreference(s.pool.QueryRow(ctx,
		"SELECT "+preferenceColumns+" FROM notification_preferences WHERE user_id = $1 AND notification_type = $2",
		userID, string(t)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying preference: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPreferences(ctx context.Context, userID string) ([]domain.NotificationPreference, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+preferenceColumns+" FROM notification_preferences WHERE user_id = $1 ORDER BY notification_type",
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying preferences: %w", err)
	}
	defer rows.Close()

	prefs := []domain.NotificationPreference{}
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning preference: %w", err)
		}
		prefs = append(prefs, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating preferences: %w", err)
	}
	return prefs, nil
}

// UpsertPreference keeps at most one row per (user, type).
func (s *PostgresStore) UpsertPreference(ctx context.Context, p *domain.NotificationPreference) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_preferences (`+preferenceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (user_id, notification_type) DO UPDATE SET
			email_enabled = EXCLUDED.email_enabled,
			realtime_enabled = EXCLUDED.realtime_enabled,
			push_enabled = EXCLUDED.push_enabled,
			sms_enabled = EXCLUDED.sms_enabled,
			minimum_priority = EXCLUDED.minimum_priority,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			timezone = EXCLUDED.timezone,
			schedule_mode = EXCLUDED.schedule_mode,
			updated_at = EXCLUDED.updated_at
	`, p.ID, p.UserID, string(p.NotificationType), p.EmailEnabled, p.RealtimeEnabled, p.PushEnabled, p.SMSEnabled,
		int16(p.MinimumPriority), p.QuietHoursStart, p.QuietHoursEnd, p.Timezone, string(p.ScheduleMode), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting preference: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePreferences(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM notification_preferences WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("deleting preferences: %w", err)
	}
	return nil
}
