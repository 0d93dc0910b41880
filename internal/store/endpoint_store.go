package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/domain"
	"github.com/jackc/pgx/v5"
)

const endpointColumns = `id, user_id, channel, name, endpoint_group, device_type, url, p256dh, auth, secret,
	is_active, permission_granted, categories, min_priority, rate_limit_per_minute,
	success_count, failure_count, last_error, last_used_at, created_at, updated_at`

func scanEndpoint(row pgx.Row) (*domain.Endpoint, error) {
	var (
		ep       domain.Endpoint
		channel  string
		priority int16
	)
	err := row.Scan(
		&ep.ID, &ep.UserID, &channel, &ep.Name, &ep.Group, &ep.DeviceType, &ep.URL, &ep.P256dh, &ep.Auth, &ep.Secret,
		&ep.IsActive, &ep.PermissionGranted, &ep.Categories, &priority, &ep.RateLimitPerMinute,
		&ep.SuccessCount, &ep.FailureCount, &ep.LastError, &ep.LastUsedAt, &ep.CreatedAt, &ep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ep.Channel = domain.ChannelType(channel)
	ep.MinPriority = domain.Priority(priority)
	return &ep, nil
}

// GetEndpointsMatching builds a conjunctive WHERE clause from the filter.
func (s *PostgresStore) GetEndpointsMatching(ctx context.Context, f domain.EndpointFilter) ([]domain.Endpoint, error) {
	conditions := []string{}
	args := []interface{}{}
	argIdx := 1

	if !f.IncludeInactive {
		conditions = append(conditions, "is_active = true AND permission_granted = true")
	}
	if len(f.IDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("id::text = ANY($%d)", argIdx))
		args = append(args, f.IDs)
		argIdx++
	}
	if len(f.UserIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("user_id = ANY($%d)", argIdx))
		args = append(args, f.UserIDs)
		argIdx++
	}
	if len(f.Channels) > 0 {
		channels := make([]string, len(f.Channels))
		for i, c := range f.Channels {
			channels[i] = string(c)
		}
		conditions = append(conditions, fmt.Sprintf("channel = ANY($%d)", argIdx))
		args = append(args, channels)
		argIdx++
	}
	if len(f.DeviceTypes) > 0 {
		conditions = append(conditions, fmt.Sprintf("device_type = ANY($%d)", argIdx))
		args = append(args, f.DeviceTypes)
		argIdx++
	}
	if f.Category != "" {
		conditions = append(conditions, fmt.Sprintf("COALESCE((categories->>$%d)::boolean, true)", argIdx))
		args = append(args, f.Category)
		argIdx++
	}
	if f.ActiveWithin > 0 {
		conditions = append(conditions, fmt.Sprintf("COALESCE(last_used_at, created_at) >= $%d", argIdx))
		args = append(args, time.Now().Add(-f.ActiveWithin))
		argIdx++
	}

	query := "SELECT " + endpointColumns + " FROM endpoints"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying endpoints: %w", err)
	}
	defer rows.Close()

	endpoints := []domain.Endpoint{}
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning endpoint: %w", err)
		}
		endpoints = append(endpoints, *ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating endpoints: %w", err)
	}
	return endpoints, nil
}

func (s *PostgresStore) GetEndpoint(ctx context.Context, id string) (*domain.Endpoint, error) {
	ep, err := scanEndpoint(s.pool.QueryRow(ctx,
		"SELECT "+endpointColumns+" FROM endpoints WHERE id::text = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying endpoint: %w", err)
	}
	return ep, nil
}

func (s *PostgresStore) FindEndpointByURL(ctx context.Context, url string) (*domain.Endpoint, error) {
	ep, err := scanEndpoint(s.pool.QueryRow(ctx,
		"SELECT "+endpointColumns+" FROM endpoints WHERE url = $1", url))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying endpoint by url: %w", err)
	}
	return ep, nil
}

// UpsertEndpoint writes the full row. The URL is the natural key, so a
// re-registration of a known URL updates it in place.
func (s *PostgresStore) UpsertEndpoint(ctx context.Context, ep *domain.Endpoint) error {
	categories := ep.Categories
	if categories == nil {
		categories = map[string]bool{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO endpoints (id, user_id, channel, name, endpoint_group, device_type, url, p256dh, auth, secret,
			is_active, permission_granted, categories, min_priority, rate_limit_per_minute,
			success_count, failure_count, last_error, last_used_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (url) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			channel = EXCLUDED.channel,
			name = EXCLUDED.name,
			endpoint_group = EXCLUDED.endpoint_group,
			device_type = EXCLUDED.device_type,
			p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth,
			secret = EXCLUDED.secret,
			is_active = EXCLUDED.is_active,
			permission_granted = EXCLUDED.permission_granted,
			categories = EXCLUDED.categories,
			min_priority = EXCLUDED.min_priority,
			rate_limit_per_minute = EXCLUDED.rate_limit_per_minute,
			success_count = EXCLUDED.success_count,
			failure_count = EXCLUDED.failure_count,
			last_error = EXCLUDED.last_error,
			last_used_at = EXCLUDED.last_used_at,
			updated_at = EXCLUDED.updated_at
	`, ep.ID, ep.UserID, string(ep.Channel), ep.Name, ep.Group, ep.DeviceType, ep.URL, ep.P256dh, ep.Auth, ep.Secret,
		ep.IsActive, ep.PermissionGranted, categories, int16(ep.MinPriority), ep.RateLimitPerMinute,
		ep.SuccessCount, ep.FailureCount, ep.LastError, ep.LastUsedAt, ep.CreatedAt, ep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting endpoint: %w", err)
	}
	return nil
}

// DeleteEndpoint reports whether a row was removed.
func (s *PostgresStore) DeleteEndpoint(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM endpoints WHERE id::text = $1", id)
	if err != nil {
		return false, fmt.Errorf("deleting endpoint: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CountActiveEndpoints(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM endpoints WHERE is_active = true AND permission_granted = true").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting active endpoints: %w", err)
	}
	return n, nil
}
