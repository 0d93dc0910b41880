package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// UpsertDailyStat creates the (channel, group, day) row or increments it.
// The latency average is folded in SQL so concurrent writers do not lose
// increments.
func (s *PostgresStore) UpsertDailyStat(ctx context.Context, d domain.DailyStatDelta) error {
	var latency *int64
	samples := 0
	if d.LatencyMs != nil {
		latency = d.LatencyMs
		samples = d.Sent + d.Failed
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO daily_stats AS ds (channel, endpoint_group, day, sent, failed, received, avg_latency_ms, min_latency_ms, max_latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::bigint, 0), COALESCE($7::bigint, 0), COALESCE($7::bigint, 0))
		ON CONFLICT (channel, endpoint_group, day) DO UPDATE SET
			sent = ds.sent + EXCLUDED.sent,
			failed = ds.failed + EXCLUDED.failed,
			received = ds.received + EXCLUDED.received,
			avg_latency_ms = CASE
				WHEN $7::bigint IS NULL OR $8 = 0 THEN ds.avg_latency_ms
				WHEN ds.sent + ds.failed = 0 THEN $7::bigint
				ELSE (ds.avg_latency_ms * (ds.sent + ds.failed) + $7::bigint * $8) / (ds.sent + ds.failed + $8)
			END,
			min_latency_ms = CASE
				WHEN $7::bigint IS NULL THEN ds.min_latency_ms
				WHEN ds.sent + ds.failed = 0 THEN $7::bigint
				ELSE LEAST(ds.min_latency_ms, $7::bigint)
			END,
			max_latency_ms = CASE
				WHEN $7::bigint IS NULL THEN ds.max_latency_ms
				ELSE GREATEST(ds.max_latency_ms, $7::bigint)
			END
	`, string(d.Channel), d.Group, domain.Day(d.Day), d.Sent, d.Failed, d.Received, latency, samples)
	if err != nil {
		return fmt.Errorf("upserting daily stat: %w", err)
	}
	return nil
}

// ListDailyStats returns rows with from <= day <= to, ordered by day.
func (s *PostgresStore) ListDailyStats(ctx context.Context, from, to time.Time) ([]domain.DailyStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT channel, endpoint_group, day, sent, failed, received, avg_latency_ms, min_latency_ms, max_latency_ms
		FROM daily_stats
		WHERE day >= $1 AND day <= $2
		ORDER BY day, channel, endpoint_group
	`, domain.Day(from), domain.Day(to))
	if err != nil {
		return nil, fmt.Errorf("querying daily stats: %w", err)
	}
	defer rows.Close()

	stats := []domain.DailyStat{}
	for rows.Next() {
		var (
			st      domain.DailyStat
			channel string
		)
		if err := rows.Scan(&channel, &st.Group, &st.Day, &st.Sent, &st.Failed, &st.Received,
			&st.AvgLatencyMs, &st.MinLatencyMs, &st.MaxLatencyMs); err != nil {
			return nil, fmt.Errorf("scanning daily stat: %w", err)
		}
		st.Channel = domain.ChannelType(channel)
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating daily stats: %w", err)
	}
	return stats, nil
}
