package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// RecordDeliveryAttempt inserts one per-send record.
func (s *PostgresStore) RecordDeliveryAttempt(ctx context.Context, a *domain.DeliveryAttempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_attempts (id, notification_id, endpoint_id, channel, target, payload, status, status_code, error_message, response_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.NotificationID, a.EndpointID, string(a.Channel), a.Target, []byte(a.Payload), a.Status, a.StatusCode, a.ErrorMessage, a.ResponseTimeMs, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting delivery attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendFailureRecord(ctx context.Context, f *domain.FailureRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO failure_records (id, notification_id, endpoint_id, channel, target_url, payload, error, status_code, retry_count, next_retry_at, resolved, resolved_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, f.ID, f.NotificationID, f.EndpointID, string(f.Channel), f.TargetURL, f.Payload, f.Error, f.StatusCode, f.RetryCount, f.NextRetryAt, f.Resolved, f.ResolvedAt, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting failure record: %w", err)
	}
	return nil
}

// ListFailures returns failure records, oldest first.
func (s *PostgresStore) ListFailures(ctx context.Context, f domain.FailureFilter) ([]domain.FailureRecord, error) {
	query := `SELECT id, notification_id, endpoint_id, channel, target_url, payload, error, status_code, retry_count, next_retry_at, resolved, resolved_at, created_at FROM failure_records`
	args := []interface{}{}
	argIdx := 1
	conditions := []string{}

	if len(f.IDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("id::text = ANY($%d)", argIdx))
		args = append(args, f.IDs)
		argIdx++
	}
	if f.UnresolvedOnly {
		conditions = append(conditions, "resolved = false")
	}
	if f.Since != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *f.Since)
		argIdx++
	}
	if f.DueBefore != nil {
		conditions = append(conditions, fmt.Sprintf("(next_retry_at IS NULL OR next_retry_at <= $%d)", argIdx))
		args = append(args, *f.DueBefore)
		argIdx++
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying failure records: %w", err)
	}
	defer rows.Close()

	records := []domain.FailureRecord{}
	for rows.Next() {
		var (
			r       domain.FailureRecord
			channel string
		)
		err := rows.Scan(&r.ID, &r.NotificationID, &r.EndpointID, &channel, &r.TargetURL, &r.Payload, &r.Error,
			&r.StatusCode, &r.RetryCount, &r.NextRetryAt, &r.Resolved, &r.ResolvedAt, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning failure record: %w", err)
		}
		r.Channel = domain.ChannelType(channel)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating failure records: %w", err)
	}
	return records, nil
}

// UpdateFailure writes the retry bookkeeping of a failure record.
func (s *PostgresStore) UpdateFailure(ctx context.Context, f *domain.FailureRecord) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE failure_records
		SET error = $2, status_code = $3, retry_count = $4, next_retry_at = $5, resolved = $6, resolved_at = $7
		WHERE id::text = $1
	`, f.ID, f.Error, f.StatusCode, f.RetryCount, f.NextRetryAt, f.Resolved, f.ResolvedAt)
	if err != nil {
		return fmt.Errorf("updating failure record: %w", err)
	}
	return nil
}

// PurgeResolved deletes up to limit resolved records resolved before the
// cutoff and returns how many were removed.
func (s *PostgresStore) PurgeResolved(ctx context.Context, before time.Time, limit int) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM failure_records
		WHERE id IN (
			SELECT id FROM failure_records
			WHERE resolved = true AND resolved_at < $1
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("purging resolved failures: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountUnresolvedFailures(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM failure_records WHERE resolved = false").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting unresolved failures: %w", err)
	}
	return n, nil
}
