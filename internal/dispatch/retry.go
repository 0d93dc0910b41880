package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/Priya8975/notification-dispatch/internal/domain"
	"github.com/Priya8975/notification-dispatch/internal/metrics"
)

// errEndpointGone marks a failure whose stored endpoint was deleted or
// deactivated since the send.
var errEndpointGone = errors.New("endpoint gone")

const (
	maxBackoffExponent = 16
	purgeBatchSize     = 500
)

// Backoff is the wait before the next retry of a record that has failed
// retryCount times: 2^retryCount minutes.
func Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > maxBackoffExponent {
		retryCount = maxBackoffExponent
	}
	return time.Duration(1<<retryCount) * time.Minute
}

// RetryFailed replays stored failure payloads. With no ids it sweeps the
// unresolved failures of the retry window that are due. It returns how many
// records were resolved; per-record errors are combined in the error.
// Records already processed when ctx is cancelled keep their new state.
func (s *Service) RetryFailed(ctx context.Context, ids []string) (int, error) {
	now := s.now()
	filter := domain.FailureFilter{UnresolvedOnly: true}
	if len(ids) > 0 {
		filter.IDs = ids
	} else {
		since := now.Add(-s.cfg.RetryWindow)
		filter.Since = &since
		filter.DueBefore = &now
	}

	records, err := s.store.ListFailures(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("listing failures: %w", err)
	}

	var merr *multierror.Error
	resolved := 0
	for i := range records {
		if i > 0 {
			if err := sleep(ctx, s.cfg.SendDelay); err != nil {
				merr = multierror.Append(merr, fmt.Errorf("retry sweep stopped: %w", err))
				break
			}
		} else if err := ctx.Err(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("retry sweep stopped: %w", err))
			break
		}

		ok, err := s.retryOne(ctx, &records[i])
		if err != nil {
			merr = multierror.Append(merr, err)
		}
		if ok {
			resolved++
		}
	}

	s.logger.Info("retry sweep finished", "candidates", len(records), "resolved", resolved)
	return resolved, merr.ErrorOrNil()
}

func (s *Service) retryOne(ctx context.Context, rec *domain.FailureRecord) (resolved bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("retry panicked", "failure_id", rec.ID, "panic", r)
			resolved, err = false, fmt.Errorf("failure %s: dispatch error: %v", rec.ID, r)
		}
	}()

	if len(rec.Payload) == 0 {
		return false, fmt.Errorf("failure %s: %w", rec.ID, domain.ErrNoPayload)
	}

	t, err := s.retryTarget(ctx, rec)
	if errors.Is(err, errEndpointGone) {
		// Nothing left to deliver to; close the record like a permanent failure.
		now := s.now()
		rec.Resolved = true
		rec.ResolvedAt = &now
		rec.Error = err.Error()
		if uerr := s.store.UpdateFailure(context.WithoutCancel(ctx), rec); uerr != nil {
			return false, fmt.Errorf("failure %s: updating record: %w", rec.ID, uerr)
		}
		return false, fmt.Errorf("failure %s: %w", rec.ID, err)
	}
	if err != nil {
		return false, fmt.Errorf("failure %s: %w", rec.ID, err)
	}
	a, err := s.adapters.Get(rec.Channel)
	if err != nil {
		return false, fmt.Errorf("failure %s: %w", rec.ID, err)
	}

	res := s.send(ctx, a, t, rec.Payload)
	s.recordOutcome(ctx, rec.NotificationID, t, rec.Payload, res, classify(res), false)

	now := s.now()
	switch {
	case res.Success:
		rec.Resolved = true
		rec.ResolvedAt = &now
		rec.Error = ""
		metrics.RetrySucceeded()
	case res.Permanent:
		// The endpoint was just deactivated; the record can never succeed.
		rec.Resolved = true
		rec.ResolvedAt = &now
		rec.Error = errorText(res.Err)
	default:
		rec.RetryCount++
		next := now.Add(Backoff(rec.RetryCount))
		rec.NextRetryAt = &next
		rec.Error = errorText(res.Err)
	}
	rec.StatusCode = statusCode(res)

	if err := s.store.UpdateFailure(context.WithoutCancel(ctx), rec); err != nil {
		return res.Success, fmt.Errorf("failure %s: updating record: %w", rec.ID, err)
	}
	if !res.Success {
		return false, fmt.Errorf("failure %s: %s", rec.ID, errorText(res.Err))
	}
	return true, nil
}

// retryTarget rebuilds the destination of a failed send. Stored endpoints
// are reloaded for their current keys and secret.
func (s *Service) retryTarget(ctx context.Context, rec *domain.FailureRecord) (target, error) {
	if rec.EndpointID == "" {
		return target{endpoint: domain.Endpoint{
			Channel:           rec.Channel,
			URL:               rec.TargetURL,
			IsActive:          true,
			PermissionGranted: true,
		}}, nil
	}
	ep, err := s.GetEndpoint(ctx, rec.EndpointID)
	if errors.Is(err, domain.ErrEndpointNotFound) {
		return target{}, fmt.Errorf("%w: %s was deleted", errEndpointGone, rec.EndpointID)
	}
	if err != nil {
		return target{}, err
	}
	if !ep.Eligible() {
		return target{}, fmt.Errorf("%w: %s is inactive", errEndpointGone, ep.ID)
	}
	return target{endpoint: *ep, stored: true}, nil
}

// ListFailures returns failure records for inspection.
func (s *Service) ListFailures(ctx context.Context, f domain.FailureFilter) ([]domain.FailureRecord, error) {
	records, err := s.store.ListFailures(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing failures: %w", err)
	}
	return records, nil
}

// PurgeResolved deletes resolved failure records older than olderThan in
// batches, stopping between batches when ctx is cancelled.
func (s *Service) PurgeResolved(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("purge stopped: %w", err)
		}
		n, err := s.store.PurgeResolved(ctx, cutoff, purgeBatchSize)
		if err != nil {
			return total, fmt.Errorf("purging resolved failures: %w", err)
		}
		total += n
		if n < purgeBatchSize {
			break
		}
	}
	s.logger.Info("purged resolved failures", "count", total, "cutoff", cutoff)
	return total, nil
}
