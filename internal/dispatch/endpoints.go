package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/Priya8975/notification-dispatch/internal/channel"
	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// RegisterEndpoint validates ep and stores it. Registering a URL that is
// already known updates that endpoint in place and reactivates it.
func (s *Service) RegisterEndpoint(ctx context.Context, ep domain.Endpoint) (*domain.Endpoint, error) {
	if !ep.Channel.Valid() {
		return nil, fmt.Errorf("%w: unknown channel %q", domain.ErrValidation, ep.Channel)
	}
	if err := s.validateEndpoint(ep); err != nil {
		return nil, err
	}
	if ep.MinPriority != 0 && !ep.MinPriority.Valid() {
		return nil, fmt.Errorf("%w: invalid min_priority", domain.ErrValidation)
	}
	if ep.RateLimitPerMinute < 0 {
		return nil, fmt.Errorf("%w: rate_limit_per_minute must not be negative", domain.ErrValidation)
	}

	now := s.now()
	existing, err := s.store.FindEndpointByURL(ctx, ep.URL)
	if err != nil {
		return nil, fmt.Errorf("looking up endpoint: %w", err)
	}

	if existing != nil {
		existing.UserID = ep.UserID
		existing.Channel = ep.Channel
		existing.Name = ep.Name
		existing.Group = ep.Group
		existing.DeviceType = ep.DeviceType
		existing.P256dh = ep.P256dh
		existing.Auth = ep.Auth
		existing.Secret = ep.Secret
		if ep.Categories != nil {
			existing.Categories = ep.Categories
		}
		existing.MinPriority = ep.MinPriority
		existing.RateLimitPerMinute = ep.RateLimitPerMinute
		existing.IsActive = true
		existing.PermissionGranted = true
		existing.UpdatedAt = now
		if err := s.store.UpsertEndpoint(ctx, existing); err != nil {
			return nil, fmt.Errorf("updating endpoint: %w", err)
		}
		s.resetBreaker(ctx, existing.ID)
		s.logger.Info("endpoint re-registered", "endpoint_id", existing.ID, "channel", existing.Channel)
		return existing, nil
	}

	ep.ID = uuid.NewString()
	ep.IsActive = true
	ep.PermissionGranted = true
	ep.SuccessCount, ep.FailureCount = 0, 0
	ep.LastError, ep.LastUsedAt = nil, nil
	ep.CreatedAt = now
	ep.UpdatedAt = now
	if err := s.store.UpsertEndpoint(ctx, &ep); err != nil {
		return nil, fmt.Errorf("creating endpoint: %w", err)
	}
	s.logger.Info("endpoint registered", "endpoint_id", ep.ID, "channel", ep.Channel)
	return &ep, nil
}

func (s *Service) validateEndpoint(ep domain.Endpoint) error {
	if strings.TrimSpace(ep.URL) == "" {
		return fmt.Errorf("%w: url is required", domain.ErrValidation)
	}
	a, err := s.adapters.Get(ep.Channel)
	if err != nil {
		return err
	}
	if err := a.Validate(ep); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

// GetEndpoint returns the endpoint or domain.ErrEndpointNotFound.
func (s *Service) GetEndpoint(ctx context.Context, id string) (*domain.Endpoint, error) {
	ep, err := s.store.GetEndpoint(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting endpoint: %w", err)
	}
	if ep == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrEndpointNotFound, id)
	}
	return ep, nil
}

func (s *Service) ListEndpoints(ctx context.Context, f domain.EndpointFilter) ([]domain.Endpoint, error) {
	eps, err := s.store.GetEndpointsMatching(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints: %w", err)
	}
	return eps, nil
}

// UpdateEndpoint applies a partial update. Setting IsActive re-grants
// permission, which is how an operator revives a deactivated endpoint.
func (s *Service) UpdateEndpoint(ctx context.Context, id string, upd domain.EndpointUpdate) (*domain.Endpoint, error) {
	if upd.MinPriority != nil && *upd.MinPriority != 0 && !upd.MinPriority.Valid() {
		return nil, fmt.Errorf("%w: invalid min_priority", domain.ErrValidation)
	}
	if upd.RateLimitPerMinute != nil && *upd.RateLimitPerMinute < 0 {
		return nil, fmt.Errorf("%w: rate_limit_per_minute must not be negative", domain.ErrValidation)
	}

	ep, err := s.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	upd.Apply(ep)
	ep.UpdatedAt = s.now()
	if err := s.store.UpsertEndpoint(ctx, ep); err != nil {
		return nil, fmt.Errorf("updating endpoint: %w", err)
	}
	if upd.IsActive != nil && *upd.IsActive {
		s.resetBreaker(ctx, ep.ID)
	}
	return ep, nil
}

// Unsubscribe deletes the endpoint.
func (s *Service) Unsubscribe(ctx context.Context, id string) error {
	deleted, err := s.store.DeleteEndpoint(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting endpoint: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", domain.ErrEndpointNotFound, id)
	}
	s.resetBreaker(ctx, id)
	s.logger.Info("endpoint unsubscribed", "endpoint_id", id)
	return nil
}

// Acknowledge records that the endpoint's client received a notification.
func (s *Service) Acknowledge(ctx context.Context, id string) error {
	ep, err := s.GetEndpoint(ctx, id)
	if err != nil {
		return err
	}
	err = s.store.UpsertDailyStat(ctx, domain.DailyStatDelta{
		Channel:  ep.Channel,
		Group:    ep.Group,
		Day:      s.now(),
		Received: 1,
	})
	if err != nil {
		return fmt.Errorf("recording receipt: %w", err)
	}
	return nil
}

func (s *Service) resetBreaker(ctx context.Context, id string) {
	if s.breaker == nil {
		return
	}
	if err := s.breaker.Reset(ctx, id); err != nil {
		s.logger.Error("failed to reset circuit breaker", "endpoint_id", id, "error", err)
	}
}

// TestTarget names the endpoint to test: a stored endpoint id, or an
// ad-hoc URL or push subscription.
type TestTarget struct {
	EndpointID string             `json:"endpoint_id,omitempty"`
	Channel    domain.ChannelType `json:"channel,omitempty"`
	URL        string             `json:"url,omitempty"`
	P256dh     string             `json:"p256dh,omitempty"`
	Auth       string             `json:"auth,omitempty"`
	Secret     string             `json:"secret,omitempty"`
}

// TestEndpoint sends a low priority test message and reports whether it got
// through. A target that fails validation is reported without any network
// call. Endpoint counters are left untouched.
func (s *Service) TestEndpoint(ctx context.Context, t TestTarget) (result domain.TestResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("endpoint test panicked", "endpoint_id", t.EndpointID, "panic", r)
			result = domain.TestResult{StatusMessage: "internal error"}
		}
	}()

	ep, err := s.testEndpoint(ctx, t)
	if err != nil {
		return domain.TestResult{StatusMessage: err.Error()}
	}
	a, err := s.adapters.Get(ep.Channel)
	if err != nil {
		return domain.TestResult{StatusMessage: err.Error()}
	}
	if err := a.Validate(*ep); err != nil {
		return domain.TestResult{StatusMessage: err.Error()}
	}

	payload, err := a.BuildPayload(channel.Message{
		ID:       uuid.NewString(),
		Type:     domain.TypeSystemAlert,
		Priority: domain.PriorityLow,
		Title:    "Test notification",
		Body:     "This is a test notification. If you can read this, delivery works.",
		Tag:      "test",
		SentAt:   s.now(),
	})
	if err != nil {
		return domain.TestResult{StatusMessage: err.Error()}
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	res := a.Send(sendCtx, *ep, payload)

	out := domain.TestResult{Success: res.Success, ResponseTimeMs: res.Latency.Milliseconds()}
	switch {
	case res.Success:
		out.StatusMessage = "delivered"
	case res.Err != nil:
		out.StatusMessage = res.Err.Error()
	default:
		out.StatusMessage = "delivery failed"
	}
	s.logger.Info("endpoint tested",
		"endpoint_id", ep.ID,
		"channel", ep.Channel,
		"success", out.Success,
		"latency_ms", out.ResponseTimeMs,
	)
	return out
}

func (s *Service) testEndpoint(ctx context.Context, t TestTarget) (*domain.Endpoint, error) {
	if t.EndpointID != "" {
		return s.GetEndpoint(ctx, t.EndpointID)
	}
	if t.URL == "" {
		return nil, fmt.Errorf("%w: endpoint_id or url is required", domain.ErrValidation)
	}
	ch := t.Channel
	if ch == "" {
		ch = domain.ChannelWebhook
	}
	if !ch.Valid() {
		return nil, fmt.Errorf("%w: unknown channel %q", domain.ErrValidation, ch)
	}
	return &domain.Endpoint{
		Channel:           ch,
		URL:               t.URL,
		P256dh:            t.P256dh,
		Auth:              t.Auth,
		Secret:            t.Secret,
		IsActive:          true,
		PermissionGranted: true,
	}, nil
}

// Bulk applies one operation to every id. Ids that do not exist are counted
// as not found and are not errors.
func (s *Service) Bulk(ctx context.Context, op string, ids []string, upd *domain.EndpointUpdate) (domain.BulkResult, error) {
	result := domain.BulkResult{Operation: op, TotalItems: len(ids), Errors: []string{}}
	switch op {
	case domain.BulkActivate, domain.BulkDeactivate, domain.BulkDelete, domain.BulkTest:
	case domain.BulkUpdate:
		if upd == nil {
			return result, fmt.Errorf("%w: update requires fields to change", domain.ErrValidation)
		}
	default:
		return result, fmt.Errorf("%w: bulk operation %q", domain.ErrUnsupportedOperation, op)
	}

	var merr *multierror.Error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("bulk %s stopped: %w", op, err))
			break
		}

		ep, err := s.store.GetEndpoint(ctx, id)
		if err != nil {
			result.FailedItems++
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", id, err))
			continue
		}
		if ep == nil {
			continue
		}
		result.FoundItems++

		if err := s.bulkOne(ctx, op, ep, upd); err != nil {
			result.FailedItems++
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", id, err))
			continue
		}
		result.SuccessfulItems++
	}

	if merr != nil {
		for _, err := range merr.Errors {
			result.Errors = append(result.Errors, err.Error())
		}
	}
	s.logger.Info("bulk operation finished",
		"operation", op,
		"total", result.TotalItems,
		"found", result.FoundItems,
		"successful", result.SuccessfulItems,
		"failed", result.FailedItems,
	)
	return result, nil
}

func (s *Service) bulkOne(ctx context.Context, op string, ep *domain.Endpoint, upd *domain.EndpointUpdate) error {
	switch op {
	case domain.BulkActivate:
		active := true
		_, err := s.UpdateEndpoint(ctx, ep.ID, domain.EndpointUpdate{IsActive: &active})
		return err
	case domain.BulkDeactivate:
		active := false
		_, err := s.UpdateEndpoint(ctx, ep.ID, domain.EndpointUpdate{IsActive: &active})
		return err
	case domain.BulkDelete:
		return s.Unsubscribe(ctx, ep.ID)
	case domain.BulkUpdate:
		_, err := s.UpdateEndpoint(ctx, ep.ID, *upd)
		return err
	case domain.BulkTest:
		res := s.TestEndpoint(ctx, TestTarget{EndpointID: ep.ID})
		if !res.Success {
			return errors.New(res.StatusMessage)
		}
		return nil
	}
	return nil
}
