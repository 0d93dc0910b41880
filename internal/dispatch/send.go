package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Priya8975/notification-dispatch/internal/channel"
	"github.com/Priya8975/notification-dispatch/internal/domain"
	"github.com/Priya8975/notification-dispatch/internal/engine"
	"github.com/Priya8975/notification-dispatch/internal/metrics"
	"github.com/Priya8975/notification-dispatch/internal/worker"
)

// target is one resolved delivery destination. Stored targets are endpoint
// rows; the rest are ad-hoc email recipients.
type target struct {
	endpoint domain.Endpoint
	stored   bool
}

type job struct {
	target
	adapter channel.Adapter
	payload []byte
	err     error
}

// SendNotification fans one notification out to every endpoint and
// recipient the request selects. Per-endpoint failures never fail the call;
// only an invalid request or a scheduling error is returned as an error.
func (s *Service) SendNotification(ctx context.Context, req SendRequest) (domain.DeliveryReport, error) {
	if err := req.normalize(); err != nil {
		return domain.DeliveryReport{Errors: []string{}}, err
	}
	if req.ScheduledAt != nil && req.ScheduledAt.After(s.now()) && s.scheduler != nil {
		return s.schedule(ctx, req)
	}
	return s.fanOut(ctx, req), nil
}

// SendToEndpoint delivers the request to a single stored endpoint.
func (s *Service) SendToEndpoint(ctx context.Context, endpointID string, req SendRequest) (domain.DeliveryReport, error) {
	ep, err := s.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return domain.DeliveryReport{Errors: []string{}}, fmt.Errorf("getting endpoint: %w", err)
	}
	if ep == nil {
		return domain.DeliveryReport{Errors: []string{}}, fmt.Errorf("%w: %s", domain.ErrEndpointNotFound, endpointID)
	}

	req.EndpointIDs = []string{endpointID}
	req.UserIDs, req.Channels, req.DeviceTypes = nil, nil, nil
	req.Category, req.RecentOnly = "", false
	req.Recipients, req.Groups, req.Broadcast = nil, nil, false
	return s.SendNotification(ctx, req)
}

// NotifyReport notifies a report's recipient about a report event.
func (s *Service) NotifyReport(ctx context.Context, rc domain.ReportNotificationContext, t domain.NotificationType, p domain.Priority) (domain.DeliveryReport, error) {
	if rc.ReportID == "" || rc.RecipientID == "" {
		return domain.DeliveryReport{Errors: []string{}}, fmt.Errorf("%w: report_id and recipient_id are required", domain.ErrValidation)
	}
	return s.SendNotification(ctx, ReportRequest(rc, t, p))
}

// HandleScheduled runs a queued request. It is the worker pool handler for
// the scheduled-send dispatcher.
func (s *Service) HandleScheduled(ctx context.Context, item engine.QueuedItem) {
	var req SendRequest
	if err := json.Unmarshal(item.Payload, &req); err != nil {
		s.logger.Error("failed to decode scheduled notification", "queue_id", item.ID, "error", err)
		return
	}
	req.ScheduledAt = nil

	report, err := s.SendNotification(ctx, req)
	if err != nil {
		s.logger.Error("scheduled notification rejected", "queue_id", item.ID, "error", err)
		return
	}
	s.logger.Info("scheduled notification sent",
		"queue_id", item.ID,
		"notification_id", report.NotificationID,
		"targeted", report.TotalTargeted,
		"successful", report.SuccessfulDeliveries,
	)
}

func (s *Service) schedule(ctx context.Context, req SendRequest) (domain.DeliveryReport, error) {
	due := req.ScheduledAt.UTC()
	req.ScheduledAt = nil

	body, err := json.Marshal(req)
	if err != nil {
		return domain.DeliveryReport{Errors: []string{}}, fmt.Errorf("marshaling scheduled notification: %w", err)
	}
	id, err := s.scheduler.Enqueue(ctx, due, body)
	if err != nil {
		return domain.DeliveryReport{Errors: []string{}}, fmt.Errorf("scheduling notification: %w", err)
	}

	s.logger.Info("notification scheduled", "queue_id", id, "scheduled_at", due)
	return domain.DeliveryReport{
		NotificationID: id,
		Errors:         []string{},
		Scheduled:      true,
		ScheduledAt:    &due,
	}, nil
}

func (s *Service) fanOut(ctx context.Context, req SendRequest) (report domain.DeliveryReport) {
	begin := time.Now()
	report = domain.DeliveryReport{NotificationID: uuid.NewString(), Errors: []string{}}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("dispatch panicked", "notification_id", report.NotificationID, "panic", r)
			report.Errors = appendUnique(report.Errors, fmt.Sprintf("dispatch error: %v", r))
		}
		report.SuccessRate = domain.SuccessRate(report.SuccessfulDeliveries, report.TotalTargeted)
		report.DeliveryTimeMs = time.Since(begin).Milliseconds()
	}()

	sentAt := s.now()
	allowed := s.preferenceMemo(ctx, req)
	s.notifyRealtime(req, report.NotificationID, sentAt, allowed)

	targets, err := s.resolveTargets(ctx, req, allowed)
	if err != nil {
		s.logger.Error("failed to resolve endpoints", "notification_id", report.NotificationID, "error", err)
		report.Errors = append(report.Errors, "failed to resolve endpoints")
		return report
	}
	report.TotalTargeted = len(targets)
	metrics.ObserveFanout(len(targets))
	if len(targets) == 0 {
		return report
	}

	jobs := s.render(req.message(report.NotificationID, sentAt), targets)
	results := make([]domain.DeliveryResult, len(jobs))
	indices := make([]int, len(jobs))
	for i := range indices {
		indices[i] = i
	}
	pace := newPacer(s.cfg.SendDelay, domain.ChannelSlack, domain.ChannelTeams)
	worker.Run(ctx, s.cfg.MaxConcurrency, indices, func(ctx context.Context, i int) {
		results[i] = s.deliver(ctx, report.NotificationID, jobs[i], pace)
	}, s.logger)

	for _, r := range results {
		if r.Success {
			report.SuccessfulDeliveries++
			continue
		}
		report.FailedDeliveries++
		if r.RateLimited {
			report.RateLimited++
		}
		if r.Error != "" {
			report.Errors = appendUnique(report.Errors, r.Error)
		}
	}
	report.Results = results

	s.logger.Info("notification dispatched",
		"notification_id", report.NotificationID,
		"type", req.Type,
		"targeted", report.TotalTargeted,
		"successful", report.SuccessfulDeliveries,
		"failed", report.FailedDeliveries,
		"rate_limited", report.RateLimited,
	)
	return report
}

// preferenceMemo returns a lookup of a user's allowed channels that hits
// the resolver at most once per user for this request.
func (s *Service) preferenceMemo(ctx context.Context, req SendRequest) func(userID string) map[domain.DeliveryChannel]bool {
	memo := make(map[string]map[domain.DeliveryChannel]bool)
	return func(userID string) map[domain.DeliveryChannel]bool {
		if allowed, ok := memo[userID]; ok {
			return allowed
		}
		allowed := s.prefs.Channels(ctx, userID, req.Type, req.Priority)
		memo[userID] = allowed
		return allowed
	}
}

func (s *Service) resolveTargets(ctx context.Context, req SendRequest, allowed func(string) map[domain.DeliveryChannel]bool) ([]target, error) {
	var out []target
	seen := make(map[string]bool)

	if req.targetsEndpoints() {
		eps, err := s.store.GetEndpointsMatching(ctx, req.filter(s.cfg.RecentWindow))
		if err != nil {
			return nil, fmt.Errorf("getting matching endpoints: %w", err)
		}
		for _, ep := range eps {
			if ep.MinPriority.Valid() && req.Priority < ep.MinPriority {
				continue
			}
			owner := ep.Owner()
			if owner != "" && owner == req.SenderID {
				continue
			}
			if pc := ep.Channel.PreferenceChannel(); pc != "" && owner != "" && !allowed(owner)[pc] {
				continue
			}
			key := string(ep.Channel) + "|" + ep.URL
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, target{endpoint: ep, stored: true})
		}
	}

	if len(req.Recipients) == 0 {
		return out, nil
	}
	if _, err := s.adapters.Get(domain.ChannelEmail); err != nil {
		s.logger.Debug("email adapter not configured, skipping email recipients")
		return out, nil
	}
	for _, rc := range req.Recipients {
		if rc.Email == "" || rc.UserID == "" {
			continue
		}
		if req.SenderID != "" && rc.UserID == req.SenderID {
			continue
		}
		if !allowed(rc.UserID)[domain.DeliveryEmail] {
			continue
		}
		key := string(domain.ChannelEmail) + "|" + rc.Email
		if seen[key] {
			continue
		}
		seen[key] = true
		userID := rc.UserID
		out = append(out, target{endpoint: domain.Endpoint{
			Channel:           domain.ChannelEmail,
			UserID:            &userID,
			Name:              rc.Name,
			URL:               rc.Email,
			IsActive:          true,
			PermissionGranted: true,
		}})
	}
	return out, nil
}

// render builds each channel's payload once for the whole fan-out.
func (s *Service) render(msg channel.Message, targets []target) []job {
	type rendered struct {
		adapter channel.Adapter
		payload []byte
		err     error
	}
	byChannel := make(map[domain.ChannelType]rendered)

	jobs := make([]job, len(targets))
	for i, t := range targets {
		ch := t.endpoint.Channel
		r, ok := byChannel[ch]
		if !ok {
			r.adapter, r.err = s.adapters.Get(ch)
			if r.err == nil {
				r.payload, r.err = r.adapter.BuildPayload(msg)
			}
			byChannel[ch] = r
		}
		jobs[i] = job{target: t, adapter: r.adapter, payload: r.payload, err: r.err}
	}
	return jobs
}

func (s *Service) deliver(ctx context.Context, notificationID string, j job, pace *pacer) (res domain.DeliveryResult) {
	ep := j.endpoint
	res = domain.DeliveryResult{EndpointID: ep.ID, Channel: ep.Channel}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("delivery panicked", "endpoint_id", ep.ID, "channel", ep.Channel, "panic", r)
			res.Success = false
			res.Error = fmt.Sprintf("dispatch error: %v", r)
		}
	}()

	if j.err != nil {
		s.recordOutcome(ctx, notificationID, j.target, nil, channel.Result{Err: j.err}, metrics.OutcomeTransient, false)
		res.Error = j.err.Error()
		return res
	}

	if s.limiter != nil && j.stored {
		limit := ep.RateLimitPerMinute
		if limit <= 0 {
			limit = s.cfg.RateLimitPerMinute
		}
		if err := s.limiter.Allow(ctx, ep.Owner(), ep.ID, limit); errors.Is(err, domain.ErrRateLimited) {
			s.recordOutcome(ctx, notificationID, j.target, j.payload, channel.Result{Err: err}, metrics.OutcomeRateLimited, false)
			res.RateLimited = true
			res.Error = err.Error()
			return res
		}
	}

	var out channel.Result
	if err := pace.wait(ctx, ep.Channel); err != nil {
		out = channel.Result{Err: fmt.Errorf("waiting to send: %w", err)}
	} else {
		out = s.send(ctx, j.adapter, j.target, j.payload)
	}
	s.recordOutcome(ctx, notificationID, j.target, j.payload, out, classify(out), true)

	res.Success = out.Success
	res.MessageID = out.MessageID
	res.Permanent = out.Permanent
	res.LatencyMs = out.Latency.Milliseconds()
	if out.Err != nil {
		res.Error = out.Err.Error()
	}
	return res
}

// send runs one transport call under the circuit breaker and send timeout.
func (s *Service) send(ctx context.Context, a channel.Adapter, t target, payload []byte) channel.Result {
	ep := t.endpoint
	guarded := s.breaker != nil && t.stored
	if guarded {
		if err := s.breaker.Allow(ctx, ep.ID); err != nil {
			return channel.Result{Err: err}
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	res := a.Send(sendCtx, ep, payload)

	if guarded {
		switch {
		case res.Success:
			s.breaker.RecordSuccess(ctx, ep.ID)
		case !res.Permanent:
			s.breaker.RecordFailure(ctx, ep.ID)
		}
	}
	return res
}

func classify(res channel.Result) string {
	switch {
	case res.Success:
		return metrics.OutcomeSuccess
	case res.Permanent:
		return metrics.OutcomePermanent
	default:
		return metrics.OutcomeTransient
	}
}

// recordOutcome persists what one send produces. Rate-limited sends only
// leave an attempt row. Store errors are logged and never change the
// delivery result.
func (s *Service) recordOutcome(ctx context.Context, notificationID string, t target, payload []byte, res channel.Result, outcome string, replayable bool) {
	ctx = context.WithoutCancel(ctx)
	ep := t.endpoint
	now := s.now()

	metrics.ObserveDelivery(ep.Channel, outcome, res.Latency)
	switch outcome {
	case metrics.OutcomeSuccess:
		s.logger.Info("delivery succeeded",
			"notification_id", notificationID,
			"endpoint_id", ep.ID,
			"channel", ep.Channel,
			"latency_ms", res.Latency.Milliseconds(),
		)
	default:
		s.logger.Warn("delivery failed",
			"notification_id", notificationID,
			"endpoint_id", ep.ID,
			"channel", ep.Channel,
			"outcome", outcome,
			"status_code", res.StatusCode,
			"error", res.Err,
			"latency_ms", res.Latency.Milliseconds(),
		)
	}

	if t.stored && outcome != metrics.OutcomeRateLimited {
		s.updateEndpointStats(ctx, ep.ID, res, now)
	}
	s.recordAttempt(ctx, notificationID, ep, payload, res, now)

	if outcome == metrics.OutcomeTransient && replayable {
		fr := &domain.FailureRecord{
			ID:             uuid.NewString(),
			NotificationID: notificationID,
			EndpointID:     ep.ID,
			Channel:        ep.Channel,
			TargetURL:      ep.URL,
			Payload:        payload,
			Error:          errorText(res.Err),
			StatusCode:     statusCode(res),
			CreatedAt:      now,
		}
		if err := s.store.AppendFailureRecord(ctx, fr); err != nil {
			s.logger.Error("failed to record failure", "endpoint_id", ep.ID, "error", err)
		}
	}

	if outcome == metrics.OutcomeRateLimited {
		return
	}
	lat := res.Latency.Milliseconds()
	delta := domain.DailyStatDelta{Channel: ep.Channel, Group: ep.Group, Day: now, LatencyMs: &lat}
	if res.Success {
		delta.Sent = 1
	} else {
		delta.Failed = 1
	}
	if err := s.store.UpsertDailyStat(ctx, delta); err != nil {
		s.logger.Error("failed to update daily stats", "channel", ep.Channel, "error", err)
	}
}

// updateEndpointStats applies one send result to the stored endpoint with a
// read-modify-write. Concurrent sends to the same endpoint are last write
// wins.
func (s *Service) updateEndpointStats(ctx context.Context, endpointID string, res channel.Result, now time.Time) {
	ep, err := s.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		s.logger.Error("failed to load endpoint for stats", "endpoint_id", endpointID, "error", err)
		return
	}
	if ep == nil {
		return
	}

	if res.Success {
		ep.SuccessCount++
		ep.LastError = nil
		ep.LastUsedAt = &now
	} else {
		ep.FailureCount++
		msg := errorText(res.Err)
		ep.LastError = &msg
	}
	if res.Permanent {
		ep.IsActive = false
		ep.PermissionGranted = false
		s.logger.Warn("endpoint deactivated after permanent failure",
			"endpoint_id", ep.ID,
			"channel", ep.Channel,
			"error", res.Err,
		)
	}
	ep.UpdatedAt = now

	if err := s.store.UpsertEndpoint(ctx, ep); err != nil {
		s.logger.Error("failed to update endpoint stats", "endpoint_id", endpointID, "error", err)
	}
}

func (s *Service) recordAttempt(ctx context.Context, notificationID string, ep domain.Endpoint, payload []byte, res channel.Result, now time.Time) {
	a := &domain.DeliveryAttempt{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		EndpointID:     ep.ID,
		Channel:        ep.Channel,
		Target:         ep.URL,
		Payload:        payload,
		Status:         domain.StatusSent,
		StatusCode:     statusCode(res),
		ResponseTimeMs: res.Latency.Milliseconds(),
		CreatedAt:      now,
	}
	if !res.Success {
		a.Status = domain.StatusFailed
		msg := errorText(res.Err)
		a.ErrorMessage = &msg
	}
	if err := s.store.RecordDeliveryAttempt(ctx, a); err != nil {
		s.logger.Error("failed to record delivery attempt", "endpoint_id", ep.ID, "error", err)
	}
}

func statusCode(res channel.Result) *int {
	if res.StatusCode == 0 {
		return nil
	}
	code := res.StatusCode
	return &code
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
