package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Priya8975/notification-dispatch/internal/channel"
	"github.com/Priya8975/notification-dispatch/internal/domain"
	"github.com/Priya8975/notification-dispatch/internal/engine"
	"github.com/Priya8975/notification-dispatch/internal/preference"
	"github.com/Priya8975/notification-dispatch/internal/store"
)

func TestSendNotification_RateLimitRejectsThirtyFirst(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hook := &fakeAdapter{ch: domain.ChannelWebhook}
	svc, mem := newTestService(t, []channel.Adapter{hook}, WithRateLimiter(engine.NewRateLimiter(client, testLogger())))
	ctx := context.Background()
	addEndpoint(t, mem, domain.Endpoint{Channel: domain.ChannelWebhook, RateLimitPerMinute: 30})

	for i := 0; i < 30; i++ {
		report, err := svc.SendNotification(ctx, alert("burst"))
		require.NoError(t, err)
		require.Equal(t, 1, report.SuccessfulDeliveries, "send %d", i+1)
	}

	report, err := svc.SendNotification(ctx, alert("one too many"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalTargeted)
	assert.Equal(t, 1, report.FailedDeliveries)
	assert.Equal(t, 1, report.RateLimited)
	assert.True(t, report.Results[0].RateLimited)
	assert.Contains(t, report.Errors[0], domain.ErrRateLimited.Error())
	assert.Equal(t, int32(30), hook.sends.Load(), "rejected send never reaches the transport")

	failures, _ := mem.ListFailures(ctx, domain.FailureFilter{})
	assert.Empty(t, failures, "a rate-limited send is not queued for retry")
}

type stubBreaker struct {
	open     bool
	failures int
	resets   int
}

func (b *stubBreaker) Allow(context.Context, string) error {
	if b.open {
		return domain.ErrCircuitOpen
	}
	return nil
}

func (b *stubBreaker) RecordSuccess(context.Context, string) {}

func (b *stubBreaker) RecordFailure(context.Context, string) { b.failures++ }

func (b *stubBreaker) Reset(context.Context, string) error {
	b.resets++
	return nil
}

func TestSendNotification_OpenCircuitIsTransient(t *testing.T) {
	hook := &fakeAdapter{ch: domain.ChannelWebhook}
	breaker := &stubBreaker{open: true}
	svc, mem := newTestService(t, []channel.Adapter{hook}, WithCircuitBreaker(breaker))
	ctx := context.Background()
	ep := addEndpoint(t, mem, domain.Endpoint{Channel: domain.ChannelWebhook})

	report, err := svc.SendNotification(ctx, alert("skip"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.FailedDeliveries)
	assert.Equal(t, int32(0), hook.sends.Load())

	got, _ := mem.GetEndpoint(ctx, ep.ID)
	assert.True(t, got.IsActive)
	failures, _ := mem.ListFailures(ctx, domain.FailureFilter{})
	assert.Len(t, failures, 1, "open circuit still leaves a record to replay")
}

func TestBulk_DeleteCountsOnlyExisting(t *testing.T) {
	svc, mem := newTestService(t, []channel.Adapter{&fakeAdapter{ch: domain.ChannelWebhook}})
	ctx := context.Background()
	a := addEndpoint(t, mem, domain.Endpoint{Channel: domain.ChannelWebhook})
	b := addEndpoint(t, mem, domain.Endpoint{Channel: domain.ChannelWebhook})

	res, err := svc.Bulk(ctx, domain.BulkDelete, []string{a.ID, "missing-1", b.ID, "missing-2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.TotalItems)
	assert.Equal(t, 2, res.FoundItems)
	assert.Equal(t, 2, res.SuccessfulItems)
	assert.Equal(t, 0, res.FailedItems)
	assert.Empty(t, res.Errors)

	left, _ := mem.GetEndpointsMatching(ctx, domain.EndpointFilter{IncludeInactive: true})
	assert.Empty(t, left)
}

func TestBulk_DeactivateActivateAndUpdate(t *testing.T) {
	svc, mem := newTestService(t, []channel.Adapter{&fakeAdapter{ch: domain.ChannelWebhook}})
	ctx := context.Background()
	ep := addEndpoint(t, mem, domain.Endpoint{Channel: domain.ChannelWebhook})

	_, err := svc.Bulk(ctx, domain.BulkDeactivate, []string{ep.ID}, nil)
	require.NoError(t, err)
	got, _ := mem.GetEndpoint(ctx, ep.ID)
	assert.False(t, got.IsActive)

	got.PermissionGranted = false
	require.NoError(t, mem.UpsertEndpoint(ctx, got))
	_, err = svc.Bulk(ctx, domain.BulkActivate, []string{ep.ID}, nil)
	require.NoError(t, err)
	got, _ = mem.GetEndpoint(ctx, ep.ID)
	assert.True(t, got.Eligible(), "activation restores permission")

	name := "renamed"
	res, err := svc.Bulk(ctx, domain.BulkUpdate, []string{ep.ID}, &domain.EndpointUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessfulItems)
	got, _ = mem.GetEndpoint(ctx, ep.ID)
	assert.Equal(t, "renamed", got.Name)
}

func TestBulk_TestReportsFailures(t *testing.T) {
	hook := &fakeAdapter{ch: domain.ChannelWebhook, send: func(domain.Endpoint, []byte) channel.Result {
		return channel.Result{Err: errors.New("HTTP 503")}
	}}
	svc, mem := newTestService(t, []channel.Adapter{hook})
	ep := addEndpoint(t, mem, domain.Endpoint{Channel: domain.ChannelWebhook})

	res, err := svc.Bulk(context.Background(), domain.BulkTest, []string{ep.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedItems)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "HTTP 503")
}

func TestBulk_UnknownOperation(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.Bulk(context.Background(), "explode", []string{"a"}, nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)

	_, err = svc.Bulk(context.Background(), domain.BulkUpdate, []string{"a"}, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func seedFailure(t *testing.T, mem *store.MemoryStore, fr domain.FailureRecord) domain.FailureRecord {
	t.Helper()
	if fr.ID == "" {
		fr.ID = uuid.NewString()
	}
	if fr.CreatedAt.IsZero() {
		fr.CreatedAt = time.Now().Add(-time.Hour)
	}
	require.NoError(t, mem.AppendFailureRecord(context.Background(), &fr))
	return fr
}

func TestRetryFailed_NoPayload(t *testing.T) {
	svc, mem := newTestService(t, []channel.Adapter{&fakeAdapter{ch: domain.ChannelWebhook}})
	fr := seedFailure(t, mem, domain.FailureRecord{Channel: domain.ChannelWebhook, TargetURL: "https://example.com/x"})

	n, err := svc.RetryFailed(context.Background(), []string{fr.ID})
	assert.Equal(t, 0, n)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoPayload)
	assert.Contains(t, err.Error(), "cannot retry, no payload")
}

func TestRetryFailed_ReplaysPayloadAndResolves(t *testing.T) {
	var replayed []byte
	hook := &fakeAdapter{ch: domain.ChannelWebhook, send: func(_ domain.Endpoint, payload []byte) channel.Result {
		replayed = payload
		return channel.Result{Success: true}
	}}
	svc, mem := newTestService(t, []channel.Adapter{hook})
	ctx := context.Background()
	ep := addEndpoint(t, mem, domain.Endpoint{Channel: domain.ChannelWebhook})
	fr := seedFailure(t, mem, domain.FailureRecord{
		EndpointID: ep.ID,
		Channel:    domain.ChannelWebhook,
		TargetURL:  ep.URL,
		Payload:    []byte(`{"original":true}`),
	})

	n, err := svc.RetryFailed(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.JSONEq(t, `{"original":true}`, string(replayed))

	got, _ := mem.ListFailures(ctx, domain.FailureFilter{IDs: []string{fr.ID}})
	require.Len(t, got, 1)
	assert.True(t, got[0].Resolved)
	assert.NotNil(t, got[0].ResolvedAt)

	updated, _ := mem.GetEndpoint(ctx, ep.ID)
	assert.Equal(t, 1, updated.SuccessCount)

	failures, _ := mem.ListFailures(ctx, domain.FailureFilter{UnresolvedOnly: true})
	assert.Empty(t, failures)
}

func TestRetryFailed_BackoffOnRepeatedFailure(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hook := &fakeAdapter{ch: domain.ChannelWebhook, send: func(domain.Endpoint, []byte) channel.Result {
		return channel.Result{Err: errors.New("HTTP 502"), StatusCode: 502}
	}}
	svc, mem := newTestService(t, []channel.Adapter{hook}, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	ep := addEndpoint(t, mem, domain.Endpoint{Channel: domain.ChannelWebhook})
	fr := seedFailure(t, mem, domain.FailureRecord{
		EndpointID: ep.ID,
		Channel:    domain.ChannelWebhook,
		TargetURL:  ep.URL,
		Payload:    []byte(`{}`),
		RetryCount: 2,
		CreatedAt:  now.Add(-time.Hour),
	})

	n, err := svc.RetryFailed(ctx, nil)
	assert.Equal(t, 0, n)
	assert.Error(t, err)

	got, _ := mem.ListFailures(ctx, domain.FailureFilter{IDs: []string{fr.ID}})
	require.Len(t, got, 1)
	assert.False(t, got[0].Resolved)
	assert.Equal(t, 3, got[0].RetryCount)
	require.NotNil(t, got[0].NextRetryAt)
	assert.Equal(t, now.Add(8*time.Minute), *got[0].NextRetryAt)

	n, err = svc.RetryFailed(ctx, nil)
	assert.Equal(t, 0, n)
	assert.NoError(t, err, "record is not due again yet")
	assert.Equal(t, int32(1), hook.sends.Load())
}

func TestRetryFailed_SkipsOutsideWindow(t *testing.T) {
	hook := &fakeAdapter{ch: domain.ChannelWebhook}
	svc, mem := newTestService(t, []channel.Adapter{hook})
	seedFailure(t, mem, domain.FailureRecord{
		Channel:   domain.ChannelWebhook,
		TargetURL: "https://example.com/old",
		Payload:   []byte(`{}`),
		CreatedAt: time.Now().Add(-48 * time.Hour),
	})

	n, err := svc.RetryFailed(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int32(0), hook.sends.Load())
}

func TestRetryFailed_StopsWhenCancelled(t *testing.T) {
	hook := &fakeAdapter{ch: domain.ChannelWebhook}
	svc, mem := newTestService(t, []channel.Adapter{hook})
	for i := 0; i < 3; i++ {
		seedFailure(t, mem, domain.FailureRecord{Channel: domain.ChannelWebhook, TargetURL: "https://example.com/x", Payload: []byte(`{}`)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := svc.RetryFailed(ctx, nil)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), hook.sends.Load())
}

func TestRetryFailed_ResolvesWhenEndpointGone(t *testing.T) {
	hook := &fakeAdapter{ch: domain.ChannelWebhook}
	svc, mem := newTestService(t, []channel.Adapter{hook})
	ctx := context.Background()

	deleted := addEndpoint(t, mem, domain.Endpoint{Channel: domain.ChannelWebhook})
	inactive := addEndpoint(t, mem, domain.Endpoint{Channel: domain.ChannelWebhook})
	_, err := mem.DeleteEndpoint(ctx, deleted.ID)
	require.NoError(t, err)
	inactive.IsActive = false
	require.NoError(t, mem.UpsertEndpoint(ctx, &inactive))

	for _, ep := range []domain.Endpoint{deleted, inactive} {
		seedFailure(t, mem, domain.FailureRecord{
			EndpointID: ep.ID,
			Channel:    domain.ChannelWebhook,
			TargetURL:  ep.URL,
			Payload:    []byte(`{}`),
		})
	}

	n, err := svc.RetryFailed(ctx, nil)
	assert.Equal(t, 0, n)
	require.Error(t, err)
	assert.ErrorIs(t, err, errEndpointGone)
	assert.Equal(t, int32(0), hook.sends.Load())

	open, _ := mem.ListFailures(ctx, domain.FailureFilter{UnresolvedOnly: true})
	assert.Empty(t, open, "records for gone endpoints are closed")
	all, _ := mem.ListFailures(ctx, domain.FailureFilter{})
	require.Len(t, all, 2)
	for _, fr := range all {
		assert.True(t, fr.Resolved)
		assert.NotNil(t, fr.ResolvedAt)
		assert.Contains(t, fr.Error, "endpoint gone")
	}

	n, err = svc.RetryFailed(ctx, nil)
	assert.Equal(t, 0, n)
	assert.NoError(t, err, "a second sweep has nothing left to retry")
}

func TestRetryFailed_WaitsSendDelayBetweenRecords(t *testing.T) {
	var mu sync.Mutex
	var at []time.Time
	hook := &fakeAdapter{ch: domain.ChannelWebhook, send: func(domain.Endpoint, []byte) channel.Result {
		mu.Lock()
		at = append(at, time.Now())
		mu.Unlock()
		return channel.Result{Success: true}
	}}
	mem := store.NewMemory()
	resolver := preference.NewResolver(mem, preference.DefaultTable(), testLogger())
	svc := NewService(mem, resolver, channel.NewRegistry(hook), Config{SendDelay: 40 * time.Millisecond}, testLogger())
	for i := 0; i < 3; i++ {
		seedFailure(t, mem, domain.FailureRecord{Channel: domain.ChannelWebhook, TargetURL: "https://example.com/x", Payload: []byte(`{}`)})
	}

	start := time.Now()
	n, err := svc.RetryFailed(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, at, 3)
	assert.Less(t, at[0].Sub(start), 30*time.Millisecond, "first replay is not delayed")
	for i := 1; i < len(at); i++ {
		assert.GreaterOrEqual(t, at[i].Sub(at[i-1]), 40*time.Millisecond, "replay %d", i)
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Minute, Backoff(0))
	assert.Equal(t, 2*time.Minute, Backoff(1))
	assert.Equal(t, 32*time.Minute, Backoff(5))
	assert.Equal(t, Backoff(16), Backoff(100))
}

func TestPurgeResolved(t *testing.T) {
	svc, mem := newTestService(t, nil)
	old := time.Now().Add(-40 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)
	seedFailure(t, mem, domain.FailureRecord{Resolved: true, ResolvedAt: &old})
	seedFailure(t, mem, domain.FailureRecord{Resolved: true, ResolvedAt: &recent})
	seedFailure(t, mem, domain.FailureRecord{})

	n, err := svc.PurgeResolved(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	left, _ := mem.ListFailures(context.Background(), domain.FailureFilter{})
	assert.Len(t, left, 2)
}

func TestGetStats(t *testing.T) {
	svc, mem := newTestService(t, nil)
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	lat100, lat300 := int64(100), int64(300)

	require.NoError(t, mem.UpsertDailyStat(ctx, domain.DailyStatDelta{Channel: domain.ChannelSlack, Day: day, Sent: 1, LatencyMs: &lat100}))
	require.NoError(t, mem.UpsertDailyStat(ctx, domain.DailyStatDelta{Channel: domain.ChannelSlack, Day: day.Add(24 * time.Hour), Failed: 1, LatencyMs: &lat300}))
	require.NoError(t, mem.UpsertDailyStat(ctx, domain.DailyStatDelta{Channel: domain.ChannelWebPush, Day: day, Sent: 2, Received: 1, LatencyMs: &lat100}))
	addEndpoint(t, mem, domain.Endpoint{Channel: domain.ChannelWebhook})
	seedFailure(t, mem, domain.FailureRecord{})

	stats, err := svc.GetStats(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalSent)
	assert.Equal(t, 1, stats.TotalFailed)
	assert.Equal(t, 1, stats.TotalReceived)
	assert.Equal(t, 75.0, stats.SuccessRate)
	assert.Equal(t, 1, stats.ActiveEndpoints)
	assert.Equal(t, 1, stats.UnresolvedFailures)
	assert.Len(t, stats.Daily, 3)

	slack := stats.ByChannel[domain.ChannelSlack]
	assert.Equal(t, 50.0, slack.SuccessRate)
	assert.Equal(t, 200.0, slack.AvgLatencyMs)

	_, err = svc.GetStats(ctx, day.Add(48*time.Hour), day)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetStats_Empty(t *testing.T) {
	svc, _ := newTestService(t, nil)
	stats, err := svc.GetStats(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0.0, stats.SuccessRate)
	assert.Empty(t, stats.ByChannel)
}

func TestRegisterEndpoint(t *testing.T) {
	breaker := &stubBreaker{}
	svc, mem := newTestService(t, []channel.Adapter{
		channel.NewSlackAdapter(channel.NewHTTPClient(time.Second)),
	}, WithCircuitBreaker(breaker))
	ctx := context.Background()

	_, err := svc.RegisterEndpoint(ctx, domain.Endpoint{Channel: domain.ChannelSlack, URL: "https://evil.example.com/services/x"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.RegisterEndpoint(ctx, domain.Endpoint{Channel: "pager", URL: "https://x"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	url := "https://hooks.slack.com/services/T000/B000/XXXX"
	ep, err := svc.RegisterEndpoint(ctx, domain.Endpoint{Channel: domain.ChannelSlack, URL: url, Name: "ops"})
	require.NoError(t, err)
	assert.NotEmpty(t, ep.ID)
	assert.True(t, ep.Eligible())

	ep.IsActive, ep.PermissionGranted = false, false
	require.NoError(t, mem.UpsertEndpoint(ctx, ep))

	again, err := svc.RegisterEndpoint(ctx, domain.Endpoint{Channel: domain.ChannelSlack, URL: url, Name: "ops-alerts"})
	require.NoError(t, err)
	assert.Equal(t, ep.ID, again.ID, "same URL updates in place")
	assert.True(t, again.Eligible(), "re-registration reactivates")
	assert.Equal(t, "ops-alerts", again.Name)
	assert.Equal(t, 1, breaker.resets)
}

func TestUnsubscribeAndAcknowledge(t *testing.T) {
	svc, mem := newTestService(t, nil)
	ctx := context.Background()
	ep := addEndpoint(t, mem, domain.Endpoint{Channel: domain.ChannelWebPush, Group: "mobile"})

	require.NoError(t, svc.Acknowledge(ctx, ep.ID))
	stats, _ := mem.ListDailyStats(ctx, time.Now(), time.Now())
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Received)

	require.NoError(t, svc.Unsubscribe(ctx, ep.ID))
	assert.ErrorIs(t, svc.Unsubscribe(ctx, ep.ID), domain.ErrEndpointNotFound)
	assert.ErrorIs(t, svc.Acknowledge(ctx, ep.ID), domain.ErrEndpointNotFound)
}

func TestTestEndpoint(t *testing.T) {
	hook := &fakeAdapter{ch: domain.ChannelWebhook}
	svc, mem := newTestService(t, []channel.Adapter{hook})
	ctx := context.Background()

	res := svc.TestEndpoint(ctx, TestTarget{URL: "invalid"})
	assert.False(t, res.Success)
	assert.Equal(t, int32(0), hook.sends.Load(), "invalid target never reaches the network")

	res = svc.TestEndpoint(ctx, TestTarget{URL: "https://example.com/ok"})
	assert.True(t, res.Success)
	assert.Equal(t, "delivered", res.StatusMessage)

	ep := addEndpoint(t, mem, domain.Endpoint{Channel: domain.ChannelWebhook})
	res = svc.TestEndpoint(ctx, TestTarget{EndpointID: ep.ID})
	assert.True(t, res.Success)
	got, _ := mem.GetEndpoint(ctx, ep.ID)
	assert.Equal(t, 0, got.SuccessCount, "tests leave counters alone")

	res = svc.TestEndpoint(ctx, TestTarget{EndpointID: "missing"})
	assert.False(t, res.Success)
	assert.Contains(t, res.StatusMessage, domain.ErrEndpointNotFound.Error())
}

func TestHandleScheduled(t *testing.T) {
	hook := &fakeAdapter{ch: domain.ChannelWebhook}
	svc, mem := newTestService(t, []channel.Adapter{hook})
	addEndpoint(t, mem, domain.Endpoint{Channel: domain.ChannelWebhook})

	svc.HandleScheduled(context.Background(), engine.QueuedItem{
		ID:      "q1",
		Payload: []byte(`{"type":"system_alert","priority":"high","title":"From queue"}`),
	})
	assert.Equal(t, int32(1), hook.sends.Load())

	svc.HandleScheduled(context.Background(), engine.QueuedItem{ID: "q2", Payload: []byte(`not json`)})
	assert.Equal(t, int32(1), hook.sends.Load())
}
