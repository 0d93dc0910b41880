package preference

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/Priya8975/notification-dispatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	rows map[string]domain.NotificationPreference
	err  error
	gets int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]domain.NotificationPreference)}
}

func (f *fakeStore) key(userID string, t domain.NotificationType) string {
	return userID + "/" + string(t)
}

func (f *fakeStore) GetPreference(_ context.Context, userID string, t domain.NotificationType) (*domain.NotificationPreference, error) {
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.rows[f.key(userID, t)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeStore) ListPreferences(_ context.Context, userID string) ([]domain.NotificationPreference, error) {
	var out []domain.NotificationPreference
	for _, p := range f.rows {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, f.err
}

func (f *fakeStore) UpsertPreference(_ context.Context, p *domain.NotificationPreference) error {
	if f.err != nil {
		return f.err
	}
	f.rows[f.key(p.UserID, p.NotificationType)] = *p
	return nil
}

func (f *fakeStore) DeletePreferences(_ context.Context, userID string) error {
	for k, p := range f.rows {
		if p.UserID == userID {
			delete(f.rows, k)
		}
	}
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func strp(s string) *string { return &s }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestInQuietHours(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 3, 1, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		start, end string
		now        time.Time
		want       bool
	}{
		{"wrap late evening", "22:00", "06:00", at(23, 30), true},
		{"wrap midday", "22:00", "06:00", at(12, 0), false},
		{"wrap early morning", "22:00", "06:00", at(5, 59), true},
		{"wrap start inclusive", "22:00", "06:00", at(22, 0), true},
		{"wrap end inclusive", "22:00", "06:00", at(6, 0), true},
		{"wrap just after end", "22:00", "06:00", at(6, 1), false},
		{"plain inside", "09:00", "17:00", at(10, 0), true},
		{"plain outside", "09:00", "17:00", at(20, 0), false},
		{"plain bounds", "09:00", "17:00", at(17, 0), true},
		{"single minute", "12:00", "12:00", at(12, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InQuietHours(tt.start, tt.end, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInQuietHoursRejectsBadFormat(t *testing.T) {
	for _, v := range []string{"", "9:00", "09:5", "009:00", "25:00", "ten", "10:60", "10-30"} {
		_, err := InQuietHours(v, "06:00", time.Now())
		assert.ErrorIs(t, err, domain.ErrValidation, v)
	}
}

func TestShouldDeliverFallsBackToDefaults(t *testing.T) {
	r := NewResolver(newFakeStore(), DefaultTable(), testLogger())
	ctx := context.Background()

	assert.True(t, r.ShouldDeliver(ctx, "u1", domain.TypeReportGenerated, domain.PriorityMedium, domain.DeliveryEmail))
	assert.True(t, r.ShouldDeliver(ctx, "u1", domain.TypeReportGenerated, domain.PriorityMedium, domain.DeliveryRealtime))
	assert.False(t, r.ShouldDeliver(ctx, "u1", domain.TypeReportGenerated, domain.PriorityMedium, domain.DeliveryPush))
	assert.False(t, r.ShouldDeliver(ctx, "u1", domain.TypeReportGenerated, domain.PriorityLow, domain.DeliveryEmail))
}

func TestShouldDeliverUnknownTypeDeliversNothing(t *testing.T) {
	r := NewResolver(newFakeStore(), DefaultTable(), testLogger())
	for _, ch := range []domain.DeliveryChannel{domain.DeliveryEmail, domain.DeliveryRealtime, domain.DeliveryPush, domain.DeliverySMS} {
		assert.False(t, r.ShouldDeliver(context.Background(), "u1", "invoice_paid", domain.PriorityCritical, ch))
	}
}

func TestShouldDeliverFailsClosedOnStoreError(t *testing.T) {
	fs := newFakeStore()
	fs.err = errors.New("connection refused")
	r := NewResolver(fs, DefaultTable(), testLogger())

	assert.False(t, r.ShouldDeliver(context.Background(), "u1", domain.TypeSystemAlert, domain.PriorityCritical, domain.DeliveryRealtime))
	chans := r.Channels(context.Background(), "u1", domain.TypeSystemAlert, domain.PriorityCritical)
	for ch, ok := range chans {
		assert.False(t, ok, ch)
	}
}

func TestShouldDeliverUsesInjectedDefaults(t *testing.T) {
	defaults := Defaults{"custom": {Push: true, MinimumPriority: domain.PriorityLow}}
	r := NewResolver(newFakeStore(), defaults, testLogger())

	assert.True(t, r.ShouldDeliver(context.Background(), "u1", "custom", domain.PriorityLow, domain.DeliveryPush))
	assert.False(t, r.ShouldDeliver(context.Background(), "u1", domain.TypeReportGenerated, domain.PriorityHigh, domain.DeliveryEmail))
}

func TestQuietHoursUseUserTimezone(t *testing.T) {
	fs := newFakeStore()
	fs.rows["u1/"+string(domain.TypeReportApproved)] = domain.NotificationPreference{
		UserID:           "u1",
		NotificationType: domain.TypeReportApproved,
		EmailEnabled:     true,
		RealtimeEnabled:  true,
		PushEnabled:      true,
		MinimumPriority:  domain.PriorityLow,
		QuietHoursStart:  strp("22:00"),
		QuietHoursEnd:    strp("06:00"),
		Timezone:         "Asia/Tokyo",
	}

	// 14:30 UTC is 23:30 in Tokyo.
	r := NewResolver(fs, DefaultTable(), testLogger()).
		WithClock(fixedClock(time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)))
	ctx := context.Background()

	assert.False(t, r.ShouldDeliver(ctx, "u1", domain.TypeReportApproved, domain.PriorityHigh, domain.DeliveryEmail))
	assert.False(t, r.ShouldDeliver(ctx, "u1", domain.TypeReportApproved, domain.PriorityHigh, domain.DeliveryPush))
	assert.True(t, r.ShouldDeliver(ctx, "u1", domain.TypeReportApproved, domain.PriorityHigh, domain.DeliveryRealtime))

	// 03:00 UTC is noon in Tokyo.
	r.WithClock(fixedClock(time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)))
	assert.True(t, r.ShouldDeliver(ctx, "u1", domain.TypeReportApproved, domain.PriorityHigh, domain.DeliveryEmail))
}

func TestInvalidTimezoneFailsClosed(t *testing.T) {
	fs := newFakeStore()
	fs.rows["u1/"+string(domain.TypeReportApproved)] = domain.NotificationPreference{
		UserID:           "u1",
		NotificationType: domain.TypeReportApproved,
		EmailEnabled:     true,
		RealtimeEnabled:  true,
		MinimumPriority:  domain.PriorityLow,
		QuietHoursStart:  strp("22:00"),
		QuietHoursEnd:    strp("06:00"),
		Timezone:         "Mars/Olympus",
	}
	r := NewResolver(fs, DefaultTable(), testLogger())

	assert.False(t, r.ShouldDeliver(context.Background(), "u1", domain.TypeReportApproved, domain.PriorityHigh, domain.DeliveryEmail))
	assert.True(t, r.ShouldDeliver(context.Background(), "u1", domain.TypeReportApproved, domain.PriorityHigh, domain.DeliveryRealtime))
}

func TestShouldDeliverIsMonotonicInPriority(t *testing.T) {
	priorities := []domain.Priority{domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh, domain.PriorityCritical}
	channels := []domain.DeliveryChannel{domain.DeliveryEmail, domain.DeliveryRealtime, domain.DeliveryPush, domain.DeliverySMS}
	r := NewResolver(newFakeStore(), DefaultTable(), testLogger())
	ctx := context.Background()

	for nt := range DefaultTable() {
		for _, ch := range channels {
			for i, p1 := range priorities {
				if !r.ShouldDeliver(ctx, "u1", nt, p1, ch) {
					continue
				}
				for _, p2 := range priorities[i:] {
					assert.True(t, r.ShouldDeliver(ctx, "u1", nt, p2, ch), "%s/%s: %s allowed but %s denied", nt, ch, p1, p2)
				}
			}
		}
	}
}

func TestChannelsMatchesShouldDeliver(t *testing.T) {
	r := NewResolver(newFakeStore(), DefaultTable(), testLogger())
	ctx := context.Background()

	got := r.Channels(ctx, "u1", domain.TypeSystemAlert, domain.PriorityHigh)
	for ch, ok := range got {
		assert.Equal(t, r.ShouldDeliver(ctx, "u1", domain.TypeSystemAlert, domain.PriorityHigh, ch), ok, ch)
	}
	assert.False(t, got[domain.DeliverySMS])
	assert.True(t, got[domain.DeliveryPush])
}
