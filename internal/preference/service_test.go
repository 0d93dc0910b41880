package preference

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceGetReturnsDefaultWhenAbsent(t *testing.T) {
	svc := NewService(newFakeStore(), DefaultTable(), testLogger())

	p, err := svc.Get(context.Background(), "u1", domain.TypeReportGenerated)
	require.NoError(t, err)
	assert.True(t, p.IsDefault)
	assert.True(t, p.EmailEnabled)
	assert.False(t, p.PushEnabled)
	assert.Equal(t, domain.PriorityMedium, p.MinimumPriority)

	_, err = svc.Get(context.Background(), "u1", "bogus")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestServiceCreateRejectsDuplicate(t *testing.T) {
	svc := NewService(newFakeStore(), DefaultTable(), testLogger())
	ctx := context.Background()
	pref := domain.NotificationPreference{
		UserID:           "u1",
		NotificationType: domain.TypeCommentAdded,
		RealtimeEnabled:  true,
	}

	created, err := svc.Create(ctx, pref)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.ScheduleImmediate, created.ScheduleMode)

	_, err = svc.Create(ctx, pref)
	assert.ErrorIs(t, err, domain.ErrPreferenceExists)
}

func TestServiceCreateValidates(t *testing.T) {
	svc := NewService(newFakeStore(), DefaultTable(), testLogger())
	ctx := context.Background()

	cases := map[string]domain.NotificationPreference{
		"bad clock":    {UserID: "u1", NotificationType: domain.TypeCommentAdded, QuietHoursStart: strp("7pm"), QuietHoursEnd: strp("06:00")},
		"one digit":    {UserID: "u1", NotificationType: domain.TypeCommentAdded, QuietHoursStart: strp("9:00"), QuietHoursEnd: strp("06:00")},
		"half window":  {UserID: "u1", NotificationType: domain.TypeCommentAdded, QuietHoursStart: strp("22:00")},
		"bad timezone": {UserID: "u1", NotificationType: domain.TypeCommentAdded, Timezone: "Nowhere/City"},
		"bad schedule": {UserID: "u1", NotificationType: domain.TypeCommentAdded, ScheduleMode: "hourly"},
		"unknown type": {UserID: "u1", NotificationType: "bogus"},
	}
	for name, p := range cases {
		_, err := svc.Create(ctx, p)
		assert.ErrorIs(t, err, domain.ErrValidation, name)
	}
}

func TestServiceUpdateIsPartial(t *testing.T) {
	fs := newFakeStore()
	svc := NewService(fs, DefaultTable(), testLogger())
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.NotificationPreference{
		UserID:           "u1",
		NotificationType: domain.TypeReportApproved,
		EmailEnabled:     true,
		PushEnabled:      true,
		MinimumPriority:  domain.PriorityMedium,
		Timezone:         "UTC",
	})
	require.NoError(t, err)

	off := false
	high := domain.PriorityHigh
	updated, err := svc.Update(ctx, "u1", domain.TypeReportApproved, domain.PreferenceUpdate{
		PushEnabled:     &off,
		MinimumPriority: &high,
	})
	require.NoError(t, err)
	assert.True(t, updated.EmailEnabled)
	assert.False(t, updated.PushEnabled)
	assert.Equal(t, domain.PriorityHigh, updated.MinimumPriority)
	assert.Equal(t, "UTC", updated.Timezone)

	_, err = svc.Update(ctx, "u1", domain.TypeCommentAdded, domain.PreferenceUpdate{PushEnabled: &off})
	assert.ErrorIs(t, err, domain.ErrPreferenceNotFound)
}

func TestServiceBulkUpdateTouchesEveryType(t *testing.T) {
	fs := newFakeStore()
	svc := NewService(fs, DefaultTable(), testLogger())

	tz := "Europe/Berlin"
	rows, err := svc.BulkUpdate(context.Background(), "u1", domain.PreferenceUpdate{
		QuietHoursStart: strp("21:00"),
		QuietHoursEnd:   strp("07:00"),
		Timezone:        &tz,
	})
	require.NoError(t, err)
	assert.Len(t, rows, len(DefaultTable()))
	assert.Len(t, fs.rows, len(DefaultTable()))
	for _, r := range fs.rows {
		assert.Equal(t, "21:00", *r.QuietHoursStart)
		assert.Equal(t, tz, r.Timezone)
	}
}

func TestServiceResetAndInitialize(t *testing.T) {
	fs := newFakeStore()
	svc := NewService(fs, DefaultTable(), testLogger())
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.NotificationPreference{
		UserID:           "u1",
		NotificationType: domain.TypeCommentAdded,
		EmailEnabled:     true,
	})
	require.NoError(t, err)

	created, err := svc.InitializeDefaults(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, len(DefaultTable())-1, created)
	assert.True(t, fs.rows["u1/comment_added"].EmailEnabled, "existing row must be kept")

	created, err = svc.InitializeDefaults(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, created)

	rows, err := svc.ResetToDefaults(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, rows, len(DefaultTable()))
	assert.False(t, fs.rows["u1/comment_added"].EmailEnabled)
}

func TestCachedStoreServesRepeatReadsAndInvalidates(t *testing.T) {
	fs := newFakeStore()
	cs := NewCachedStore(fs, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := cs.GetPreference(ctx, "u1", domain.TypeCommentAdded)
		require.NoError(t, err)
		assert.Nil(t, p)
	}
	assert.Equal(t, 1, fs.gets)

	require.NoError(t, cs.UpsertPreference(ctx, &domain.NotificationPreference{
		UserID: "u1", NotificationType: domain.TypeCommentAdded, EmailEnabled: true,
	}))
	p, err := cs.GetPreference(ctx, "u1", domain.TypeCommentAdded)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.EmailEnabled)

	require.NoError(t, cs.DeletePreferences(ctx, "u1"))
	p, err = cs.GetPreference(ctx, "u1", domain.TypeCommentAdded)
	require.NoError(t, err)
	assert.Nil(t, p)
}

// midWriteStore calls during before the row is written, standing in for a
// concurrent reader.
type midWriteStore struct {
	*fakeStore
	during func()
}

func (m *midWriteStore) UpsertPreference(ctx context.Context, p *domain.NotificationPreference) error {
	if m.during != nil {
		m.during()
	}
	return m.fakeStore.UpsertPreference(ctx, p)
}

func TestCachedStoreDropsRowReadDuringWrite(t *testing.T) {
	ms := &midWriteStore{fakeStore: newFakeStore()}
	cs := NewCachedStore(ms, time.Minute)
	ctx := context.Background()

	ms.during = func() {
		p, err := cs.GetPreference(ctx, "u1", domain.TypeCommentAdded)
		require.NoError(t, err)
		assert.Nil(t, p, "the write has not landed yet")
	}
	require.NoError(t, cs.UpsertPreference(ctx, &domain.NotificationPreference{
		UserID: "u1", NotificationType: domain.TypeCommentAdded, PushEnabled: true,
	}))

	p, err := cs.GetPreference(ctx, "u1", domain.TypeCommentAdded)
	require.NoError(t, err)
	require.NotNil(t, p, "stale absent row must not survive the write")
	assert.True(t, p.PushEnabled)
}

func TestLoadDefaultsMergesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
report_generated:
  push: true
  minimum_priority: high
budget_exceeded:
  email: true
`), 0o600))

	d, err := LoadDefaults(path)
	require.NoError(t, err)
	assert.True(t, d[domain.TypeReportGenerated].Push)
	assert.True(t, d[domain.TypeReportGenerated].Email)
	assert.Equal(t, domain.PriorityHigh, d[domain.TypeReportGenerated].MinimumPriority)
	assert.True(t, d["budget_exceeded"].Email)
	assert.Equal(t, domain.PriorityLow, d["budget_exceeded"].MinimumPriority)
	assert.Equal(t, DefaultTable()[domain.TypeSystemAlert], d[domain.TypeSystemAlert])
}

func TestLoadDefaultsRejectsBadPriority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte("report_generated:\n  minimum_priority: urgent\n"), 0o600))

	_, err := LoadDefaults(path)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
