package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupPostgres connects to TEST_DATABASE_URL and applies migrations. The
// test is skipped when the variable is unset.
func setupPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := NewPostgres(ctx, url)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.RunMigrations(ctx, "../../migrations"))
	return s
}

func TestPostgres_EndpointRoundTripAndFilter(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	user := "pg-user-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)

	ep := &domain.Endpoint{
		ID:                uuid.NewString(),
		UserID:            &user,
		Channel:           domain.ChannelWebPush,
		DeviceType:        "desktop",
		URL:               "https://push.example.com/" + uuid.NewString(),
		P256dh:            "k",
		Auth:              "a",
		IsActive:          true,
		PermissionGranted: true,
		Categories:        map[string]bool{"comments": false},
		MinPriority:       domain.PriorityMedium,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, s.UpsertEndpoint(ctx, ep))
	t.Cleanup(func() { s.DeleteEndpoint(ctx, ep.ID) })

	got, err := s.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.PriorityMedium, got.MinPriority)
	assert.False(t, got.Categories["comments"])

	match, err := s.GetEndpointsMatching(ctx, domain.EndpointFilter{UserIDs: []string{user}, Category: "approvals"})
	require.NoError(t, err)
	assert.Len(t, match, 1)

	match, err = s.GetEndpointsMatching(ctx, domain.EndpointFilter{UserIDs: []string{user}, Category: "comments"})
	require.NoError(t, err)
	assert.Empty(t, match)
}

func TestPostgres_DailyStatIncrements(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	group := "pg-" + uuid.NewString()
	day := time.Now().UTC()
	a, b := int64(100), int64(300)

	require.NoError(t, s.UpsertDailyStat(ctx, domain.DailyStatDelta{Channel: domain.ChannelSlack, Group: group, Day: day, Sent: 1, LatencyMs: &a}))
	require.NoError(t, s.UpsertDailyStat(ctx, domain.DailyStatDelta{Channel: domain.ChannelSlack, Group: group, Day: day, Failed: 1, LatencyMs: &b}))

	stats, err := s.ListDailyStats(ctx, day, day)
	require.NoError(t, err)
	for _, st := range stats {
		if st.Group != group {
			continue
		}
		assert.Equal(t, 1, st.Sent)
		assert.Equal(t, 1, st.Failed)
		assert.Equal(t, 200.0, st.AvgLatencyMs)
		assert.Equal(t, int64(100), st.MinLatencyMs)
		assert.Equal(t, int64(300), st.MaxLatencyMs)
		return
	}
	t.Fatal("stat row not found")
}
