package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// MemoryURL selects the in-memory store in place of Postgres.
const MemoryURL = "memory://"

// MemoryStore keeps everything in process memory behind one mutex. It has
// the same semantics as PostgresStore and backs local runs and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	endpoints   map[string]domain.Endpoint
	preferences map[string]domain.NotificationPreference
	attempts    []domain.DeliveryAttempt
	failures    map[string]domain.FailureRecord
	stats       map[string]domain.DailyStat
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		endpoints:   make(map[string]domain.Endpoint),
		preferences: make(map[string]domain.NotificationPreference),
		failures:    make(map[string]domain.FailureRecord),
		stats:       make(map[string]domain.DailyStat),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func cloneEndpoint(ep domain.Endpoint) domain.Endpoint {
	if ep.Categories != nil {
		cats := make(map[string]bool, len(ep.Categories))
		for k, v := range ep.Categories {
			cats[k] = v
		}
		ep.Categories = cats
	}
	if ep.UserID != nil {
		u := *ep.UserID
		ep.UserID = &u
	}
	if ep.LastError != nil {
		e := *ep.LastError
		ep.LastError = &e
	}
	if ep.LastUsedAt != nil {
		t := *ep.LastUsedAt
		ep.LastUsedAt = &t
	}
	return ep
}

func (s *MemoryStore) GetEndpointsMatching(_ context.Context, f domain.EndpointFilter) ([]domain.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	out := []domain.Endpoint{}
	for _, ep := range s.endpoints {
		if f.Matches(ep, now) {
			out = append(out, cloneEndpoint(ep))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetEndpoint(_ context.Context, id string) (*domain.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.endpoints[id]
	if !ok {
		return nil, nil
	}
	cp := cloneEndpoint(ep)
	return &cp, nil
}

func (s *MemoryStore) FindEndpointByURL(_ context.Context, url string) (*domain.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ep := range s.endpoints {
		if ep.URL == url {
			cp := cloneEndpoint(ep)
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) UpsertEndpoint(_ context.Context, ep *domain.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := cloneEndpoint(*ep)
	for id, existing := range s.endpoints {
		if existing.URL == ep.URL && id != ep.ID {
			row.ID = id
			row.CreatedAt = existing.CreatedAt
			break
		}
	}
	s.endpoints[row.ID] = row
	return nil
}

func (s *MemoryStore) DeleteEndpoint(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[id]; !ok {
		return false, nil
	}
	delete(s.endpoints, id)
	return true, nil
}

func (s *MemoryStore) CountActiveEndpoints(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, ep := range s.endpoints {
		if ep.Eligible() {
			n++
		}
	}
	return n, nil
}

func prefKey(userID string, t domain.NotificationType) string {
	return userID + "\x00" + string(t)
}

func (s *MemoryStore) GetPreference(_ context.Context, userID string, t domain.NotificationType) (*domain.NotificationPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.preferences[prefKey(userID, t)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) ListPreferences(_ context.Context, userID string) ([]domain.NotificationPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.NotificationPreference{}
	for _, p := range s.preferences {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NotificationType < out[j].NotificationType })
	return out, nil
}

func (s *MemoryStore) UpsertPreference(_ context.Context, p *domain.NotificationPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := prefKey(p.UserID, p.NotificationType)
	row := *p
	if existing, ok := s.preferences[key]; ok {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
	}
	s.preferences[key] = row
	return nil
}

func (s *MemoryStore) DeletePreferences(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, p := range s.preferences {
		if p.UserID == userID {
			delete(s.preferences, k)
		}
	}
	return nil
}

func (s *MemoryStore) RecordDeliveryAttempt(_ context.Context, a *domain.DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts = append(s.attempts, *a)
	return nil
}

// Attempts returns a copy of every recorded delivery attempt.
func (s *MemoryStore) Attempts() []domain.DeliveryAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.DeliveryAttempt(nil), s.attempts...)
}

func (s *MemoryStore) AppendFailureRecord(_ context.Context, f *domain.FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[f.ID] = *f
	return nil
}

func (s *MemoryStore) ListFailures(_ context.Context, f domain.FailureFilter) ([]domain.FailureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids map[string]bool
	if len(f.IDs) > 0 {
		ids = make(map[string]bool, len(f.IDs))
		for _, id := range f.IDs {
			ids[id] = true
		}
	}

	out := []domain.FailureRecord{}
	for _, r := range s.failures {
		if ids != nil && !ids[r.ID] {
			continue
		}
		if f.UnresolvedOnly && r.Resolved {
			continue
		}
		if f.Since != nil && r.CreatedAt.Before(*f.Since) {
			continue
		}
		if f.DueBefore != nil && r.NextRetryAt != nil && r.NextRetryAt.After(*f.DueBefore) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateFailure(_ context.Context, f *domain.FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.failures[f.ID]
	if !ok {
		return nil
	}
	existing.Error = f.Error
	existing.StatusCode = f.StatusCode
	existing.RetryCount = f.RetryCount
	existing.NextRetryAt = f.NextRetryAt
	existing.Resolved = f.Resolved
	existing.ResolvedAt = f.ResolvedAt
	s.failures[f.ID] = existing
	return nil
}

func (s *MemoryStore) PurgeResolved(_ context.Context, before time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, r := range s.failures {
		if limit > 0 && n >= limit {
			break
		}
		if r.Resolved && r.ResolvedAt != nil && r.ResolvedAt.Before(before) {
			delete(s.failures, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountUnresolvedFailures(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.failures {
		if !r.Resolved {
			n++
		}
	}
	return n, nil
}

func statKey(ch domain.ChannelType, group string, day time.Time) string {
	return string(ch) + "\x00" + group + "\x00" + day.Format("2006-01-02")
}

func (s *MemoryStore) UpsertDailyStat(_ context.Context, d domain.DailyStatDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := domain.Day(d.Day)
	key := statKey(d.Channel, d.Group, day)
	st, ok := s.stats[key]
	if !ok {
		st = domain.DailyStat{Channel: d.Channel, Group: d.Group, Day: day}
	}
	d.Apply(&st)
	s.stats[key] = st
	return nil
}

func (s *MemoryStore) ListDailyStats(_ context.Context, from, to time.Time) ([]domain.DailyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := domain.Day(from), domain.Day(to)
	out := []domain.DailyStat{}
	for _, st := range s.stats {
		if st.Day.Before(lo) || st.Day.After(hi) {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].Group < out[j].Group
	})
	return out, nil
}
