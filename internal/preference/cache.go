package preference

import (
	"context"
	"strings"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/domain"
	ca "github.com/patrickmn/go-cache"
)

// CachedStore fronts a Store with a short-lived local read cache. Absent
// rows are cached too, so a user with no overrides costs one lookup per TTL.
type CachedStore struct {
	Store
	c *ca.Cache
}

type cachedRow struct {
	pref *domain.NotificationPreference
}

func NewCachedStore(store Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store: store,
		c:     ca.New(ttl, 2*ttl),
	}
}

func cacheKey(userID string, t domain.NotificationType) string {
	return "pref:" + userID + ":" + string(t)
}

func (s *CachedStore) GetPreference(ctx context.Context, userID string, t domain.NotificationType) (*domain.NotificationPreference, error) {
	key := cacheKey(userID, t)
	if v, ok := s.c.Get(key); ok {
		row := v.(cachedRow)
		if row.pref == nil {
			return nil, nil
		}
		cp := *row.pref
		return &cp, nil
	}

	pref, err := s.Store.GetPreference(ctx, userID, t)
	if err != nil {
		return nil, err
	}
	var stored *domain.NotificationPreference
	if pref != nil {
		cp := *pref
		stored = &cp
	}
	s.c.SetDefault(key, cachedRow{pref: stored})
	return pref, nil
}

// UpsertPreference drops the cached row before and after the write, so a
// read racing the write cannot leave the old row cached.
func (s *CachedStore) UpsertPreference(ctx context.Context, pref *domain.NotificationPreference) error {
	key := cacheKey(pref.UserID, pref.NotificationType)
	s.c.Delete(key)
	defer s.c.Delete(key)
	return s.Store.UpsertPreference(ctx, pref)
}

func (s *CachedStore) DeletePreferences(ctx context.Context, userID string) error {
	s.invalidateUser(userID)
	defer s.invalidateUser(userID)
	return s.Store.DeletePreferences(ctx, userID)
}

func (s *CachedStore) invalidateUser(userID string) {
	prefix := "pref:" + userID + ":"
	for key := range s.c.Items() {
		if strings.HasPrefix(key, prefix) {
			s.c.Delete(key)
		}
	}
}
