package preference

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// Reader is the lookup the resolver needs. A missing row is (nil, nil).
type Reader interface {
	GetPreference(ctx context.Context, userID string, t domain.NotificationType) (*domain.NotificationPreference, error)
}

// Resolver decides, per user and notification type, which channels fire.
// It never returns errors: any failure resolves to "do not deliver".
type Resolver struct {
	store    Reader
	defaults Defaults
	logger   *slog.Logger
	now      func() time.Time
}

func NewResolver(store Reader, defaults Defaults, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:    store,
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the resolver's time source.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Effective returns the user's row for t, or the default row when the user
// has none. It returns (nil, nil) for an unknown type.
func (r *Resolver) Effective(ctx context.Context, userID string, t domain.NotificationType) (*domain.NotificationPreference, error) {
	pref, err := r.store.GetPreference(ctx, userID, t)
	if err != nil {
		return nil, fmt.Errorf("getting preference: %w", err)
	}
	if pref != nil {
		return pref, nil
	}
	def, ok := r.defaults[t]
	if !ok {
		return nil, nil
	}
	p := def.Preference(userID, t)
	return &p, nil
}

// ShouldDeliver reports whether a notification of type t and priority p may
// be delivered to userID over channel ch.
func (r *Resolver) ShouldDeliver(ctx context.Context, userID string, t domain.NotificationType, p domain.Priority, ch domain.DeliveryChannel) bool {
	pref, err := r.Effective(ctx, userID, t)
	if err != nil {
		r.logger.Error("preference lookup failed", "user_id", userID, "type", t, "error", err)
		return false
	}
	if pref == nil {
		return false
	}
	return r.decide(pref, p, ch)
}

// Channels evaluates every preference channel with a single lookup.
func (r *Resolver) Channels(ctx context.Context, userID string, t domain.NotificationType, p domain.Priority) map[domain.DeliveryChannel]bool {
	out := map[domain.DeliveryChannel]bool{
		domain.DeliveryEmail:    false,
		domain.DeliveryRealtime: false,
		domain.DeliveryPush:     false,
		domain.DeliverySMS:      false,
	}
	pref, err := r.Effective(ctx, userID, t)
	if err != nil {
		r.logger.Error("preference lookup failed", "user_id", userID, "type", t, "error", err)
		return out
	}
	if pref == nil {
		return out
	}
	for ch := range out {
		out[ch] = r.decide(pref, p, ch)
	}
	return out
}

func (r *Resolver) decide(pref *domain.NotificationPreference, p domain.Priority, ch domain.DeliveryChannel) bool {
	if !pref.Enabled(ch) {
		return false
	}
	if p < pref.MinimumPriority {
		return false
	}
	if ch != domain.DeliveryEmail && ch != domain.DeliveryPush {
		return true
	}
	if pref.QuietHoursStart == nil || pref.QuietHoursEnd == nil {
		return true
	}

	loc, err := loadLocation(pref.Timezone)
	if err != nil {
		r.logger.Error("invalid preference timezone", "user_id", pref.UserID, "timezone", pref.Timezone, "error", err)
		return false
	}
	quiet, err := InQuietHours(*pref.QuietHoursStart, *pref.QuietHoursEnd, r.now().In(loc))
	if err != nil {
		r.logger.Error("invalid quiet hours", "user_id", pref.UserID, "error", err)
		return false
	}
	return !quiet
}

// InQuietHours reports whether now's wall-clock time lies inside the
// inclusive window start..end, both "HH:MM". A window with start after end
// spans midnight.
func InQuietHours(start, end string, now time.Time) (bool, error) {
	s, err := parseClock(start)
	if err != nil {
		return false, err
	}
	e, err := parseClock(end)
	if err != nil {
		return false, err
	}
	cur := now.Hour()*60 + now.Minute()
	if s <= e {
		return s <= cur && cur <= e, nil
	}
	return cur >= s || cur <= e, nil
}

// parseClock returns minutes since midnight for "HH:MM". Both fields must be
// two digits; time.Parse alone accepts "9:00".
func parseClock(v string) (int, error) {
	if len(v) != 5 || v[2] != ':' {
		return 0, fmt.Errorf("%w: invalid time %q, want HH:MM", domain.ErrValidation, v)
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid time %q, want HH:MM", domain.ErrValidation, v)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", domain.ErrValidation, name)
	}
	return loc, nil
}
