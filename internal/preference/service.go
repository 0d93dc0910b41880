package preference

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/domain"
	"github.com/google/uuid"
)

// Store persists preference rows. At most one row exists per (user, type).
type Store interface {
	Reader
	ListPreferences(ctx context.Context, userID string) ([]domain.NotificationPreference, error)
	UpsertPreference(ctx context.Context, pref *domain.NotificationPreference) error
	DeletePreferences(ctx context.Context, userID string) error
}

// Service manages a user's preference rows.
type Service struct {
	store    Store
	resolver *Resolver
	defaults Defaults
	logger   *slog.Logger
}

func NewService(store Store, defaults Defaults, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		resolver: NewResolver(store, defaults, logger),
		defaults: defaults,
		logger:   logger,
	}
}

// Get returns the user's row for t or, when absent, the effective default.
func (s *Service) Get(ctx context.Context, userID string, t domain.NotificationType) (*domain.NotificationPreference, error) {
	if _, ok := s.defaults[t]; !ok {
		return nil, fmt.Errorf("%w: unknown notification type %q", domain.ErrValidation, t)
	}
	return s.resolver.Effective(ctx, userID, t)
}

// List returns the effective preference for every known type, sorted by type.
func (s *Service) List(ctx context.Context, userID string) ([]domain.NotificationPreference, error) {
	rows, err := s.store.ListPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing preferences: %w", err)
	}
	byType := make(map[domain.NotificationType]domain.NotificationPreference, len(rows))
	for _, r := range rows {
		byType[r.NotificationType] = r
	}
	for t, def := range s.defaults {
		if _, ok := byType[t]; !ok {
			byType[t] = def.Preference(userID, t)
		}
	}

	out := make([]domain.NotificationPreference, 0, len(byType))
	for _, p := range byType {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NotificationType < out[j].NotificationType })
	return out, nil
}

// Create stores an explicit row. It fails with ErrPreferenceExists when the
// user already has one for the type.
func (s *Service) Create(ctx context.Context, pref domain.NotificationPreference) (*domain.NotificationPreference, error) {
	existing, err := s.store.GetPreference(ctx, pref.UserID, pref.NotificationType)
	if err != nil {
		return nil, fmt.Errorf("checking existing preference: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrPreferenceExists, pref.UserID, pref.NotificationType)
	}
	if pref.ScheduleMode == "" {
		pref.ScheduleMode = domain.ScheduleImmediate
	}
	if pref.MinimumPriority == 0 {
		pref.MinimumPriority = domain.PriorityLow
	}
	if err := s.save(ctx, &pref); err != nil {
		return nil, err
	}
	return &pref, nil
}

// Update applies a partial update to an existing row.
func (s *Service) Update(ctx context.Context, userID string, t domain.NotificationType, upd domain.PreferenceUpdate) (*domain.NotificationPreference, error) {
	pref, err := s.store.GetPreference(ctx, userID, t)
	if err != nil {
		return nil, fmt.Errorf("getting preference: %w", err)
	}
	if pref == nil {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrPreferenceNotFound, userID, t)
	}
	upd.Apply(pref)
	if err := s.save(ctx, pref); err != nil {
		return nil, err
	}
	return pref, nil
}

// BulkUpdate applies one partial update to every known type for the user,
// materialising default rows where none exist yet.
func (s *Service) BulkUpdate(ctx context.Context, userID string, upd domain.PreferenceUpdate) ([]domain.NotificationPreference, error) {
	current, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range current {
		upd.Apply(&current[i])
		if err := validate(&current[i], s.defaults); err != nil {
			return nil, err
		}
	}
	for i := range current {
		if err := s.save(ctx, &current[i]); err != nil {
			return nil, err
		}
	}
	return current, nil
}

// ResetToDefaults replaces all of the user's rows with the system defaults.
func (s *Service) ResetToDefaults(ctx context.Context, userID string) ([]domain.NotificationPreference, error) {
	if err := s.store.DeletePreferences(ctx, userID); err != nil {
		return nil, fmt.Errorf("deleting preferences: %w", err)
	}
	out := make([]domain.NotificationPreference, 0, len(s.defaults))
	for t, def := range s.defaults {
		p := def.Preference(userID, t)
		if err := s.save(ctx, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NotificationType < out[j].NotificationType })
	s.logger.Info("preferences reset to defaults", "user_id", userID, "count", len(out))
	return out, nil
}

// InitializeDefaults creates default rows for types the user has no row for.
// It returns the number of rows created.
func (s *Service) InitializeDefaults(ctx context.Context, userID string) (int, error) {
	rows, err := s.store.ListPreferences(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("listing preferences: %w", err)
	}
	have := make(map[domain.NotificationType]bool, len(rows))
	for _, r := range rows {
		have[r.NotificationType] = true
	}

	created := 0
	for t, def := range s.defaults {
		if have[t] {
			continue
		}
		p := def.Preference(userID, t)
		if err := s.save(ctx, &p); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func (s *Service) save(ctx context.Context, pref *domain.NotificationPreference) error {
	if err := validate(pref, s.defaults); err != nil {
		return err
	}
	now := time.Now().UTC()
	if pref.ID == "" {
		pref.ID = uuid.NewString()
		pref.CreatedAt = now
	}
	pref.UpdatedAt = now
	pref.IsDefault = false
	if err := s.store.UpsertPreference(ctx, pref); err != nil {
		return fmt.Errorf("saving preference: %w", err)
	}
	return nil
}

func validate(p *domain.NotificationPreference, defaults Defaults) error {
	if p.UserID == "" {
		return fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	if _, ok := defaults[p.NotificationType]; !ok {
		return fmt.Errorf("%w: unknown notification type %q", domain.ErrValidation, p.NotificationType)
	}
	if !p.MinimumPriority.Valid() {
		return fmt.Errorf("%w: invalid minimum priority", domain.ErrValidation)
	}
	if !p.ScheduleMode.Valid() {
		return fmt.Errorf("%w: invalid schedule mode %q", domain.ErrValidation, p.ScheduleMode)
	}
	if (p.QuietHoursStart == nil) != (p.QuietHoursEnd == nil) {
		return fmt.Errorf("%w: quiet hours need both start and end", domain.ErrValidation)
	}
	if p.QuietHoursStart != nil {
		if _, err := parseClock(*p.QuietHoursStart); err != nil {
			return err
		}
		if _, err := parseClock(*p.QuietHoursEnd); err != nil {
			return err
		}
	}
	if _, err := loadLocation(p.Timezone); err != nil {
		return err
	}
	return nil
}
