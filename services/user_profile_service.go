package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"spark_server/models"
	"spark_server/storage"
)

// InterestList accepts either a JSON array of tags or one comma separated
// string.
type InterestList []string

func (l *InterestList) UnmarshalJSON(data []byte) error {
	var tags []string
	if err := json.Unmarshal(data, &tags); err == nil {
		*l = cleanTags(tags)
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("interests must be a list or a comma separated string")
	}
	*l = models.SplitInterests(raw)
	return nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// ProfileInput is a create-or-patch of the caller's own profile. Nil fields
// are left unchanged.
type ProfileInput struct {
	DisplayName *string        `json:"display_name" validate:"omitnil,max=50"`
	Bio         *string        `json:"bio" validate:"omitnil,max=500"`
	Age         *int           `json:"age" validate:"omitnil,gt=0"`
	Gender      *models.Gender `json:"gender" validate:"omitnil,gender"`
	Location    *string        `json:"location" validate:"omitnil,max=100"`
	Interests   *InterestList  `json:"interests"`
	Avatar      *string        `json:"avatar" validate:"omitnil,max=512"`
}

func (in *ProfileInput) trim() {
	for _, field := range []*string{in.DisplayName, in.Bio, in.Location, in.Avatar} {
		if field != nil {
			*field = strings.TrimSpace(*field)
		}
	}
}

// ProfileService owns profiles and builds the public summaries every other
// service annotates its results with.
type ProfileService struct {
	store    storage.Store
	cache    ProfileCache
	avatars  AvatarSigner
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewProfileService wires a ProfileService. cache and avatars may be nil.
func NewProfileService(store storage.Store, cache ProfileCache, avatars AvatarSigner, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		store:    store,
		cache:    cache,
		avatars:  avatars,
		validate: newValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

// Me returns the caller's own full profile.
func (s *ProfileService) Me(ctx context.Context, userID string) (*models.Profile, error) {
	return s.store.GetProfile(ctx, userID)
}

// UpsertMe creates the caller's profile or patches the fields present in in.
// The write is guarded by the stored updated_at, so a concurrent save makes
// this one re-read and re-apply in rather than overwrite it.
func (s *ProfileService) UpsertMe(ctx context.Context, userID string, in ProfileInput) (*models.Profile, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", models.ErrValidation)
	}
	in.trim()
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	var (
		profile models.Profile
		created bool
	)
	err := retryOnConflict(ctx, s.logger, "save profile", func() error {
		existing, err := s.store.GetProfile(ctx, userID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		profile, err = s.applyInput(userID, existing, in)
		if err != nil {
			return err
		}
		created = existing == nil
		return s.store.SaveProfile(ctx, profile, existing)
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			s.logger.WarnContext(ctx, "profile cache invalidation failed", "user_id", userID, "error", err)
		}
	}
	s.logger.InfoContext(ctx, "profile saved", "user_id", userID, "created", created)
	return &profile, nil
}

// applyInput patches existing (nil for a new profile) with in. UpdatedAt
// always moves forward so it can serve as the write guard.
func (s *ProfileService) applyInput(userID string, existing *models.Profile, in ProfileInput) (models.Profile, error) {
	now := s.now().UTC()
	profile := models.Profile{UserID: userID, CreatedAt: now}
	if existing != nil {
		profile = *existing
		if !now.After(existing.UpdatedAt) {
			now = existing.UpdatedAt.Add(time.Microsecond)
		}
	}
	if in.DisplayName != nil {
		profile.DisplayName = *in.DisplayName
	}
	if in.Bio != nil {
		profile.Bio = *in.Bio
	}
	if in.Age != nil {
		age := *in.Age
		profile.Age = &age
	}
	if in.Gender != nil {
		profile.Gender = *in.Gender
	}
	if in.Location != nil {
		profile.Location = *in.Location
	}
	if in.Interests != nil {
		profile.Interests = []string(*in.Interests)
	}
	if in.Avatar != nil {
		profile.Avatar = *in.Avatar
	}
	if profile.DisplayName == "" {
		return models.Profile{}, fmt.Errorf("%w: display_name is required", models.ErrValidation)
	}
	profile.UpdatedAt = now
	return profile, nil
}

// Get returns another user's public summary. A block in either direction
// hides the profile entirely.
func (s *ProfileService) Get(ctx context.Context, viewer, userID string) (*models.ProfileSummary, error) {
	if viewer != userID {
		state, err := s.store.PairState(ctx, viewer, userID)
		if err != nil {
			return nil, err
		}
		if state.Blocked() {
			return nil, fmt.Errorf("%w: profile %s", models.ErrNotFound, userID)
		}
	}
	summaries, err := s.Summaries(ctx, []string{userID})
	if err != nil {
		return nil, err
	}
	summary, ok := summaries[userID]
	if !ok {
		return nil, fmt.Errorf("%w: profile %s", models.ErrNotFound, userID)
	}
	return &summary, nil
}

// Summaries returns public summaries for the given users, skipping users
// without a profile. Cached summaries are served first.
func (s *ProfileService) Summaries(ctx context.Context, userIDs []string) (map[string]models.ProfileSummary, error) {
	out := make(map[string]models.ProfileSummary, len(userIDs))
	var misses []string
	seen := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if s.cache != nil {
			cached, err := s.cache.Get(ctx, id)
			if err != nil {
				s.logger.WarnContext(ctx, "profile cache read failed", "user_id", id, "error", err)
			}
			if cached != nil {
				out[id] = *cached
				continue
			}
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		profiles, err := s.store.GetProfiles(ctx, misses)
		if err != nil {
			return nil, err
		}
		for id, profile := range profiles {
			summary := profile.Summary()
			out[id] = summary
			if s.cache != nil {
				if err := s.cache.Set(ctx, summary); err != nil {
					s.logger.WarnContext(ctx, "profile cache write failed", "user_id", id, "error", err)
				}
			}
		}
	}

	for id, summary := range out {
		out[id] = s.signAvatar(ctx, summary)
	}
	return out, nil
}

// Present converts already loaded profiles to signed public summaries.
func (s *ProfileService) Present(ctx context.Context, profiles []models.Profile) []models.ProfileSummary {
	out := make([]models.ProfileSummary, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, s.signAvatar(ctx, p.Summary()))
	}
	return out
}

func (s *ProfileService) signAvatar(ctx context.Context, summary models.ProfileSummary) models.ProfileSummary {
	key := summary.AvatarURL
	if key == "" || s.avatars == nil || strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return summary
	}
	url, err := s.avatars.ReadURL(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "avatar signing failed", "user_id", summary.UserID, "error", err)
		summary.AvatarURL = ""
		return summary
	}
	summary.AvatarURL = url
	return summary
}

// summaryRef returns a pointer to the summary for id, or nil if the user has
// no profile.
func summaryRef(summaries map[string]models.ProfileSummary, id string) *models.ProfileSummary {
	if s, ok := summaries[id]; ok {
		return &s
	}
	return nil
}

// newestFirst sorts by creation time descending, then by key ascending.
func newestFirst[T any](items []T, created func(T) time.Time, key func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return key(items[i]) < key(items[j])
	})
}
