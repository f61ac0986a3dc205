package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spark_server/models"
	"spark_server/storage"
)

// MatchService reads and dissolves matches. Matches are only ever created by
// LikeService inside a reciprocal like commit.
type MatchService struct {
	store    storage.Store
	profiles *ProfileService
	logger   *slog.Logger
}

func NewMatchService(store storage.Store, profiles *ProfileService, logger *slog.Logger) *MatchService {
	return &MatchService{store: store, profiles: profiles, logger: logger}
}

// Get returns a match the acting user participates in.
func (s *MatchService) Get(ctx context.Context, matchID, actingUser string) (*models.Match, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !match.HasParticipant(actingUser) {
		return nil, fmt.Errorf("%w: not a participant of match %s", models.ErrForbidden, matchID)
	}
	return match, nil
}

// Unmatch deletes the match together with its messages. Calling it again
// returns ErrNotFound. A message sent while the delete is in flight makes it
// retry once.
func (s *MatchService) Unmatch(ctx context.Context, matchID, actingUser string) error {
	match, err := s.Get(ctx, matchID, actingUser)
	if err != nil {
		return err
	}
	err = retryOnConflict(ctx, s.logger, "unmatch", func() error {
		return s.store.DeleteMatch(ctx, *match)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "match dissolved", "match_id", matchID, "by", actingUser)
	return nil
}

// ListForUser returns the user's matches, newest first, with both
// participants' summaries.
func (s *MatchService) ListForUser(ctx context.Context, user string, req models.PageRequest) (models.Page[models.MatchWithProfiles], error) {
	matches, err := s.store.ListMatchesFor(ctx, user)
	if err != nil {
		return models.Page[models.MatchWithProfiles]{}, err
	}
	newestFirst(matches,
		func(m models.Match) time.Time { return m.CreatedAt },
		func(m models.Match) string { return m.ID })
	page := models.Paginate(matches, req)

	ids := make([]string, 0, len(page.Results)*2)
	for _, m := range page.Results {
		ids = append(ids, m.UserA, m.UserB)
	}
	summaries, err := s.profiles.Summaries(ctx, ids)
	if err != nil {
		return models.Page[models.MatchWithProfiles]{}, err
	}

	results := make([]models.MatchWithProfiles, 0, len(page.Results))
	for _, m := range page.Results {
		results = append(results, models.MatchWithProfiles{
			Match:        m,
			UserAProfile: summaryRef(summaries, m.UserA),
			UserBProfile: summaryRef(summaries, m.UserB),
		})
	}
	return models.Remap(page, results), nil
}
