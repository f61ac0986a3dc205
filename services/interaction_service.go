package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"spark_server/models"
	"spark_server/storage"
)

// LikeService records likes and turns reciprocal ones into matches.
type LikeService struct {
	store    storage.Store
	profiles *ProfileService
	logger   *slog.Logger
	now      func() time.Time
}

func NewLikeService(store storage.Store, profiles *ProfileService, logger *slog.Logger) *LikeService {
	return &LikeService{store: store, profiles: profiles, logger: logger, now: time.Now}
}

// SendLike records from's like of to. If to already has a pending like for
// from, both likes are accepted and a match is created in the same commit.
func (s *LikeService) SendLike(ctx context.Context, from, to string) (*models.LikeResult, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: to_user is required", models.ErrValidation)
	}
	if from == to {
		return nil, fmt.Errorf("%w: cannot like yourself", models.ErrSelfInteraction)
	}
	if _, err := s.store.GetProfile(ctx, to); err != nil {
		return nil, err
	}

	var result *models.LikeResult
	err := retryOnConflict(ctx, s.logger, "send like", func() error {
		var err error
		result, err = s.sendLikeOnce(ctx, from, to)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Matched {
		s.logger.InfoContext(ctx, "mutual like, match created", "from", from, "to", to, "match_id", result.MatchID)
	} else {
		s.logger.InfoContext(ctx, "like recorded", "from", from, "to", to, "like_id", result.Like.ID)
	}
	return result, nil
}

func (s *LikeService) sendLikeOnce(ctx context.Context, from, to string) (*models.LikeResult, error) {
	state, err := s.store.PairState(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if state.Blocked() {
		return nil, fmt.Errorf("%w: %s and %s", models.ErrBlocked, from, to)
	}
	if state.Match != nil {
		return nil, fmt.Errorf("%w: already matched", models.ErrDuplicateLike)
	}
	if state.Outgoing != nil && state.Outgoing.IsPending() {
		return nil, fmt.Errorf("%w: already liked", models.ErrDuplicateLike)
	}

	now := s.now().UTC()
	like := models.Like{
		ID:        uuid.NewString(),
		FromUser:  from,
		ToUser:    to,
		Status:    models.LikeStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	commit := storage.LikeCommit{Snapshot: *state, Like: like}

	if state.Incoming != nil && state.Incoming.IsPending() {
		accepted := *state.Incoming
		accepted.Status = models.LikeStatusAccepted
		accepted.UpdatedAt = now
		commit.Like.Status = models.LikeStatusAccepted
		commit.Accept = &accepted

		userA, userB := models.CanonicalPair(from, to)
		commit.Match = &models.Match{
			ID:        uuid.NewString(),
			UserA:     userA,
			UserB:     userB,
			CreatedAt: now,
		}
	}

	if err := s.store.CommitLike(ctx, commit); err != nil {
		return nil, err
	}

	result := &models.LikeResult{Like: &commit.Like}
	if commit.Match != nil {
		result.Matched = true
		result.MatchID = commit.Match.ID
	}
	return result, nil
}

// AcceptLike consumes a received pending like by liking its sender back.
func (s *LikeService) AcceptLike(ctx context.Context, likeID, actingUser string) (*models.LikeResult, error) {
	like, err := s.receivedPendingLike(ctx, likeID, actingUser)
	if err != nil {
		return nil, err
	}
	return s.SendLike(ctx, actingUser, like.FromUser)
}

// RejectLike marks a received pending like rejected. Nothing else changes.
func (s *LikeService) RejectLike(ctx context.Context, likeID, actingUser string) error {
	err := retryOnConflict(ctx, s.logger, "reject like", func() error {
		like, err := s.receivedPendingLike(ctx, likeID, actingUser)
		if err != nil {
			return err
		}
		like.UpdatedAt = s.now().UTC()
		return s.store.UpdateLikeStatus(ctx, *like, models.LikeStatusRejected)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "like rejected", "like_id", likeID, "by", actingUser)
	return nil
}

// receivedPendingLike loads a like addressed to actingUser that is still
// pending. Likes addressed to someone else are reported as not found.
func (s *LikeService) receivedPendingLike(ctx context.Context, likeID, actingUser string) (*models.Like, error) {
	like, err := s.store.GetLike(ctx, likeID)
	if err != nil {
		return nil, err
	}
	if like.ToUser != actingUser {
		return nil, fmt.Errorf("%w: like %s", models.ErrNotFound, likeID)
	}
	if !like.IsPending() {
		return nil, fmt.Errorf("%w: like %s is %s", models.ErrInvalidState, likeID, like.Status)
	}
	return like, nil
}

// ListReceived returns pending likes addressed to user, newest first.
func (s *LikeService) ListReceived(ctx context.Context, user string, page models.PageRequest) (models.Page[models.LikeWithProfiles], error) {
	likes, err := s.store.ListLikesTo(ctx, user)
	if err != nil {
		return models.Page[models.LikeWithProfiles]{}, err
	}
	pending := likes[:0]
	for _, l := range likes {
		if l.IsPending() {
			pending = append(pending, l)
		}
	}
	return s.annotate(ctx, pending, nil, page)
}

// ListSent returns every like user has sent, flagged IsMutual when a match
// with the recipient currently exists.
func (s *LikeService) ListSent(ctx context.Context, user string, page models.PageRequest) (models.Page[models.LikeWithProfiles], error) {
	likes, err := s.store.ListLikesFrom(ctx, user)
	if err != nil {
		return models.Page[models.LikeWithProfiles]{}, err
	}
	matches, err := s.store.ListMatchesFor(ctx, user)
	if err != nil {
		return models.Page[models.LikeWithProfiles]{}, err
	}
	matched := make(map[string]bool, len(matches))
	for _, m := range matches {
		matched[m.Counterpart(user)] = true
	}
	return s.annotate(ctx, likes, matched, page)
}

func (s *LikeService) annotate(ctx context.Context, likes []models.Like, matched map[string]bool, req models.PageRequest) (models.Page[models.LikeWithProfiles], error) {
	newestFirst(likes,
		func(l models.Like) time.Time { return l.CreatedAt },
		func(l models.Like) string { return l.ID })
	page := models.Paginate(likes, req)

	ids := make([]string, 0, len(page.Results)*2)
	for _, l := range page.Results {
		ids = append(ids, l.FromUser, l.ToUser)
	}
	summaries, err := s.profiles.Summaries(ctx, ids)
	if err != nil {
		return models.Page[models.LikeWithProfiles]{}, err
	}

	results := make([]models.LikeWithProfiles, 0, len(page.Results))
	for _, l := range page.Results {
		results = append(results, models.LikeWithProfiles{
			Like:            l,
			FromUserProfile: summaryRef(summaries, l.FromUser),
			ToUserProfile:   summaryRef(summaries, l.ToUser),
			IsMutual:        matched[l.ToUser],
		})
	}
	return models.Remap(page, results), nil
}
