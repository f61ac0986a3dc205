package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"spark_server/models"
	"spark_server/storage"
)

// DiscoveryService lists profiles a user has no relationship with yet.
type DiscoveryService struct {
	store    storage.Store
	profiles *ProfileService
	logger   *slog.Logger
}

func NewDiscoveryService(store storage.Store, profiles *ProfileService, logger *slog.Logger) *DiscoveryService {
	return &DiscoveryService{store: store, profiles: profiles, logger: logger}
}

// Discover returns candidate profiles for user, optionally narrowed by a
// case-insensitive search over name, bio, location and interests. Anyone the
// user has liked, been liked by, matched or is blocked with either way is
// left out. Results are newest profiles first, ties by user ID.
func (s *DiscoveryService) Discover(ctx context.Context, user, search string, req models.PageRequest) (models.Page[models.ProfileSummary], error) {
	search = strings.TrimSpace(search)

	var (
		candidates []models.Profile
		excluded   map[string]bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		candidates, err = s.store.ListProfiles(gctx, search)
		return err
	})
	g.Go(func() error {
		var err error
		excluded, err = s.related(gctx, user)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Page[models.ProfileSummary]{}, err
	}

	visible := make([]models.Profile, 0, len(candidates))
	for _, p := range candidates {
		if p.UserID != user && !excluded[p.UserID] {
			visible = append(visible, p)
		}
	}
	newestFirst(visible,
		func(p models.Profile) time.Time { return p.CreatedAt },
		func(p models.Profile) string { return p.UserID })

	page := models.Paginate(visible, req)
	s.logger.DebugContext(ctx, "discovery", "user_id", user, "search", search, "candidates", len(candidates), "visible", len(visible))
	return models.Remap(page, s.profiles.Present(ctx, page.Results)), nil
}

// related collects every user with a like, match or block touching user.
func (s *DiscoveryService) related(ctx context.Context, user string) (map[string]bool, error) {
	var (
		sent, received     []models.Like
		matches            []models.Match
		blocksBy, blocksAt []models.Block
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { sent, err = s.store.ListLikesFrom(gctx, user); return })
	g.Go(func() (err error) { received, err = s.store.ListLikesTo(gctx, user); return })
	g.Go(func() (err error) { matches, err = s.store.ListMatchesFor(gctx, user); return })
	g.Go(func() (err error) { blocksBy, err = s.store.ListBlocksBy(gctx, user); return })
	g.Go(func() (err error) { blocksAt, err = s.store.ListBlocksAgainst(gctx, user); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	excluded := make(map[string]bool)
	for _, l := range sent {
		excluded[l.ToUser] = true
	}
	for _, l := range received {
		excluded[l.FromUser] = true
	}
	for _, m := range matches {
		excluded[m.Counterpart(user)] = true
	}
	for _, b := range blocksBy {
		excluded[b.Blocked] = true
	}
	for _, b := range blocksAt {
		excluded[b.Blocker] = true
	}
	return excluded, nil
}
