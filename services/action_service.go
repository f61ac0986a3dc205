package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"spark_server/models"
	"spark_server/storage"
)

type blockInput struct {
	Reason string `validate:"max=200"`
}

// BlockService places and lifts blocks. Placing a block removes every like
// and any match (with its messages) between the pair in the same commit.
type BlockService struct {
	store    storage.Store
	profiles *ProfileService
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewBlockService(store storage.Store, profiles *ProfileService, logger *slog.Logger) *BlockService {
	return &BlockService{
		store:    store,
		profiles: profiles,
		validate: newValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

// CreateBlock blocks blocked on behalf of blocker. Blocking someone already
// blocked returns the existing block.
func (s *BlockService) CreateBlock(ctx context.Context, blocker, blocked, reason string) (*models.Block, error) {
	if blocker == "" || blocked == "" {
		return nil, fmt.Errorf("%w: blocked_user is required", models.ErrValidation)
	}
	if blocker == blocked {
		return nil, fmt.Errorf("%w: cannot block yourself", models.ErrSelfInteraction)
	}
	reason = strings.TrimSpace(reason)
	if err := s.validate.Struct(blockInput{Reason: reason}); err != nil {
		return nil, validationError(err)
	}
	if _, err := s.store.GetProfile(ctx, blocked); err != nil {
		return nil, err
	}

	var block *models.Block
	var created bool
	err := retryOnConflict(ctx, s.logger, "create block", func() error {
		state, err := s.store.PairState(ctx, blocker, blocked)
		if err != nil {
			return err
		}
		if existing := state.BlockBy(blocker); existing != nil {
			block, created = existing, false
			return nil
		}

		b := models.Block{
			ID:        uuid.NewString(),
			Blocker:   blocker,
			Blocked:   blocked,
			Reason:    reason,
			CreatedAt: s.now().UTC(),
		}
		if err := s.store.CommitBlock(ctx, storage.BlockCommit{Snapshot: *state, Block: b}); err != nil {
			return err
		}
		block, created = &b, true
		if state.Match != nil {
			s.logger.InfoContext(ctx, "block dissolved match", "match_id", state.Match.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.InfoContext(ctx, "user blocked", "blocker", blocker, "blocked", blocked, "block_id", block.ID)
	}
	return block, nil
}

// RemoveBlock lifts a block. Likes and matches removed by it stay removed.
func (s *BlockService) RemoveBlock(ctx context.Context, blockID, actingUser string) error {
	block, err := s.store.GetBlock(ctx, blockID)
	if err != nil {
		return err
	}
	if block.Blocker != actingUser {
		return fmt.Errorf("%w: only the blocker can remove block %s", models.ErrForbidden, blockID)
	}
	if err := s.store.DeleteBlock(ctx, *block); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "block removed", "block_id", blockID, "by", actingUser)
	return nil
}

// IsBlocked reports whether either user has blocked the other.
func (s *BlockService) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	state, err := s.store.PairState(ctx, a, b)
	if err != nil {
		return false, err
	}
	return state.Blocked(), nil
}

// ListBlocks returns the blocks placed by blocker, newest first.
func (s *BlockService) ListBlocks(ctx context.Context, blocker string, req models.PageRequest) (models.Page[models.BlockWithProfile], error) {
	blocks, err := s.store.ListBlocksBy(ctx, blocker)
	if err != nil {
		return models.Page[models.BlockWithProfile]{}, err
	}
	newestFirst(blocks,
		func(b models.Block) time.Time { return b.CreatedAt },
		func(b models.Block) string { return b.ID })
	page := models.Paginate(blocks, req)

	ids := make([]string, 0, len(page.Results))
	for _, b := range page.Results {
		ids = append(ids, b.Blocked)
	}
	summaries, err := s.profiles.Summaries(ctx, ids)
	if err != nil {
		return models.Page[models.BlockWithProfile]{}, err
	}

	results := make([]models.BlockWithProfile, 0, len(page.Results))
	for _, b := range page.Results {
		results = append(results, models.BlockWithProfile{
			Block:          b,
			BlockedProfile: summaryRef(summaries, b.Blocked),
		})
	}
	return models.Remap(page, results), nil
}
