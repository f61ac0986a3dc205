package storage

import (
	"context"

	"spark_server/models"
)

// Store is the persistence contract every service is written against.
//
// Pair-scoped writes (likes, matches, blocks) go through CommitLike and
// CommitBlock. Each takes the PairState snapshot the caller decided on and
// applies its effects atomically only while the pair still looks exactly like
// that snapshot; otherwise it returns models.ErrConflict and writes nothing.
type Store interface {
	Ping(ctx context.Context) error

	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	GetProfiles(ctx context.Context, userIDs []string) (map[string]models.Profile, error)
	PutProfile(ctx context.Context, profile models.Profile) error
	// SaveProfile writes profile only while the stored profile is still prev
	// (nil: none stored yet), compared by UpdatedAt. Otherwise it returns
	// models.ErrConflict and writes nothing.
	SaveProfile(ctx context.Context, profile models.Profile, prev *models.Profile) error
	// ListProfiles returns every profile whose searchable fields contain
	// search (case-insensitive). An empty search returns all profiles.
	ListProfiles(ctx context.Context, search string) ([]models.Profile, error)

	GetLike(ctx context.Context, likeID string) (*models.Like, error)
	ListLikesFrom(ctx context.Context, userID string) ([]models.Like, error)
	ListLikesTo(ctx context.Context, userID string) ([]models.Like, error)
	// UpdateLikeStatus moves like from its current status to status. It
	// returns models.ErrConflict if the stored like no longer has like.Status.
	UpdateLikeStatus(ctx context.Context, like models.Like, status models.LikeStatus) error

	PairState(ctx context.Context, actor, other string) (*PairState, error)
	CommitLike(ctx context.Context, commit LikeCommit) error
	CommitBlock(ctx context.Context, commit BlockCommit) error

	GetMatch(ctx context.Context, matchID string) (*models.Match, error)
	ListMatchesFor(ctx context.Context, userID string) ([]models.Match, error)
	// DeleteMatch removes the match and all of its messages. It returns
	// models.ErrNotFound when the match is already gone.
	DeleteMatch(ctx context.Context, match models.Match) error

	GetBlock(ctx context.Context, blockID string) (*models.Block, error)
	ListBlocksBy(ctx context.Context, blocker string) ([]models.Block, error)
	ListBlocksAgainst(ctx context.Context, blocked string) ([]models.Block, error)
	DeleteBlock(ctx context.Context, block models.Block) error

	// AppendMessage stores msg only while match still exists (else
	// models.ErrNotFound) and no block separates its participants (else
	// models.ErrBlocked).
	AppendMessage(ctx context.Context, match models.Match, msg models.Message) error
	// ListMessages returns a match's messages oldest first, ties by ID.
	ListMessages(ctx context.Context, matchID string) ([]models.Message, error)
	// MarkMessagesRead flags every unread message in the match not sent by
	// reader and reports how many changed.
	MarkMessagesRead(ctx context.Context, matchID, reader string) (int, error)
}

// profileUnchanged reports whether current is still the version prev was read as.
func profileUnchanged(current, prev *models.Profile) bool {
	if current == nil || prev == nil {
		return current == nil && prev == nil
	}
	return current.UpdatedAt.Equal(prev.UpdatedAt)
}

// PairState is everything stored between two users, seen from actor.
type PairState struct {
	Actor    string
	Other    string
	Outgoing *models.Like // actor -> other
	Incoming *models.Like // other -> actor
	Match    *models.Match
	Blocks   []models.Block // either direction
}

// Blocked reports whether a block exists in either direction.
func (p PairState) Blocked() bool {
	return len(p.Blocks) > 0
}

// BlockBy returns the block placed by blocker, if any.
func (p PairState) BlockBy(blocker string) *models.Block {
	for i := range p.Blocks {
		if p.Blocks[i].Blocker == blocker {
			return &p.Blocks[i]
		}
	}
	return nil
}

// Same reports whether two snapshots of the same pair are indistinguishable
// for guarding purposes: same like IDs and statuses, same match, same blocks.
func (p PairState) Same(other PairState) bool {
	if !sameLike(p.Outgoing, other.Outgoing) || !sameLike(p.Incoming, other.Incoming) {
		return false
	}
	if (p.Match == nil) != (other.Match == nil) {
		return false
	}
	if p.Match != nil && p.Match.ID != other.Match.ID {
		return false
	}
	if len(p.Blocks) != len(other.Blocks) {
		return false
	}
	for _, b := range p.Blocks {
		ob := other.BlockBy(b.Blocker)
		if ob == nil || ob.ID != b.ID {
			return false
		}
	}
	return true
}

func sameLike(a, b *models.Like) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID && a.Status == b.Status
}

// LikeCommit writes Like (actor -> other) into the outgoing slot. When Accept
// is set it also flips that incoming like to accepted and inserts Match.
type LikeCommit struct {
	Snapshot PairState
	Like     models.Like
	Accept   *models.Like
	Match    *models.Match
}

// BlockCommit inserts Block and, in the same step, removes the pair's likes in
// both directions and its match together with the match's messages.
type BlockCommit struct {
	Snapshot PairState
	Block    models.Block
}
