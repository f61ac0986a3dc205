package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"spark_server/models"
)

type pairKey struct{ from, to string }

// MemoryStore is an in-process Store. All guards are evaluated under one lock,
// which makes every commit trivially atomic. Used for local runs and tests.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]models.Profile
	likes    map[pairKey]models.Like
	matches  map[pairKey]models.Match // canonical pair
	blocks   map[pairKey]models.Block
	messages map[string][]models.Message
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]models.Profile),
		likes:    make(map[pairKey]models.Like),
		matches:  make(map[pairKey]models.Match),
		blocks:   make(map[pairKey]models.Block),
		messages: make(map[string][]models.Message),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("%w: profile %s", models.ErrNotFound, userID)
	}
	return &p, nil
}

func (s *MemoryStore) GetProfiles(ctx context.Context, userIDs []string) (map[string]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.Profile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *MemoryStore) PutProfile(ctx context.Context, profile models.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
	return nil
}

func (s *MemoryStore) SaveProfile(ctx context.Context, profile models.Profile, prev *models.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var current *models.Profile
	if p, ok := s.profiles[profile.UserID]; ok {
		current = &p
	}
	if !profileUnchanged(current, prev) {
		return fmt.Errorf("%w: profile %s changed", models.ErrConflict, profile.UserID)
	}
	s.profiles[profile.UserID] = profile
	return nil
}

func (s *MemoryStore) ListProfiles(ctx context.Context, search string) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Profile
	for _, p := range s.profiles {
		if p.MatchesSearch(search) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetLike(ctx context.Context, likeID string) (*models.Like, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.likes {
		if l.ID == likeID {
			like := l
			return &like, nil
		}
	}
	return nil, fmt.Errorf("%w: like %s", models.ErrNotFound, likeID)
}

func (s *MemoryStore) ListLikesFrom(ctx context.Context, userID string) ([]models.Like, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Like
	for k, l := range s.likes {
		if k.from == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListLikesTo(ctx context.Context, userID string) ([]models.Like, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Like
	for k, l := range s.likes {
		if k.to == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateLikeStatus(ctx context.Context, like models.Like, status models.LikeStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{like.FromUser, like.ToUser}
	current, ok := s.likes[key]
	if !ok || current.ID != like.ID || current.Status != like.Status {
		return fmt.Errorf("%w: like %s changed", models.ErrConflict, like.ID)
	}
	current.Status = status
	current.UpdatedAt = like.UpdatedAt
	s.likes[key] = current
	return nil
}

func (s *MemoryStore) PairState(ctx context.Context, actor, other string) (*PairState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.pairStateLocked(actor, other)
	return &state, nil
}

func (s *MemoryStore) pairStateLocked(actor, other string) PairState {
	state := PairState{Actor: actor, Other: other}
	if l, ok := s.likes[pairKey{actor, other}]; ok {
		state.Outgoing = &l
	}
	if l, ok := s.likes[pairKey{other, actor}]; ok {
		state.Incoming = &l
	}
	if m, ok := s.matches[canonicalKey(actor, other)]; ok {
		state.Match = &m
	}
	if b, ok := s.blocks[pairKey{actor, other}]; ok {
		state.Blocks = append(state.Blocks, b)
	}
	if b, ok := s.blocks[pairKey{other, actor}]; ok {
		state.Blocks = append(state.Blocks, b)
	}
	return state
}

func (s *MemoryStore) CommitLike(ctx context.Context, commit LikeCommit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := commit.Snapshot
	if !s.pairStateLocked(snap.Actor, snap.Other).Same(snap) {
		return fmt.Errorf("%w: pair %s/%s changed", models.ErrConflict, snap.Actor, snap.Other)
	}

	s.likes[pairKey{commit.Like.FromUser, commit.Like.ToUser}] = commit.Like
	if commit.Accept != nil {
		s.likes[pairKey{commit.Accept.FromUser, commit.Accept.ToUser}] = *commit.Accept
	}
	if commit.Match != nil {
		s.matches[pairKey{commit.Match.UserA, commit.Match.UserB}] = *commit.Match
	}
	return nil
}

func (s *MemoryStore) CommitBlock(ctx context.Context, commit BlockCommit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := commit.Snapshot
	if !s.pairStateLocked(snap.Actor, snap.Other).Same(snap) {
		return fmt.Errorf("%w: pair %s/%s changed", models.ErrConflict, snap.Actor, snap.Other)
	}

	delete(s.likes, pairKey{snap.Actor, snap.Other})
	delete(s.likes, pairKey{snap.Other, snap.Actor})
	if snap.Match != nil {
		delete(s.matches, canonicalKey(snap.Actor, snap.Other))
		delete(s.messages, snap.Match.ID)
	}
	s.blocks[pairKey{commit.Block.Blocker, commit.Block.Blocked}] = commit.Block
	return nil
}

func (s *MemoryStore) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.findMatchLocked(matchID); ok {
		return &m, nil
	}
	return nil, fmt.Errorf("%w: match %s", models.ErrNotFound, matchID)
}

func (s *MemoryStore) findMatchLocked(matchID string) (models.Match, bool) {
	for _, m := range s.matches {
		if m.ID == matchID {
			return m, true
		}
	}
	return models.Match{}, false
}

func (s *MemoryStore) ListMatchesFor(ctx context.Context, userID string) ([]models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Match
	for _, m := range s.matches {
		if m.HasParticipant(userID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteMatch(ctx context.Context, match models.Match) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{match.UserA, match.UserB}
	current, ok := s.matches[key]
	if !ok || current.ID != match.ID {
		return fmt.Errorf("%w: match %s", models.ErrNotFound, match.ID)
	}
	delete(s.matches, key)
	delete(s.messages, match.ID)
	return nil
}

func (s *MemoryStore) GetBlock(ctx context.Context, blockID string) (*models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blocks {
		if b.ID == blockID {
			block := b
			return &block, nil
		}
	}
	return nil, fmt.Errorf("%w: block %s", models.ErrNotFound, blockID)
}

func (s *MemoryStore) ListBlocksBy(ctx context.Context, blocker string) ([]models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Block
	for k, b := range s.blocks {
		if k.from == blocker {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListBlocksAgainst(ctx context.Context, blocked string) ([]models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Block
	for k, b := range s.blocks {
		if k.to == blocked {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteBlock(ctx context.Context, block models.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{block.Blocker, block.Blocked}
	current, ok := s.blocks[key]
	if !ok || current.ID != block.ID {
		return fmt.Errorf("%w: block %s", models.ErrNotFound, block.ID)
	}
	delete(s.blocks, key)
	return nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, match models.Match, msg models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.matches[pairKey{match.UserA, match.UserB}]
	if !ok || current.ID != match.ID {
		return fmt.Errorf("%w: match %s", models.ErrNotFound, match.ID)
	}
	_, ab := s.blocks[pairKey{match.UserA, match.UserB}]
	_, ba := s.blocks[pairKey{match.UserB, match.UserA}]
	if ab || ba {
		return fmt.Errorf("%w: participants of match %s", models.ErrBlocked, match.ID)
	}
	s.messages[match.ID] = append(s.messages[match.ID], msg)
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, matchID string) ([]models.Message, error) {
	s.mu.Lock()
	out := append([]models.Message(nil), s.messages[matchID]...)
	s.mu.Unlock()
	SortMessages(out)
	return out, nil
}

func (s *MemoryStore) MarkMessagesRead(ctx context.Context, matchID, reader string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	msgs := s.messages[matchID]
	for i := range msgs {
		if msgs[i].Sender != reader && !msgs[i].IsRead {
			msgs[i].IsRead = true
			updated++
		}
	}
	return updated, nil
}

func canonicalKey(a, b string) pairKey {
	a, b = models.CanonicalPair(a, b)
	return pairKey{a, b}
}

// SortMessages orders messages oldest first with ID as the tie breaker.
func SortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}
