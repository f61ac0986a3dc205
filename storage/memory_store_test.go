package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"spark_server/models"
)

// seedMatch has a and b like each other through s and returns their match.
func seedMatch(t *testing.T, s Store, a, b string) models.Match {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	snap, err := s.PairState(ctx, a, b)
	if err != nil {
		t.Fatalf("pair state: %v", err)
	}
	first := models.Like{ID: uuid.NewString(), FromUser: a, ToUser: b, Status: models.LikeStatusPending, CreatedAt: now}
	if err := s.CommitLike(ctx, LikeCommit{Snapshot: *snap, Like: first}); err != nil {
		t.Fatalf("commit first like: %v", err)
	}

	snap, _ = s.PairState(ctx, b, a)
	accepted := *snap.Incoming
	accepted.Status = models.LikeStatusAccepted
	ua, ub := models.CanonicalPair(a, b)
	match := models.Match{ID: uuid.NewString(), UserA: ua, UserB: ub, CreatedAt: now}
	second := models.Like{ID: uuid.NewString(), FromUser: b, ToUser: a, Status: models.LikeStatusAccepted, CreatedAt: now}
	if err := s.CommitLike(ctx, LikeCommit{Snapshot: *snap, Like: second, Accept: &accepted, Match: &match}); err != nil {
		t.Fatalf("commit reciprocal like: %v", err)
	}
	return match
}

func TestMemoryStoreCommitLikeRejectsStaleSnapshot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	snap, _ := s.PairState(ctx, "alice", "bob")
	like := models.Like{ID: "l1", FromUser: "alice", ToUser: "bob", Status: models.LikeStatusPending}
	if err := s.CommitLike(ctx, LikeCommit{Snapshot: *snap, Like: like}); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	like.ID = "l2"
	err := s.CommitLike(ctx, LikeCommit{Snapshot: *snap, Like: like})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict for stale snapshot, got %v", err)
	}

	stored, err := s.GetLike(ctx, "l1")
	if err != nil || stored.Status != models.LikeStatusPending {
		t.Fatalf("expected original like untouched, got %+v, %v", stored, err)
	}
}

func TestMemoryStoreReverseLikeInvalidatesSnapshot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	aliceView, _ := s.PairState(ctx, "alice", "bob")
	bobView, _ := s.PairState(ctx, "bob", "alice")

	if err := s.CommitLike(ctx, LikeCommit{Snapshot: *aliceView, Like: models.Like{ID: "a", FromUser: "alice", ToUser: "bob", Status: models.LikeStatusPending}}); err != nil {
		t.Fatalf("alice commit: %v", err)
	}
	err := s.CommitLike(ctx, LikeCommit{Snapshot: *bobView, Like: models.Like{ID: "b", FromUser: "bob", ToUser: "alice", Status: models.LikeStatusPending}})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict once the reverse like landed, got %v", err)
	}
}

func TestMemoryStoreCommitBlockCascades(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	match := seedMatch(t, s, "alice", "bob")

	for i := 0; i < 3; i++ {
		msg := models.Message{ID: string(rune('a' + i)), MatchID: match.ID, Sender: "alice", Content: "hi", CreatedAt: time.Now()}
		if err := s.AppendMessage(ctx, match, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	snap, _ := s.PairState(ctx, "bob", "alice")
	block := models.Block{ID: "blk", Blocker: "bob", Blocked: "alice"}
	if err := s.CommitBlock(ctx, BlockCommit{Snapshot: *snap, Block: block}); err != nil {
		t.Fatalf("commit block: %v", err)
	}

	after, _ := s.PairState(ctx, "alice", "bob")
	if after.Outgoing != nil || after.Incoming != nil || after.Match != nil {
		t.Fatalf("expected likes and match removed, got %+v", after)
	}
	if !after.Blocked() {
		t.Fatalf("expected block visible")
	}
	msgs, _ := s.ListMessages(ctx, match.ID)
	if len(msgs) != 0 {
		t.Fatalf("expected messages purged, got %d", len(msgs))
	}
	if _, err := s.GetMatch(ctx, match.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected match gone, got %v", err)
	}
}

func TestMemoryStoreDeleteMatchTwice(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	match := seedMatch(t, s, "alice", "bob")

	if err := s.DeleteMatch(ctx, match); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.DeleteMatch(ctx, match); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestMemoryStoreAppendMessageGates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	match := seedMatch(t, s, "alice", "bob")

	s.blocks[pairKey{"alice", "bob"}] = models.Block{ID: "x", Blocker: "alice", Blocked: "bob"}
	err := s.AppendMessage(ctx, match, models.Message{ID: "m", MatchID: match.ID, Sender: "bob", Content: "hey"})
	if !errors.Is(err, models.ErrBlocked) {
		t.Fatalf("expected blocked, got %v", err)
	}

	ghost := models.Match{ID: "ghost", UserA: "carol", UserB: "dave"}
	err = s.AppendMessage(ctx, ghost, models.Message{ID: "m2", MatchID: "ghost", Sender: "carol", Content: "hey"})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreMessagesOrderedAndMarkRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	match := seedMatch(t, s, "alice", "bob")

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	inputs := []models.Message{
		{ID: "03", Sender: "bob", CreatedAt: at.Add(time.Second)},
		{ID: "02", Sender: "alice", CreatedAt: at},
		{ID: "01", Sender: "bob", CreatedAt: at},
	}
	for _, m := range inputs {
		m.MatchID = match.ID
		m.Content = "x"
		if err := s.AppendMessage(ctx, match, m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, _ := s.ListMessages(ctx, match.ID)
	got := []string{msgs[0].ID, msgs[1].ID, msgs[2].ID}
	want := []string{"01", "02", "03"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}

	n, err := s.MarkMessagesRead(ctx, match.ID, "alice")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 messages marked for alice, got %d, %v", n, err)
	}
	n, _ = s.MarkMessagesRead(ctx, match.ID, "alice")
	if n != 0 {
		t.Fatalf("expected second mark to be a no-op, got %d", n)
	}
}

func TestPairStateSame(t *testing.T) {
	pending := &models.Like{ID: "l", Status: models.LikeStatusPending}
	rejected := &models.Like{ID: "l", Status: models.LikeStatusRejected}
	match := &models.Match{ID: "m"}

	tests := []struct {
		name string
		a, b PairState
		want bool
	}{
		{"empty", PairState{}, PairState{}, true},
		{"like appeared", PairState{}, PairState{Outgoing: pending}, false},
		{"status changed", PairState{Incoming: pending}, PairState{Incoming: rejected}, false},
		{"match appeared", PairState{}, PairState{Match: match}, false},
		{"block appeared", PairState{}, PairState{Blocks: []models.Block{{ID: "b", Blocker: "x"}}}, false},
		{"identical", PairState{Outgoing: pending, Match: match}, PairState{Outgoing: pending, Match: match}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Same(tt.b); got != tt.want {
				t.Fatalf("Same() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemoryStoreSaveProfileRejectsStaleVersion(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	first := models.Profile{UserID: "alice", DisplayName: "Alice", UpdatedAt: base}
	if err := store.SaveProfile(ctx, first, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.SaveProfile(ctx, first, nil); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict creating twice, got %v", err)
	}

	second := first
	second.Bio = "one"
	second.UpdatedAt = base.Add(time.Second)
	if err := store.SaveProfile(ctx, second, &first); err != nil {
		t.Fatalf("update: %v", err)
	}
	third := first
	third.Bio = "two"
	third.UpdatedAt = base.Add(2 * time.Second)
	if err := store.SaveProfile(ctx, third, &first); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict for stale version, got %v", err)
	}
}
