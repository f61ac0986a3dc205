package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"spark_server/models"
)

func TestMapPgError(t *testing.T) {
	plain := errors.New("connection reset")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unique violation", &pgconn.PgError{Code: pgUniqueViolation}, models.ErrConflict},
		{"serialization failure", &pgconn.PgError{Code: pgSerializationFailure}, models.ErrConflict},
		{"deadlock", &pgconn.PgError{Code: pgDeadlockDetected}, models.ErrConflict},
		{"malformed uuid", &pgconn.PgError{Code: pgInvalidTextRepr}, models.ErrNotFound},
		{"other", plain, plain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapPgError(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("mapPgError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
	if mapPgError(nil) != nil {
		t.Fatalf("expected nil to stay nil")
	}
}

func TestPostgresMalformedIDsAreNotFound(t *testing.T) {
	// no connection: malformed ids must be answered before any query
	s := &PostgresStore{}
	ctx := context.Background()

	if _, err := s.GetLike(ctx, "abc"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("like: expected not found, got %v", err)
	}
	if _, err := s.GetMatch(ctx, "abc"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("match: expected not found, got %v", err)
	}
	if _, err := s.GetBlock(ctx, "abc"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("block: expected not found, got %v", err)
	}
	err := s.AppendMessage(ctx, models.Match{ID: "abc", UserA: "a", UserB: "b"}, models.Message{ID: uuid.NewString()})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("append: expected not found, got %v", err)
	}
	if msgs, err := s.ListMessages(ctx, "abc"); err != nil || len(msgs) != 0 {
		t.Fatalf("list: expected empty, got %v, %v", msgs, err)
	}
	if n, err := s.MarkMessagesRead(ctx, "abc", "a"); err != nil || n != 0 {
		t.Fatalf("mark read: expected 0, got %d, %v", n, err)
	}
}

// newTestPostgresStore connects to TEST_DATABASE_URL and empties the schema.
// Tests using it skip when the variable is unset.
func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := OpenPostgres(dsn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	truncate := func() {
		if err := s.db.Exec("TRUNCATE profiles, likes, matches, blocks, messages").Error; err != nil {
			t.Fatalf("truncate: %v", err)
		}
	}
	truncate()
	t.Cleanup(func() {
		truncate()
		_ = s.Close()
	})
	return s
}

func TestPostgresCommitLikeRejectsStaleSnapshot(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()

	snap, err := s.PairState(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("pair state: %v", err)
	}
	like := models.Like{ID: uuid.NewString(), FromUser: "alice", ToUser: "bob", Status: models.LikeStatusPending, CreatedAt: time.Now()}
	if err := s.CommitLike(ctx, LikeCommit{Snapshot: *snap, Like: like}); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	again := like
	again.ID = uuid.NewString()
	if err := s.CommitLike(ctx, LikeCommit{Snapshot: *snap, Like: again}); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict for stale snapshot, got %v", err)
	}
	stored, err := s.GetLike(ctx, like.ID)
	if err != nil || stored.Status != models.LikeStatusPending {
		t.Fatalf("expected original like untouched, got %+v, %v", stored, err)
	}
}

func TestPostgresLikeUpsertReplacesRejectedLike(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()

	snap, _ := s.PairState(ctx, "alice", "bob")
	first := models.Like{ID: uuid.NewString(), FromUser: "alice", ToUser: "bob", Status: models.LikeStatusPending, CreatedAt: time.Now()}
	if err := s.CommitLike(ctx, LikeCommit{Snapshot: *snap, Like: first}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.UpdateLikeStatus(ctx, first, models.LikeStatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}

	snap, _ = s.PairState(ctx, "alice", "bob")
	second := models.Like{ID: uuid.NewString(), FromUser: "alice", ToUser: "bob", Status: models.LikeStatusPending, CreatedAt: time.Now()}
	if err := s.CommitLike(ctx, LikeCommit{Snapshot: *snap, Like: second}); err != nil {
		t.Fatalf("re-like: %v", err)
	}
	likes, _ := s.ListLikesFrom(ctx, "alice")
	if len(likes) != 1 || likes[0].ID != second.ID || likes[0].Status != models.LikeStatusPending {
		t.Fatalf("expected one replaced like, got %+v", likes)
	}
}

func TestPostgresCommitBlockCascades(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()
	match := seedMatch(t, s, "alice", "bob")

	for i := 0; i < 3; i++ {
		msg := models.Message{ID: uuid.NewString(), MatchID: match.ID, Sender: "alice", Content: "hi", CreatedAt: time.Now()}
		if err := s.AppendMessage(ctx, match, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	snap, _ := s.PairState(ctx, "bob", "alice")
	block := models.Block{ID: uuid.NewString(), Blocker: "bob", Blocked: "alice", CreatedAt: time.Now()}
	if err := s.CommitBlock(ctx, BlockCommit{Snapshot: *snap, Block: block}); err != nil {
		t.Fatalf("commit block: %v", err)
	}

	after, _ := s.PairState(ctx, "alice", "bob")
	if after.Outgoing != nil || after.Incoming != nil || after.Match != nil || !after.Blocked() {
		t.Fatalf("expected only the block left, got %+v", after)
	}
	if msgs, _ := s.ListMessages(ctx, match.ID); len(msgs) != 0 {
		t.Fatalf("expected messages purged, got %d", len(msgs))
	}
	err := s.AppendMessage(ctx, match, models.Message{ID: uuid.NewString(), MatchID: match.ID, Sender: "bob", Content: "late"})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected append to a dissolved match to be not found, got %v", err)
	}
}

func TestPostgresDeleteMatchTwice(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()
	match := seedMatch(t, s, "alice", "bob")

	if err := s.DeleteMatch(ctx, match); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.DeleteMatch(ctx, match); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestPostgresMalformedIDQueryMapsToNotFound(t *testing.T) {
	s := newTestPostgresStore(t)
	err := s.db.WithContext(context.Background()).Where("id = ?", "abc").Take(&likeRow{}).Error
	if !errors.Is(mapPgError(err), models.ErrNotFound) {
		t.Fatalf("expected invalid uuid literal to map to not found, got %v", err)
	}
}

func TestPostgresSaveProfileRejectsStaleVersion(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	first := models.Profile{UserID: "alice", DisplayName: "Alice", CreatedAt: base, UpdatedAt: base}
	if err := s.SaveProfile(ctx, first, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.SaveProfile(ctx, first, nil); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict creating twice, got %v", err)
	}

	stored, err := s.GetProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	next := *stored
	next.Bio = "climber"
	next.UpdatedAt = base.Add(time.Second)
	if err := s.SaveProfile(ctx, next, stored); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.SaveProfile(ctx, next, stored); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict for stale version, got %v", err)
	}
}
