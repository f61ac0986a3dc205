package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"spark_server/models"
	"spark_server/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	store     *storage.MemoryStore
	cache     *fakeCache
	profiles  *ProfileService
	likes     *LikeService
	matches   *MatchService
	blocks    *BlockService
	discovery *DiscoveryService
	messages  *MessageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := storage.NewMemoryStore()
	return newTestEnvWithStore(t, store, store)
}

// newTestEnvWithStore lets a test wrap the memory store while keeping direct
// access to it for seeding.
func newTestEnvWithStore(t *testing.T, mem *storage.MemoryStore, store storage.Store) *testEnv {
	t.Helper()
	logger := discardLogger()
	cache := newFakeCache()
	profiles := NewProfileService(store, cache, nil, logger)
	matches := NewMatchService(store, profiles, logger)
	return &testEnv{
		store:     mem,
		cache:     cache,
		profiles:  profiles,
		likes:     NewLikeService(store, profiles, logger),
		matches:   matches,
		blocks:    NewBlockService(store, profiles, logger),
		discovery: NewDiscoveryService(store, profiles, logger),
		messages:  NewMessageService(store, matches, profiles, logger),
	}
}

func (e *testEnv) seedProfiles(t *testing.T, ids ...string) {
	t.Helper()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range ids {
		err := e.store.PutProfile(context.Background(), models.Profile{
			UserID:      id,
			DisplayName: "User " + id,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:   base,
		})
		if err != nil {
			t.Fatalf("seed profile %s: %v", id, err)
		}
	}
}

// match makes a and b like each other and returns the resulting match ID.
func (e *testEnv) match(t *testing.T, a, b string) string {
	t.Helper()
	ctx := context.Background()
	if _, err := e.likes.SendLike(ctx, a, b); err != nil {
		t.Fatalf("%s likes %s: %v", a, b, err)
	}
	res, err := e.likes.SendLike(ctx, b, a)
	if err != nil {
		t.Fatalf("%s likes %s: %v", b, a, err)
	}
	if !res.Matched || res.MatchID == "" {
		t.Fatalf("expected match between %s and %s, got %+v", a, b, res)
	}
	return res.MatchID
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]models.ProfileSummary
	invalidated []string
	hits        int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]models.ProfileSummary)}
}

func (c *fakeCache) Get(ctx context.Context, userID string) (*models.ProfileSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.entries[userID]; ok {
		c.hits++
		return &s, nil
	}
	return nil, nil
}

func (c *fakeCache) Set(ctx context.Context, summary models.ProfileSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[summary.UserID] = summary
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}

type fakeSigner struct{}

func (fakeSigner) ReadURL(ctx context.Context, key string) (string, error) {
	return "https://signed.example/" + key, nil
}
