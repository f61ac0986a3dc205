package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"spark_server/models"
	"spark_server/storage"
)

func strPtr(s string) *string { return &s }

func TestUpsertMeCreatesThenPatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.profiles.Me(ctx, "alice"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected no profile yet, got %v", err)
	}

	age := 29
	gender := models.GenderFemale
	created, err := env.profiles.UpsertMe(ctx, "alice", ProfileInput{
		DisplayName: strPtr("  Alice  "),
		Age:         &age,
		Gender:      &gender,
		Location:    strPtr("Lisbon"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.DisplayName != "Alice" || created.CreatedAt.IsZero() {
		t.Fatalf("unexpected profile %+v", created)
	}

	patched, err := env.profiles.UpsertMe(ctx, "alice", ProfileInput{Bio: strPtr("climber")})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if patched.Bio != "climber" || patched.Location != "Lisbon" || patched.DisplayName != "Alice" {
		t.Fatalf("expected untouched fields kept, got %+v", patched)
	}
	if !patched.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("expected created_at preserved")
	}

	if len(env.cache.invalidated) != 2 {
		t.Fatalf("expected cache invalidated on each write, got %v", env.cache.invalidated)
	}
}

func TestUpsertMeValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	zero := 0
	bogus := models.Gender("robot")

	tests := []struct {
		name string
		in   ProfileInput
	}{
		{name: "missing display name", in: ProfileInput{Bio: strPtr("hi")}},
		{name: "blank display name", in: ProfileInput{DisplayName: strPtr("   ")}},
		{name: "long display name", in: ProfileInput{DisplayName: strPtr(strings.Repeat("n", 51))}},
		{name: "long bio", in: ProfileInput{DisplayName: strPtr("A"), Bio: strPtr(strings.Repeat("b", 501))}},
		{name: "long location", in: ProfileInput{DisplayName: strPtr("A"), Location: strPtr(strings.Repeat("l", 101))}},
		{name: "zero age", in: ProfileInput{DisplayName: strPtr("A"), Age: &zero}},
		{name: "unknown gender", in: ProfileInput{DisplayName: strPtr("A"), Gender: &bogus}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.profiles.UpsertMe(ctx, "alice", tt.in)
			if !errors.Is(err, models.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestInterestListAcceptsArrayOrString(t *testing.T) {
	tests := []struct {
		body string
		want []string
	}{
		{body: `{"interests": ["hiking", " tea ", ""]}`, want: []string{"hiking", "tea"}},
		{body: `{"interests": "hiking, tea ,,jazz"}`, want: []string{"hiking", "tea", "jazz"}},
	}
	for _, tt := range tests {
		var in ProfileInput
		if err := json.Unmarshal([]byte(tt.body), &in); err != nil {
			t.Fatalf("decode %s: %v", tt.body, err)
		}
		got := []string(*in.Interests)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Fatalf("expected %v, got %v", tt.want, got)
		}
	}

	var in ProfileInput
	if err := json.Unmarshal([]byte(`{"interests": 7}`), &in); err == nil {
		t.Fatalf("expected error for numeric interests")
	}
}

func TestSummariesUseCacheAndSignAvatars(t *testing.T) {
	store := storage.NewMemoryStore()
	cache := newFakeCache()
	profiles := NewProfileService(store, cache, fakeSigner{}, discardLogger())
	ctx := context.Background()

	for _, p := range []models.Profile{
		{UserID: "alice", DisplayName: "Alice", Avatar: "avatars/alice.jpg"},
		{UserID: "bob", DisplayName: "Bob", Avatar: "https://cdn.example/bob.png"},
	} {
		if err := store.PutProfile(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	first, err := profiles.Summaries(ctx, []string{"alice", "bob", "ghost", "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 {
		t.Fatalf("expected unknown users skipped, got %v", first)
	}
	if first["alice"].AvatarURL != "https://signed.example/avatars/alice.jpg" {
		t.Fatalf("expected signed avatar, got %q", first["alice"].AvatarURL)
	}
	if first["bob"].AvatarURL != "https://cdn.example/bob.png" {
		t.Fatalf("expected absolute url left alone, got %q", first["bob"].AvatarURL)
	}
	if cache.hits != 0 {
		t.Fatalf("expected cold cache, got %d hits", cache.hits)
	}

	if _, err := profiles.Summaries(ctx, []string{"alice", "bob"}); err != nil {
		t.Fatal(err)
	}
	if cache.hits != 2 {
		t.Fatalf("expected both served from cache, got %d hits", cache.hits)
	}
}

func TestGetHidesBlockedProfiles(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfiles(t, "alice", "bob", "carol")
	ctx := context.Background()

	if _, err := env.blocks.CreateBlock(ctx, "bob", "alice", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.profiles.Get(ctx, "alice", "bob"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected blocked profile hidden, got %v", err)
	}
	if _, err := env.profiles.Get(ctx, "bob", "alice"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected blocker unable to view either, got %v", err)
	}

	summary, err := env.profiles.Get(ctx, "carol", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if summary.DisplayName != "User bob" {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if _, err := env.profiles.Get(ctx, "carol", "nobody"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// racingProfileStore lets another writer save the profile between the first
// read and the first write of an update.
type racingProfileStore struct {
	*storage.MemoryStore
	raced bool
}

func (s *racingProfileStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := s.MemoryStore.GetProfile(ctx, userID)
	if err != nil || s.raced {
		return p, err
	}
	s.raced = true
	other := *p
	other.Location = "Porto"
	other.UpdatedAt = p.UpdatedAt.Add(time.Second)
	if err := s.MemoryStore.PutProfile(ctx, other); err != nil {
		return nil, err
	}
	return p, nil
}

func TestUpsertMeReappliesOverConcurrentSave(t *testing.T) {
	mem := storage.NewMemoryStore()
	store := &racingProfileStore{MemoryStore: mem}
	env := newTestEnvWithStore(t, mem, store)
	env.seedProfiles(t, "alice")
	ctx := context.Background()

	saved, err := env.profiles.UpsertMe(ctx, "alice", ProfileInput{Bio: strPtr("climber")})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if saved.Bio != "climber" || saved.Location != "Porto" {
		t.Fatalf("expected both updates kept, got %+v", saved)
	}

	stored, _ := mem.GetProfile(ctx, "alice")
	if stored.Bio != "climber" || stored.Location != "Porto" {
		t.Fatalf("expected both updates stored, got %+v", stored)
	}
}
