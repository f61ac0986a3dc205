package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"spark_server/middleware"
	"spark_server/models"
	"spark_server/services"
	"spark_server/storage"
)

var secret = []byte("routes-test")

type testServer struct {
	t       *testing.T
	handler http.Handler
	store   *storage.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	profiles := services.NewProfileService(store, nil, nil, logger)
	matches := services.NewMatchService(store, profiles, logger)
	handler := NewRouter(Dependencies{
		Store:          store,
		Profiles:       profiles,
		Discovery:      services.NewDiscoveryService(store, profiles, logger),
		Likes:          services.NewLikeService(store, profiles, logger),
		Matches:        matches,
		Blocks:         services.NewBlockService(store, profiles, logger),
		Messages:       services.NewMessageService(store, matches, profiles, logger),
		JWTSecret:      secret,
		AllowedOrigins: []string{"https://app.example"},
		RequestTimeout: 5 * time.Second,
		Logger:         logger,
	})
	return &testServer{t: t, handler: handler, store: store}
}

// do issues a request as user (anonymous when empty) and decodes the JSON
// response into out when out is non-nil.
func (s *testServer) do(method, path, user string, body any, out any) int {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			s.t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := middleware.SignToken(secret, user, jwt.RegisteredClaims{})
		if err != nil {
			s.t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			s.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func (s *testServer) createProfile(user, name string) {
	s.t.Helper()
	if code := s.do(http.MethodPut, "/api/profiles/me", user, map[string]any{"display_name": name, "interests": "hiking, tea"}, nil); code != http.StatusOK {
		s.t.Fatalf("create profile %s: status %d", user, code)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	var body map[string]string
	if code := s.do(http.MethodGet, "/health", "", nil, &body); code != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("unexpected health %d %v", code, body)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t)
	var body errorBody
	if code := s.do(http.MethodGet, "/api/matches", "", nil, &body); code != http.StatusUnauthorized || body.Error != "unauthorized" {
		t.Fatalf("expected 401, got %d %+v", code, body)
	}
}

func TestLikeMatchMessageUnmatchFlow(t *testing.T) {
	s := newTestServer(t)
	s.createProfile("alice", "Alice")
	s.createProfile("bob", "Bob")

	var first models.LikeResult
	if code := s.do(http.MethodPost, "/api/likes", "alice", map[string]string{"to_user": "bob"}, &first); code != http.StatusCreated || first.Matched {
		t.Fatalf("first like: %d %+v", code, first)
	}

	var received models.Page[models.LikeWithProfiles]
	s.do(http.MethodGet, "/api/likes/received", "bob", nil, &received)
	if received.Count != 1 || received.Results[0].FromUserProfile.DisplayName != "Alice" {
		t.Fatalf("unexpected received page %+v", received)
	}

	var accepted struct {
		Matched bool   `json:"matched"`
		MatchID string `json:"match_id"`
	}
	if code := s.do(http.MethodPost, "/api/likes/"+first.Like.ID+"/accept", "bob", nil, &accepted); code != http.StatusOK || !accepted.Matched {
		t.Fatalf("accept: %d %+v", code, accepted)
	}

	var msg models.MessageWithSender
	if code := s.do(http.MethodPost, "/api/messages", "alice", map[string]string{"match": accepted.MatchID, "content": " hi bob "}, &msg); code != http.StatusCreated {
		t.Fatalf("send message: %d", code)
	}
	if msg.Content != "hi bob" || msg.SenderDisplayName != "Alice" {
		t.Fatalf("unexpected message %+v", msg)
	}

	var read map[string]int
	if code := s.do(http.MethodPost, "/api/messages/read", "bob", map[string]string{"match": accepted.MatchID}, &read); code != http.StatusOK || read["updated"] != 1 {
		t.Fatalf("mark read: %d %v", code, read)
	}

	var convo models.Page[models.MessageWithSender]
	s.do(http.MethodGet, "/api/messages?match_id="+accepted.MatchID, "bob", nil, &convo)
	if convo.Count != 1 || !convo.Results[0].IsRead {
		t.Fatalf("unexpected conversation %+v", convo)
	}

	var outsider errorBody
	s.createProfile("eve", "Eve")
	if code := s.do(http.MethodGet, "/api/messages?match_id="+accepted.MatchID, "eve", nil, &outsider); code != http.StatusForbidden || outsider.Error != "forbidden" {
		t.Fatalf("expected outsider forbidden, got %d %+v", code, outsider)
	}

	if code := s.do(http.MethodDelete, "/api/matches/"+accepted.MatchID, "alice", nil, nil); code != http.StatusNoContent {
		t.Fatalf("unmatch: %d", code)
	}
	var gone errorBody
	if code := s.do(http.MethodDelete, "/api/matches/"+accepted.MatchID, "alice", nil, &gone); code != http.StatusNotFound || gone.Error != "not_found" {
		t.Fatalf("expected second unmatch 404, got %d %+v", code, gone)
	}
}

func TestLikeErrorsMapToStatus(t *testing.T) {
	s := newTestServer(t)
	s.createProfile("alice", "Alice")
	s.createProfile("bob", "Bob")

	tests := []struct {
		name   string
		body   any
		status int
		kind   string
	}{
		{name: "missing target", body: map[string]string{}, status: http.StatusBadRequest, kind: "validation_error"},
		{name: "self", body: map[string]string{"to_user": "alice"}, status: http.StatusBadRequest, kind: "self_interaction"},
		{name: "unknown", body: map[string]string{"to_user": "ghost"}, status: http.StatusNotFound, kind: "not_found"},
		{name: "first", body: map[string]string{"to_user": "bob"}, status: http.StatusCreated},
		{name: "duplicate", body: map[string]string{"to_user": "bob"}, status: http.StatusConflict, kind: "duplicate_like"},
	}
	for _, tt := range tests {
		var body errorBody
		code := s.do(http.MethodPost, "/api/likes", "alice", tt.body, &body)
		if code != tt.status || (tt.kind != "" && body.Error != tt.kind) {
			t.Fatalf("%s: expected %d %s, got %d %+v", tt.name, tt.status, tt.kind, code, body)
		}
	}
}

func TestBlockEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.createProfile("alice", "Alice")
	s.createProfile("bob", "Bob")

	var block models.Block
	if code := s.do(http.MethodPost, "/api/blocks", "alice", map[string]string{"blocked_user": "bob", "reason": "spam"}, &block); code != http.StatusCreated {
		t.Fatalf("create block: %d", code)
	}

	var status map[string]bool
	s.do(http.MethodGet, "/api/blocks/status?user=alice", "bob", nil, &status)
	if !status["blocked"] {
		t.Fatalf("expected blocked status, got %v", status)
	}

	var body errorBody
	if code := s.do(http.MethodPost, "/api/likes", "bob", map[string]string{"to_user": "alice"}, &body); code != http.StatusForbidden || body.Error != "blocked" {
		t.Fatalf("expected like forbidden, got %d %+v", code, body)
	}
	if code := s.do(http.MethodGet, "/api/profiles/alice", "bob", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected blocked profile hidden, got %d", code)
	}

	var page models.Page[models.BlockWithProfile]
	s.do(http.MethodGet, "/api/blocks", "alice", nil, &page)
	if page.Count != 1 || page.Results[0].BlockedProfile.UserID != "bob" {
		t.Fatalf("unexpected blocks page %+v", page)
	}

	if code := s.do(http.MethodDelete, "/api/blocks/"+block.ID, "bob", nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected blocked user unable to remove block, got %d", code)
	}
	if code := s.do(http.MethodDelete, "/api/blocks/"+block.ID, "alice", nil, nil); code != http.StatusNoContent {
		t.Fatalf("remove block: %d", code)
	}
}

func TestDiscoverEndpoint(t *testing.T) {
	s := newTestServer(t)
	for _, p := range []models.Profile{
		{UserID: "me", DisplayName: "Me", CreatedAt: time.Unix(1, 0)},
		{UserID: "a", DisplayName: "Ann", Location: "Rome", CreatedAt: time.Unix(2, 0)},
		{UserID: "b", DisplayName: "Ben", Location: "Oslo", CreatedAt: time.Unix(3, 0)},
	} {
		if err := s.store.PutProfile(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}

	var page models.Page[models.ProfileSummary]
	s.do(http.MethodGet, "/api/profiles/discover?page_size=1", "me", nil, &page)
	if page.Count != 2 || page.TotalPages != 2 || page.PageSize != 1 || page.Results[0].UserID != "b" {
		t.Fatalf("unexpected discover page %+v", page)
	}

	s.do(http.MethodGet, "/api/profiles/discover?search=rome", "me", nil, &page)
	if page.Count != 1 || page.Results[0].UserID != "a" {
		t.Fatalf("unexpected search page %+v", page)
	}

	if code := s.do(http.MethodGet, "/api/profiles/discover?page=9223372036854775807", "me", nil, &page); code != http.StatusOK || len(page.Results) != 0 || page.Count != 2 {
		t.Fatalf("expected empty page past the end, got %d %+v", code, page)
	}
}

func TestProfileMe(t *testing.T) {
	s := newTestServer(t)

	if code := s.do(http.MethodGet, "/api/profiles/me", "alice", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 before profile exists, got %d", code)
	}
	var body errorBody
	if code := s.do(http.MethodPatch, "/api/profiles/me", "alice", map[string]any{"age": 0, "display_name": "A"}, &body); code != http.StatusBadRequest || body.Error != "validation_error" {
		t.Fatalf("expected validation error, got %d %+v", code, body)
	}

	s.createProfile("alice", "Alice")
	var profile models.Profile
	if code := s.do(http.MethodGet, "/api/profiles/me", "alice", nil, &profile); code != http.StatusOK {
		t.Fatalf("get me: %d", code)
	}
	if profile.DisplayName != "Alice" || len(profile.Interests) != 2 {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/likes", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("expected origin echoed, got %q (status %d)", got, rec.Code)
	}
}
