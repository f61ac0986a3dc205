package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"spark_server/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", models.ErrValidation), http.StatusBadRequest},
		{models.ErrSelfInteraction, http.StatusBadRequest},
		{fmt.Errorf("%w: like x", models.ErrNotFound), http.StatusNotFound},
		{models.ErrForbidden, http.StatusForbidden},
		{models.ErrBlocked, http.StatusForbidden},
		{models.ErrDuplicateLike, http.StatusConflict},
		{models.ErrInvalidState, http.StatusConflict},
		{models.ErrConflict, http.StatusConflict},
		{fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/matches", nil)

	rec := httptest.NewRecorder()
	writeError(rec, req, discardLogger(), errors.New("dial tcp 10.0.0.1: refused"))
	var body errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusInternalServerError || body.Error != "internal_error" || body.Message != "internal server error" {
		t.Fatalf("unexpected internal error response %d %+v", rec.Code, body)
	}

	rec = httptest.NewRecorder()
	writeError(rec, req, discardLogger(), fmt.Errorf("%w: match m1", models.ErrNotFound))
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusNotFound || body.Error != "not_found" || body.Message != "not found: match m1" {
		t.Fatalf("unexpected not found response %d %+v", rec.Code, body)
	}
}

func TestPageRequest(t *testing.T) {
	tests := []struct {
		query    string
		page     int
		pageSize int
	}{
		{"", 1, models.DefaultPageSize},
		{"?page=3&page_size=5", 3, 5},
		{"?page=-1&page_size=1000", 1, models.MaxPageSize},
		{"?page=x&page_size=y", 1, models.DefaultPageSize},
	}
	for _, tt := range tests {
		got := pageRequest(httptest.NewRequest(http.MethodGet, "/api/likes/sent"+tt.query, nil))
		if got.Page != tt.page || got.PageSize != tt.pageSize {
			t.Errorf("%q: got %+v", tt.query, got)
		}
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHandleHealthDegraded(t *testing.T) {
	c := NewHealthController(pingFunc(func(ctx context.Context) error { return errors.New("table missing") }), discardLogger())
	rec := httptest.NewRecorder()
	c.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}
}

func TestActingUserRequired(t *testing.T) {
	rec := httptest.NewRecorder()
	if _, ok := actingUser(rec, httptest.NewRequest(http.MethodGet, "/api/matches", nil)); ok {
		t.Fatalf("expected no acting user")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
