package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"spark_server/middleware"
	"spark_server/models"
)

// Pinger is the dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthController reports whether the backing store is reachable.
type HealthController struct {
	Store  Pinger
	Logger *slog.Logger
}

func NewHealthController(store Pinger, logger *slog.Logger) *HealthController {
	return &HealthController{Store: store, Logger: logger}
}

// HandleHealth pings the store with a short deadline.
func (c *HealthController) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := c.Store.Ping(ctx); err != nil {
		c.Logger.ErrorContext(ctx, "health probe failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// WelcomeHandler provides a welcome message
func WelcomeHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the Spark API."})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrSelfInteraction):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrForbidden), errors.Is(err, models.ErrBlocked):
		return http.StatusForbidden
	case errors.Is(err, models.ErrDuplicateLike), errors.Is(err, models.ErrInvalidState), errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError logs unexpected failures and writes the error envelope. Internal
// errors never leak their detail to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)
	kind := models.ErrorKind(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		if status == http.StatusGatewayTimeout {
			kind, message = "timeout", "request timed out"
		} else {
			message = "internal server error"
		}
	}
	respondJSON(w, status, errorResponse{Error: kind, Message: message})
}

func badRequest(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: models.ErrorKind(models.ErrValidation), Message: message})
}

// decodeJSON reads a single JSON object into dst. Unknown fields are ignored.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

// actingUser returns the authenticated caller, writing 401 if there is none.
func actingUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "authentication required"})
		return "", false
	}
	return userID, true
}

// pageRequest reads page and page_size query parameters. Invalid values
// fall back to the defaults.
func pageRequest(r *http.Request) models.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	return models.PageRequest{Page: page, PageSize: size}.Normalize()
}
