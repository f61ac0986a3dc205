package controllers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"spark_server/services"
)

// MatchController handles HTTP requests for match-related actions
type MatchController struct {
	MatchService *services.MatchService
	Logger       *slog.Logger
}

// NewMatchController creates a new MatchController instance
func NewMatchController(matchService *services.MatchService, logger *slog.Logger) *MatchController {
	return &MatchController{MatchService: matchService, Logger: logger}
}

// HandleGetMatches lists the caller's matches with both profiles attached.
func (c *MatchController) HandleGetMatches(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	page, err := c.MatchService.ListForUser(r.Context(), userID, pageRequest(r))
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// HandleUnmatch dissolves a match and its conversation.
func (c *MatchController) HandleUnmatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	if err := c.MatchService.Unmatch(r.Context(), mux.Vars(r)["id"], userID); err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
