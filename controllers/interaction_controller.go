package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"spark_server/services"
)

// InteractionController serves the like endpoints.
type InteractionController struct {
	LikeService *services.LikeService
	Logger      *slog.Logger
}

// NewInteractionController initializes the controller
func NewInteractionController(service *services.LikeService, logger *slog.Logger) *InteractionController {
	return &InteractionController{LikeService: service, Logger: logger}
}

// HandleSendLike - caller likes to_user
func (c *InteractionController) HandleSendLike(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	var request struct {
		ToUser string `json:"to_user"`
	}
	if err := decodeJSON(r, &request); err != nil {
		badRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(request.ToUser) == "" {
		badRequest(w, "to_user is required")
		return
	}

	result, err := c.LikeService.SendLike(r.Context(), userID, strings.TrimSpace(request.ToUser))
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// HandleReceived - pending likes sent to the caller
func (c *InteractionController) HandleReceived(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	page, err := c.LikeService.ListReceived(r.Context(), userID, pageRequest(r))
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// HandleSent - likes the caller has sent, flagged when mutual
func (c *InteractionController) HandleSent(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	page, err := c.LikeService.ListSent(r.Context(), userID, pageRequest(r))
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// HandleAccept - recipient likes back
func (c *InteractionController) HandleAccept(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	result, err := c.LikeService.AcceptLike(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		Matched bool   `json:"matched"`
		MatchID string `json:"match_id,omitempty"`
	}{result.Matched, result.MatchID})
}

// HandleReject - recipient turns down a pending like
func (c *InteractionController) HandleReject(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	if err := c.LikeService.RejectLike(r.Context(), mux.Vars(r)["id"], userID); err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
