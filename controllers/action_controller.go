package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"spark_server/services"
)

// ActionController serves block management.
type ActionController struct {
	BlockService *services.BlockService
	Logger       *slog.Logger
}

func NewActionController(blockService *services.BlockService, logger *slog.Logger) *ActionController {
	return &ActionController{BlockService: blockService, Logger: logger}
}

// HandleCreateBlock blocks blocked_user on behalf of the caller.
func (c *ActionController) HandleCreateBlock(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	var request struct {
		BlockedUser string `json:"blocked_user"`
		Reason      string `json:"reason"`
	}
	if err := decodeJSON(r, &request); err != nil {
		badRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(request.BlockedUser) == "" {
		badRequest(w, "blocked_user is required")
		return
	}

	block, err := c.BlockService.CreateBlock(r.Context(), userID, strings.TrimSpace(request.BlockedUser), request.Reason)
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, block)
}

func (c *ActionController) HandleListBlocks(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	page, err := c.BlockService.ListBlocks(r.Context(), userID, pageRequest(r))
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// HandleBlockStatus reports whether a block separates the caller and ?user=.
func (c *ActionController) HandleBlockStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	other := strings.TrimSpace(r.URL.Query().Get("user"))
	if other == "" {
		badRequest(w, "user is required")
		return
	}
	blocked, err := c.BlockService.IsBlocked(r.Context(), userID, other)
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"blocked": blocked})
}

func (c *ActionController) HandleRemoveBlock(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	if err := c.BlockService.RemoveBlock(r.Context(), mux.Vars(r)["id"], userID); err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
