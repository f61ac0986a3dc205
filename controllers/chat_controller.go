package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"spark_server/services"
)

// ChatController struct
type ChatController struct {
	MessageService *services.MessageService
	Logger         *slog.Logger
}

// NewChatController initializes the chat controller
func NewChatController(service *services.MessageService, logger *slog.Logger) *ChatController {
	return &ChatController{MessageService: service, Logger: logger}
}

// HandleGetMessages - conversation for ?match_id=, oldest first
func (c *ChatController) HandleGetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	matchID := strings.TrimSpace(r.URL.Query().Get("match_id"))
	if matchID == "" {
		badRequest(w, "match_id is required")
		return
	}

	page, err := c.MessageService.ListForMatch(r.Context(), matchID, userID, pageRequest(r))
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// HandleSendMessage - append a message to a match
func (c *ChatController) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	var request struct {
		Match   string `json:"match"`
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &request); err != nil {
		badRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(request.Match) == "" {
		badRequest(w, "match is required")
		return
	}

	msg, err := c.MessageService.SendMessage(r.Context(), strings.TrimSpace(request.Match), userID, request.Content)
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

// HandleMarkRead - mark the counterpart's messages in a match as read
func (c *ChatController) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	var request struct {
		Match string `json:"match"`
	}
	if err := decodeJSON(r, &request); err != nil {
		badRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(request.Match) == "" {
		badRequest(w, "match is required")
		return
	}

	updated, err := c.MessageService.MarkRead(r.Context(), strings.TrimSpace(request.Match), userID)
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"updated": updated})
}
