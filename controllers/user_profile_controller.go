package controllers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"spark_server/services"
)

// UserProfileController handles requests related to user profiles
type UserProfileController struct {
	ProfileService   *services.ProfileService
	DiscoveryService *services.DiscoveryService
	Logger           *slog.Logger
}

// NewUserProfileController creates a new instance of UserProfileController
func NewUserProfileController(profiles *services.ProfileService, discovery *services.DiscoveryService, logger *slog.Logger) *UserProfileController {
	return &UserProfileController{ProfileService: profiles, DiscoveryService: discovery, Logger: logger}
}

// HandleGetMe returns the caller's own profile.
func (c *UserProfileController) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	profile, err := c.ProfileService.Me(r.Context(), userID)
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// HandleUpdateMe creates or patches the caller's own profile.
func (c *UserProfileController) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	var input services.ProfileInput
	if err := decodeJSON(r, &input); err != nil {
		badRequest(w, err.Error())
		return
	}
	profile, err := c.ProfileService.UpsertMe(r.Context(), userID, input)
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// HandleGetProfile returns another user's public profile.
func (c *UserProfileController) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	viewer, ok := actingUser(w, r)
	if !ok {
		return
	}
	summary, err := c.ProfileService.Get(r.Context(), viewer, mux.Vars(r)["userId"])
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// HandleDiscover lists candidate profiles, optionally filtered by ?search=.
func (c *UserProfileController) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	page, err := c.DiscoveryService.Discover(r.Context(), userID, r.URL.Query().Get("search"), pageRequest(r))
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}
