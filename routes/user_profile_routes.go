package routes

import (
	"log/slog"

	"github.com/gorilla/mux"

	"spark_server/controllers"
	"spark_server/services"
)

// RegisterUserProfileRoutes sets up routes for user profile operations under /api/profiles
func RegisterUserProfileRoutes(r *mux.Router, profiles *services.ProfileService, discovery *services.DiscoveryService, logger *slog.Logger) {
	controller := controllers.NewUserProfileController(profiles, discovery, logger)

	profileRouter := r.PathPrefix("/profiles").Subrouter()

	// Fixed paths first so they are not captured by {userId}.
	profileRouter.HandleFunc("/discover", controller.HandleDiscover).Methods("GET")
	profileRouter.HandleFunc("/me", controller.HandleGetMe).Methods("GET")
	profileRouter.HandleFunc("/me", controller.HandleUpdateMe).Methods("PUT", "PATCH")
	profileRouter.HandleFunc("/{userId}", controller.HandleGetProfile).Methods("GET")
}
