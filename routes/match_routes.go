package routes

import (
	"log/slog"

	"github.com/gorilla/mux"

	"spark_server/controllers"
	"spark_server/services"
)

func RegisterMatchRoutes(r *mux.Router, matchService *services.MatchService, logger *slog.Logger) {
	controller := controllers.NewMatchController(matchService, logger)

	matchRouter := r.PathPrefix("/matches").Subrouter()
	matchRouter.HandleFunc("", controller.HandleGetMatches).Methods("GET")
	matchRouter.HandleFunc("/{id}", controller.HandleUnmatch).Methods("DELETE")
}
