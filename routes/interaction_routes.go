package routes

import (
	"log/slog"

	"github.com/gorilla/mux"

	"spark_server/controllers"
	"spark_server/services"
)

// RegisterInteractionRoutes sets up like routes under /api/likes
func RegisterInteractionRoutes(r *mux.Router, likeService *services.LikeService, logger *slog.Logger) {
	controller := controllers.NewInteractionController(likeService, logger)

	likeRouter := r.PathPrefix("/likes").Subrouter()
	likeRouter.HandleFunc("", controller.HandleSendLike).Methods("POST")
	likeRouter.HandleFunc("/received", controller.HandleReceived).Methods("GET")
	likeRouter.HandleFunc("/sent", controller.HandleSent).Methods("GET")
	likeRouter.HandleFunc("/{id}/accept", controller.HandleAccept).Methods("POST")
	likeRouter.HandleFunc("/{id}/reject", controller.HandleReject).Methods("POST")
}
