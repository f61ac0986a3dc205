package routes

import (
	"log/slog"

	"github.com/gorilla/mux"

	"spark_server/controllers"
	"spark_server/services"
)

// RegisterChatRoutes sets up message routes under /api/messages
func RegisterChatRoutes(r *mux.Router, messageService *services.MessageService, logger *slog.Logger) {
	controller := controllers.NewChatController(messageService, logger)

	chatRouter := r.PathPrefix("/messages").Subrouter()
	chatRouter.HandleFunc("", controller.HandleGetMessages).Methods("GET")
	chatRouter.HandleFunc("", controller.HandleSendMessage).Methods("POST")
	chatRouter.HandleFunc("/read", controller.HandleMarkRead).Methods("POST")
}
