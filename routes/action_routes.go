package routes

import (
	"log/slog"

	"github.com/gorilla/mux"

	"spark_server/controllers"
	"spark_server/services"
)

// RegisterActionRoutes sets up block routes under /api/blocks
func RegisterActionRoutes(r *mux.Router, blockService *services.BlockService, logger *slog.Logger) {
	controller := controllers.NewActionController(blockService, logger)

	blockRouter := r.PathPrefix("/blocks").Subrouter()
	blockRouter.HandleFunc("", controller.HandleCreateBlock).Methods("POST")
	blockRouter.HandleFunc("", controller.HandleListBlocks).Methods("GET")
	blockRouter.HandleFunc("/status", controller.HandleBlockStatus).Methods("GET")
	blockRouter.HandleFunc("/{id}", controller.HandleRemoveBlock).Methods("DELETE")
}
