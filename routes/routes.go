package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"spark_server/controllers"
	"spark_server/middleware"
	"spark_server/services"
	"spark_server/storage"
)

// Dependencies collects everything the HTTP surface is built from.
type Dependencies struct {
	Store          storage.Store
	Profiles       *services.ProfileService
	Discovery      *services.DiscoveryService
	Likes          *services.LikeService
	Matches        *services.MatchService
	Blocks         *services.BlockService
	Messages       *services.MessageService
	JWTSecret      []byte
	AllowedOrigins []string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter wires every route. Everything under /api requires a bearer token.
func NewRouter(deps Dependencies) http.Handler {
	r := mux.NewRouter()

	health := controllers.NewHealthController(deps.Store, deps.Logger)
	r.HandleFunc("/", controllers.WelcomeHandler).Methods("GET")
	r.HandleFunc("/health", health.HandleHealth).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(deps.JWTSecret, deps.Logger))

	RegisterUserProfileRoutes(api, deps.Profiles, deps.Discovery, deps.Logger)
	RegisterInteractionRoutes(api, deps.Likes, deps.Logger)
	RegisterMatchRoutes(api, deps.Matches, deps.Logger)
	RegisterActionRoutes(api, deps.Blocks, deps.Logger)
	RegisterChatRoutes(api, deps.Messages, deps.Logger)

	allowCredentials := true
	for _, origin := range deps.AllowedOrigins {
		if origin == "*" {
			allowCredentials = false
		}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: allowCredentials,
	})

	var handler http.Handler = r
	handler = middleware.Timeout(deps.RequestTimeout)(handler)
	handler = corsHandler.Handler(handler)
	return middleware.Logging(deps.Logger)(handler)
}
