package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"spark_server/config"
	"spark_server/routes"
	"spark_server/services"
	"spark_server/storage"
)

// App is the fully wired HTTP surface plus the resources it owns.
type App struct {
	Handler http.Handler
	Store   storage.Store
	closers []io.Closer
}

// Build connects the configured store, the optional profile cache and avatar
// signer, and wires services and routes on top.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{}

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	var cache services.ProfileCache
	if cfg.Cache.RedisAddr != "" {
		redisCache, err := services.NewRedisProfileCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.TTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, redisCache)
		cache = redisCache
		logger.Info("profile cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)
	}

	var avatars services.AvatarSigner
	if cfg.Avatars.Bucket != "" {
		signer, err := services.NewS3AvatarSigner(ctx, cfg.Store.AWSRegion, cfg.Avatars.Bucket, cfg.Avatars.URLTTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		avatars = signer
		logger.Info("avatar signing enabled", "bucket", cfg.Avatars.Bucket)
	}

	profiles := services.NewProfileService(store, cache, avatars, logger)
	matches := services.NewMatchService(store, profiles, logger)
	a.Handler = routes.NewRouter(routes.Dependencies{
		Store:          store,
		Profiles:       profiles,
		Discovery:      services.NewDiscoveryService(store, profiles, logger),
		Likes:          services.NewLikeService(store, profiles, logger),
		Matches:        matches,
		Blocks:         services.NewBlockService(store, profiles, logger),
		Messages:       services.NewMessageService(store, matches, profiles, logger),
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Logger:         logger,
	})
	return a, nil
}

// Close releases connections opened by Build.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverDynamoDB:
		logger.Info("initializing DynamoDB client", "region", cfg.AWSRegion, "table_prefix", cfg.TablePrefix)
		client, err := storage.InitializeDynamoDBClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		return storage.NewDynamoStore(client, cfg.TablePrefix, logger), nil
	case config.DriverPostgres:
		store, err := storage.OpenPostgres(cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		return storage.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
