package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverDynamoDB = "dynamodb"
	DriverPostgres = "postgres"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP    HTTPConfig
	Store   StoreConfig
	Cache   CacheConfig
	Avatars AvatarConfig
	Auth    AuthConfig
	Logging LoggingConfig
}

type HTTPConfig struct {
	Port            int
	AllowedOrigins  []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig selects and locates the persistence backend.
type StoreConfig struct {
	Driver      string
	AWSRegion   string
	TablePrefix string
	DatabaseURL string
}

// CacheConfig configures the Redis profile summary cache. An empty Addr
// disables caching.
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	TTL           time.Duration
}

// AvatarConfig configures presigned avatar URLs. An empty Bucket disables
// signing and avatars are returned as stored.
type AvatarConfig struct {
	Bucket string
	URLTTL time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type LoggingConfig struct {
	Level  string
	Format string // text|json
}

const (
	defaultPort            = 8080
	defaultRegion          = "ap-south-1"
	defaultRequestTimeout  = 10 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultCacheTTL        = 5 * time.Minute
	defaultAvatarURLTTL    = 15 * time.Minute
	defaultLoggingLevel    = "info"
	defaultLoggingFormat   = "text"
)

// Load reads configuration from the environment, after loading a .env file
// if one is present, applying defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Config{
		HTTP: HTTPConfig{
			AllowedOrigins: splitCSV(valueOrDefault("ALLOWED_ORIGINS", "*")),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(valueOrDefault("STORE_DRIVER", DriverMemory)),
			AWSRegion:   valueOrDefault("AWS_REGION", defaultRegion),
			TablePrefix: os.Getenv("DYNAMO_TABLE_PREFIX"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Cache: CacheConfig{
			RedisAddr:     os.Getenv("REDIS_ADDR"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
		},
		Avatars: AvatarConfig{
			Bucket: os.Getenv("S3_BUCKET_NAME"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Logging: LoggingConfig{
			Level:  valueOrDefault("LOG_LEVEL", defaultLoggingLevel),
			Format: valueOrDefault("LOG_FORMAT", defaultLoggingFormat),
		},
	}

	port, err := parsePort("PORT", defaultPort)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTP.Port = port

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"REQUEST_TIMEOUT", defaultRequestTimeout, &cfg.HTTP.RequestTimeout},
		{"SHUTDOWN_TIMEOUT", defaultShutdownTimeout, &cfg.HTTP.ShutdownTimeout},
		{"PROFILE_CACHE_TTL", defaultCacheTTL, &cfg.Cache.TTL},
		{"AVATAR_URL_TTL", defaultAvatarURLTTL, &cfg.Avatars.URLTTL},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.key, d.fallback); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverDynamoDB:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}
