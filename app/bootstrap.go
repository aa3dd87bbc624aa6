package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"auth-api/internal/auth"
	"auth-api/internal/db"
	"auth-api/internal/observability"
)

const insecureSecretPlaceholder = "change-me"

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

// Runtime is the assembled application: the root handler, the address
// to bind, and a Close that releases every owned resource.
type Runtime struct {
	Addr    string
	Handler http.Handler
	Close   func() error
}

// Build reads configuration from the environment and wires the auth
// service together with its storage, hashing, token and revocation
// dependencies.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	bindAddress := envOrDefault("BIND_ADDRESS", "127.0.0.1:8080")
	appEnv := envOrDefault("APP_ENV", "development")

	jwtSecret := envOrDefault("JWT_SECRET", insecureSecretPlaceholder)
	if jwtSecret == insecureSecretPlaceholder {
		if appEnv == "production" {
			return nil, fmt.Errorf("JWT_SECRET must be set in production")
		}
		logger.Warn("insecure_jwt_secret", map[string]any{
			"detail": "JWT_SECRET not set, using development placeholder",
		})
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), appEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(context.Background(), database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	sessions, redisClient, err := buildSessionRegistry(logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	repo := auth.NewRepository(database)
	hasher := auth.NewArgon2Hasher()
	codec := auth.NewTokenCodec([]byte(jwtSecret), envMinutesOrDefault("TOKEN_TTL_MINUTES", 30))
	service := auth.NewService(repo, hasher, codec, sessions)
	authHandler := auth.NewHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", authHandler.Index)
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.HandleFunc("POST /auth/login", authHandler.Login)
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)
	mux.Handle("GET /me", auth.RequireAuth(service, http.HandlerFunc(authHandler.Me)))
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Addr:    bindAddress,
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			if redisClient != nil {
				_ = redisClient.Close()
			}
			return database.Close()
		},
	}, nil
}

// buildSessionRegistry picks the revocation backend. With REDIS_URL
// set, revocations are shared across instances and expire with the
// token; otherwise they live in process memory.
func buildSessionRegistry(logger *observability.Logger) (auth.SessionRegistry, *redis.Client, error) {
	redisURL := strings.TrimSpace(os.Getenv("REDIS_URL"))
	if redisURL == "" {
		return auth.NewMemoryRegistry(), nil, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("session_registry_redis", map[string]any{"addr": opts.Addr})

	return auth.NewRedisRegistry(client), client, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}
