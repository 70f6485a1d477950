package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/martin-1103/gbika-sub001/internal/adapter/bridge"
	"github.com/martin-1103/gbika-sub001/internal/adapter/httpserver"
	"github.com/martin-1103/gbika-sub001/internal/adapter/metrics"
	"github.com/martin-1103/gbika-sub001/internal/adapter/postgres"
	"github.com/martin-1103/gbika-sub001/internal/adapter/redis"
	"github.com/martin-1103/gbika-sub001/internal/adapter/sanitize"
	"github.com/martin-1103/gbika-sub001/internal/adapter/token"
	"github.com/martin-1103/gbika-sub001/internal/adapter/websocket"
	"github.com/martin-1103/gbika-sub001/internal/app"
	"github.com/martin-1103/gbika-sub001/internal/domain"
	"github.com/martin-1103/gbika-sub001/internal/platform/config"
	"github.com/martin-1103/gbika-sub001/internal/platform/logging"
	"github.com/martin-1103/gbika-sub001/internal/platform/retry"
	"github.com/martin-1103/gbika-sub001/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout   = 10 * time.Second
	presenceHeartbeat = 15 * time.Second
)

type instrumentation struct {
	handler  http.Handler
	http     *metrics.HTTPMetrics
	ws       *metrics.WebSocketMetrics
	livechat *metrics.LivechatMetrics
	redis    *metrics.RedisMetrics
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupMetrics() instrumentation {
	reg := metrics.NewRegistry()
	return instrumentation{
		handler:  metrics.Handler(reg),
		http:     metrics.NewHTTPMetrics(reg),
		ws:       metrics.NewWebSocketMetrics(reg),
		livechat: metrics.NewLivechatMetrics(reg),
		redis:    metrics.NewRedisMetrics(reg),
	}
}

func logRetry(target string) func(int, error, time.Duration) {
	return func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Startup dependency not ready", "target", target, "attempt", attempt, "backoff", backoff, "error", err)
	}
}

func setupDB(ctx context.Context, cfg *config.Config) *pgxpool.Pool {
	policy := retry.StartupPolicy
	policy.OnRetry = logRetry("postgres")

	pool, err := retry.Do(ctx, policy, retry.AlwaysRetry, func(ctx context.Context) (*pgxpool.Pool, error) {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return postgres.Connect(connectCtx, cfg.DatabaseURL)
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

// setupBridge connects to Redis when REDIS_URL is set. Without it the relay
// runs as a single instance on the in-process bridge.
func setupBridge(ctx context.Context, cfg *config.Config, m instrumentation) (domain.FanoutBridge, *goredis.Client) {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL not set, fan-out limited to this instance")
		return bridge.NewLocal(0), nil
	}

	policy := retry.StartupPolicy
	policy.OnRetry = logRetry("redis")

	client, err := retry.Do(ctx, policy, retry.AlwaysRetry, func(ctx context.Context) (*goredis.Client, error) {
		return redis.NewClient(ctx, cfg.RedisURL, m.redis)
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	return redis.NewBridge(client, redis.NewBreaker(m.redis), cfg.PublishTimeout, m.livechat), client
}

func healthChecks(pool *pgxpool.Pool, redisClient *goredis.Client) []httpserver.HealthCheck {
	checks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
	}
	if redisClient != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return checks
}

func runGracefulShutdown(srv *httpserver.Server, relay *websocket.Relay, stopSubscribers context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// Hijacked sockets are not tracked by the HTTP server.
		relay.Shutdown()
		stopSubscribers()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	ctx := context.Background()
	m := setupMetrics()

	pool := setupDB(ctx, cfg)
	defer pool.Close()

	fanout, redisClient := setupBridge(ctx, cfg, m)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	tokens := token.NewManager(cfg.TokenSecret, clock)
	sessionRepo := postgres.NewSessionRepo(pool)
	messageRepo := postgres.NewMessageRepo(pool)

	sanitizer := sanitize.NewPolicy()
	authenticator := app.NewAuthenticator(tokens, sessionRepo, clock)
	moderation := app.NewModerationService(messageRepo, sessionRepo, sanitizer, clock, cfg.MaxMessageLength)
	sessions := app.NewSessionService(sessionRepo, tokens, sanitizer, clock, cfg.SessionTTL)

	instanceID := uuid.NewString()
	relay := websocket.NewRelay(websocket.Deps{
		Auth:        authenticator,
		Messages:    moderation,
		Registry:    websocket.NewRegistry(),
		Bridge:      fanout,
		Limits:      websocket.NewConnectionLimits(int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP),
		Clock:       clock,
		Metrics:     m.ws,
		Livechat:    m.livechat,
		InstanceID:  instanceID,
		CheckOrigin: websocket.NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()),
	})

	var background sync.WaitGroup
	subscriberCtx, stopSubscribers := context.WithCancel(ctx)
	background.Go(func() {
		if err := relay.Run(subscriberCtx); err != nil {
			slog.Error("Bridge subscribers stopped", "error", err)
		}
	})
	slog.Info("Relay started", "instance_id", instanceID)

	deps := httpserver.Deps{
		Sessions:       sessions,
		Moderation:     moderation,
		Auth:           authenticator,
		Relay:          relay,
		HTTPMetrics:    m.http,
		Livechat:       m.livechat,
		MetricsHandler: m.handler,
		HealthChecks:   healthChecks(pool, redisClient),
	}
	if redisClient != nil {
		presence := redis.NewPresence(redisClient, clock, instanceID, version.Get().Version, presenceHeartbeat, relay.ConnectionCount)
		background.Go(func() { presence.Run(subscriberCtx) })
		deps.Instances = presence
	}
	srv := httpserver.NewServer(cfg, deps)

	done := runGracefulShutdown(srv, relay, stopSubscribers)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	background.Wait()
	slog.Info("Shutdown complete")
}
