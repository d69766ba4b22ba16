package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/therapyflow/agent-surface/internal/action"
	"github.com/therapyflow/agent-surface/internal/api/router"
	appconfig "github.com/therapyflow/agent-surface/internal/config"
	"github.com/therapyflow/agent-surface/internal/compliance"
	"github.com/therapyflow/agent-surface/internal/http/handlers"
	"github.com/therapyflow/agent-surface/internal/observability/metrics"
	"github.com/therapyflow/agent-surface/internal/realtime"
	"github.com/therapyflow/agent-surface/internal/reconcile"
	"github.com/therapyflow/agent-surface/internal/surface"
	"github.com/therapyflow/agent-surface/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting agent-surface gateway",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	// Persistence: pgx pool for surface snapshots, database/sql for the
	// audit trail.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	auditDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open audit db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = auditDB.Close() }()

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	registry := prometheus.NewRegistry()
	surfaceMetrics := metrics.NewSurfaceMetrics(registry)

	tracer := otel.Tracer("agent-surface")

	repo := surface.NewRepository(pool)
	cache := surface.NewCache(redisClient, cfg.SnapshotCacheTTL, tracer)
	source := surface.NewSource(repo, cache, logger)

	var broker realtime.Broker
	if cfg.UseMemoryBroker {
		logger.Warn("using in-memory broker; updates will not cross processes")
		broker = realtime.NewMemoryBroker(cfg.FeedQueueDepth)
	} else {
		broker = realtime.NewRedisBroker(redisClient, logger)
	}

	manager := reconcile.NewManager(source, broker, logger, surfaceMetrics)
	defer manager.CloseAll()

	audit := compliance.NewAuditService(auditDB, logger)
	agentClient := action.NewHTTPAgentClient(cfg.AgentEndpointURL, cfg.AgentEndpointTimeout, logger)
	dispatcher := action.NewDispatcher(
		agentClient,
		action.OwnerAuthorizer{},
		source,
		nil, // advisory limiter stays a no-op; the HTTP edge enforces rates
		audit,
		logger,
		surfaceMetrics,
	)

	surfaceHandler := handlers.NewSurfaceHandler(source, repo, dispatcher, logger)
	feedHandler := handlers.NewFeedHandler(manager, surfaceMetrics, cfg.FeedPingInterval, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		SurfaceHandler:     surfaceHandler,
		FeedHandler:        feedHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AuthJWTSecret:      cfg.AuthJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the websocket feed holds connections open.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
