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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/appointmentbot/internal/chat"
	"github.com/clinicdesk/appointmentbot/internal/config"
	"github.com/clinicdesk/appointmentbot/internal/dialog"
	"github.com/clinicdesk/appointmentbot/internal/identity"
	"github.com/clinicdesk/appointmentbot/internal/nlu"
	"github.com/clinicdesk/appointmentbot/internal/observability/metrics"
	"github.com/clinicdesk/appointmentbot/internal/registry"
	"github.com/clinicdesk/appointmentbot/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting appointment bot",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var (
		resolver     identity.Resolver
		sessionStore dialog.Store
	)
	if cfg.UseMemoryStores {
		logger.Warn("using in-memory stores; sessions and identities will not survive a restart")
		resolver = identity.NewMemoryStore()
		sessionStore = dialog.NewMemoryStore(cfg.SessionIdleTTL)
	} else {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			logger.Error("database unreachable", "error", err)
			os.Exit(1)
		}

		identityStore := identity.NewPostgresStore(db)
		if err := identityStore.Migrate(ctx); err != nil {
			logger.Error("identity schema migration failed", "error", err)
			os.Exit(1)
		}
		resolver = identityStore

		redisOpts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()

		pingCtx, cancel = context.WithTimeout(ctx, 10*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Error("redis unreachable", "error", err)
			os.Exit(1)
		}
		sessionStore = dialog.NewRedisStore(redisClient, cfg.SessionIdleTTL, nil)
	}

	classifier, err := nlu.NewGeminiClassifier(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID, logger)
	if err != nil {
		logger.Error("failed to initialize classifier", "error", err)
		os.Exit(1)
	}
	defer classifier.Close()

	gateway := registry.NewClient(cfg.RegistryBaseURL, cfg.RegistryTimeout, logger)

	promRegistry := prometheus.NewRegistry()
	dialogMetrics := metrics.NewDialogMetrics(promRegistry)

	engine := dialog.NewEngine(gateway, cfg.DateWindowDays, logger)
	manager := dialog.NewManager(sessionStore, resolver, classifier, engine, gateway, logger, dialogMetrics)
	chatHandler := chat.NewHandler(manager, cfg.ChatWebhookToken, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	r.Group(chatHandler.Routes)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
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
