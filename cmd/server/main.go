package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/Priya8975/notification-dispatch/internal/api"
	"github.com/Priya8975/notification-dispatch/internal/channel"
	"github.com/Priya8975/notification-dispatch/internal/config"
	"github.com/Priya8975/notification-dispatch/internal/dispatch"
	"github.com/Priya8975/notification-dispatch/internal/engine"
	"github.com/Priya8975/notification-dispatch/internal/notify"
	"github.com/Priya8975/notification-dispatch/internal/preference"
	"github.com/Priya8975/notification-dispatch/internal/scheduler"
	"github.com/Priya8975/notification-dispatch/internal/store"
	"github.com/Priya8975/notification-dispatch/internal/websocket"
	"github.com/Priya8975/notification-dispatch/internal/worker"
)

// dataStore is everything the services persist.
type dataStore interface {
	dispatch.Store
	preference.Store
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	var db dataStore
	if cfg.DatabaseURL == config.MemoryDatabaseURL {
		db = store.NewMemory()
		logger.Warn("using in-memory store, data is lost on restart")
	} else {
		pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		logger.Info("connected to PostgreSQL")

		if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database migrations applied")
		db = pgStore
	}

	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	// Preferences
	defaults := preference.DefaultTable()
	if cfg.PreferenceDefaultsFile != "" {
		defaults, err = preference.LoadDefaults(cfg.PreferenceDefaultsFile)
		if err != nil {
			logger.Error("failed to load preference defaults", "path", cfg.PreferenceDefaultsFile, "error", err)
			os.Exit(1)
		}
	}
	prefStore := preference.NewCachedStore(db, 30*time.Second)
	prefService := preference.NewService(prefStore, defaults, logger)
	resolver := preference.NewResolver(prefStore, defaults, logger)

	// Channel adapters
	registry := buildAdapters(ctx, cfg, logger)

	// Realtime hub
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	// Dispatch core
	queue := engine.NewDeliveryQueue(redisStore.Client())
	svc := dispatch.NewService(db, resolver, registry, dispatch.Config{
		MaxConcurrency:     cfg.MaxConcurrency,
		SendTimeout:        cfg.SendTimeout,
		SendDelay:          cfg.SendDelay,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RetryWindow:        cfg.RetryWindow,
	}, logger,
		dispatch.WithRateLimiter(engine.NewRateLimiter(redisStore.Client(), logger)),
		dispatch.WithCircuitBreaker(engine.NewCircuitBreaker(redisStore.Client(), logger, 5, 30*time.Second)),
		dispatch.WithRealtime(hub),
		dispatch.WithScheduler(queue),
	)

	// Scheduled sends. Claimed items finish even after shutdown starts.
	pool := worker.NewPool(cfg.NumWorkers, svc.HandleScheduled, logger)
	pool.Start(context.WithoutCancel(ctx))
	dispatcher := worker.NewDispatcher(queue, pool, logger, time.Second)
	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Start(ctx)
		close(dispatcherDone)
	}()

	// Retry sweep and cleanup
	sched, err := scheduler.New(svc, cfg.RetrySweepInterval, logger)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	sched.Start()

	// Setup router
	router := api.NewRouter(api.Deps{
		Dispatch:    svc,
		Preferences: prefService,
		Hub:         hub,
		Queue:       queue,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port, "channels", registry.Channels())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	sched.Stop()
	cancel()
	<-dispatcherDone
	pool.Stop()
	svc.Wait()

	logger.Info("server stopped")
}

// buildAdapters registers every channel whose credentials are configured.
// Slack, Teams and generic webhooks need none.
func buildAdapters(ctx context.Context, cfg *config.Config, logger *slog.Logger) *channel.Registry {
	client := channel.NewHTTPClient(cfg.SendTimeout)
	registry := channel.NewRegistry(
		channel.NewSlackAdapter(client),
		channel.NewTeamsAdapter(client),
		channel.NewWebhookAdapter(client, cfg.AllowInsecureWebhooks),
	)

	if cfg.WebPushEnabled() {
		registry.Register(channel.NewWebPushAdapter(client, channel.VAPIDConfig{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
		}))
	} else {
		logger.Warn("web push disabled, VAPID keys not set")
	}

	if cfg.FirebaseCredentialsFile != "" {
		fcm, err := channel.NewFCMClient(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			logger.Error("fcm disabled", "error", err)
		} else {
			registry.Register(channel.NewFCMAdapter(fcm))
		}
	}

	if cfg.EmailEnabled() {
		registry.Register(channel.NewEmailAdapter(notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})))
	} else {
		logger.Warn("email disabled, SMTP not configured")
	}

	return registry
}
