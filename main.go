package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"todo-app/backend/internal/config"
	"todo-app/backend/internal/events"
	"todo-app/backend/internal/logger"
	"todo-app/backend/internal/middleware"
	"todo-app/backend/internal/monitoring"
	"todo-app/backend/internal/server"
	"todo-app/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.Setup(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := monitoring.NewMonitor()
	deps := server.Dependencies{
		Logger:    log,
		Tasks:     services.NewTaskManager(),
		Publisher: events.NopPublisher{},
		Monitor:   monitor,
	}

	if cfg.Redis.Enabled {
		client := events.NewRedisClient(cfg)
		defer client.Close()

		publisher := events.NewRedisPublisher(client, cfg.Events.Queue, nil)
		deps.Publisher = publisher
		monitor.RegisterHealthCheck("redis", publisher.Health)

		if cfg.Events.ConsumerEnabled {
			consumer := newConsumer(client, cfg, log)
			consumer.Start(ctx, cfg.Events.ConsumerConcurrency)
			defer consumer.Stop()
		}
		log.Info("task events enabled", "redis_addr", cfg.GetRedisAddr(), "queue", cfg.Events.Queue)
	}

	if cfg.RateLimit.Enabled {
		deps.RateLimiter = middleware.NewRateLimiter(cfg.RateLimit)
		go deps.RateLimiter.Run(ctx)
	}

	router, err := server.New(cfg, deps)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", srv.Addr, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("server shutdown completed")
	return nil
}

func newConsumer(client *redis.Client, cfg *config.Config, log *slog.Logger) *events.Consumer {
	consumer := events.NewConsumer(client, events.ConsumerConfig{
		Queue:          cfg.Events.Queue,
		DeadQueue:      cfg.Events.DeadQueue,
		MaxAttempts:    cfg.Events.MaxAttempts,
		PollTimeout:    cfg.Events.PollTimeout,
		HandlerTimeout: 10 * time.Second,
	}, log)

	activity := events.LogHandler(log)
	consumer.Handle(events.TaskCreated, activity)
	consumer.Handle(events.TaskUpdated, activity)
	consumer.Handle(events.TaskDeleted, activity)
	return consumer
}
