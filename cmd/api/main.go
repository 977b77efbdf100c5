package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"booksweeps/internal/app"
	"booksweeps/internal/config"
	"booksweeps/internal/database"
	"booksweeps/internal/events"
	"booksweeps/internal/logging"
	"booksweeps/internal/pkg/ratelimit"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Production: cfg.IsProduction()})
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "database connect failed", err)
	}
	if err := database.Migrate(db); err != nil {
		fatal(logger, "database migrate failed", err)
	}

	limiterStore, closeStore := limiterStore(ctx, cfg, logger)
	defer closeStore()

	publisher, closePublisher := eventPublisher(cfg, logger)
	defer closePublisher()

	r := app.NewRouter(cfg, app.Infra{
		DB:           db,
		LimiterStore: limiterStore,
		Publisher:    publisher,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "http server failed", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// limiterStore uses Redis when REDIS_URL is set so limits hold across
// instances; otherwise counters live in process memory.
func limiterStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Store, func()) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, rate limits are per-process")
		store := ratelimit.NewMemoryStore()
		go store.RunSweeper(ctx, time.Minute)
		return store, func() {}
	}

	client, err := ratelimit.Connect(ctx, cfg.RedisURL)
	if err != nil {
		fatal(logger, "redis connect failed", err)
	}
	return ratelimit.NewRedisStore(client), func() { _ = client.Close() }
}

func eventPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NewLoggingPublisher(logger), func() {}
	}

	kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, map[string]string{
		events.EventReaderMagnetDelivered: cfg.KafkaDeliveryTopic,
	})
	if err != nil {
		fatal(logger, "kafka publisher init failed", err)
	}
	logger.Info("publishing delivery events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaDeliveryTopic)
	return kp, func() { _ = kp.Close() }
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
