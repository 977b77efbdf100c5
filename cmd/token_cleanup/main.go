package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"booksweeps/internal/config"
	"booksweeps/internal/database"
	"booksweeps/internal/logging"
	"booksweeps/internal/modules/accesstoken"
	"booksweeps/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Production: cfg.IsProduction()})

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	tokens := accesstoken.NewService(repository.NewReaderDeliveryRepository(db), accesstoken.Options{
		TTL:          cfg.AccessTokenTTL,
		MaxDailyUses: cfg.TokenMaxDailyUses,
		UsageWindow:  cfg.TokenUsageWindow,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := tokens.CleanupExpired(ctx)
	if err != nil {
		log.Fatalf("token cleanup failed: %v", err)
	}
	logger.Info("token cleanup completed", "expired_deliveries", n)
}
