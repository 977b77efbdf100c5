// Package app assembles the HTTP router from configuration and
// infrastructure handles.
package app

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"booksweeps/internal/config"
	"booksweeps/internal/events"
	"booksweeps/internal/middleware"
	"booksweeps/internal/modules/accesstoken"
	"booksweeps/internal/modules/bookfile"
	"booksweeps/internal/modules/download"
	"booksweeps/internal/pkg/filesecurity"
	"booksweeps/internal/pkg/ratelimit"
	"booksweeps/internal/pkg/requestguard"
	"booksweeps/internal/pkg/response"
	"booksweeps/internal/pkg/signedurl"
	"booksweeps/internal/repository"
	"booksweeps/internal/storage"
)

const rateLimitPrefix = "booksweeps:ratelimit:"

type Infra struct {
	DB           *gorm.DB
	LimiterStore ratelimit.Store
	Publisher    events.Publisher
	Logger       *slog.Logger
}

func NewRouter(cfg *config.Config, infra Infra) *gin.Engine {
	logger := infra.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bookRepo := repository.NewBookRepository(infra.DB)
	deliveryRepo := repository.NewReaderDeliveryRepository(infra.DB)

	bucket := storage.NewBucket(cfg.StorageBucket, cfg.StorageDir, cfg.PublicBaseURL,
		signedurl.New(cfg.SignedURLSecret, cfg.StorageBucket))
	scanner := filesecurity.New(logger)

	tokenService := accesstoken.NewService(deliveryRepo, accesstoken.Options{
		TTL:          cfg.AccessTokenTTL,
		MaxDailyUses: cfg.TokenMaxDailyUses,
		UsageWindow:  cfg.TokenUsageWindow,
	}, logger)

	downloadService := download.NewService(download.Deps{
		Methods:    bookRepo,
		Deliveries: deliveryRepo,
		Tokens:     tokenService,
		Limiter:    ratelimit.New(infra.LimiterStore, rateLimitPrefix),
		Files:      bucket,
		Scanner:    scanner,
		Publisher:  infra.Publisher,
	}, download.Config{
		IPRule:       ratelimit.Rule{Limit: cfg.DownloadIPLimit, Window: cfg.DownloadIPWindow},
		BookRule:     ratelimit.Rule{Limit: cfg.DownloadBookLimit, Window: cfg.DownloadBookWindow},
		SignedURLTTL: cfg.SignedURLTTL,
		TokenTTL:     cfg.AccessTokenTTL,
	}, logger)

	bookFileService := bookfile.NewService(bookRepo, bucket, scanner, cfg.MaxUploadBytes, logger)

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.ErrorLogger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.GET("/healthz", healthz(infra.DB))

	api := r.Group("/api/reader-magnets")
	download.NewHandler(downloadService, requestguard.NewOriginPolicy(cfg.AllowedOrigins)).
		RegisterRoutes(api, middleware.Throttle(cfg.FileStreamRPS))

	internal := r.Group("/internal")
	internal.Use(middleware.InternalTokenAuth(cfg.InternalAPIToken, cfg.InternalAllowedIPs))
	{
		accesstoken.NewHandler(tokenService).RegisterRoutes(internal)
		bookfile.NewHandler(bookFileService).RegisterRoutes(internal)
	}

	return r
}

func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			response.Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}
