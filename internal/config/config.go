package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPAddr           = ":8080"
	defaultDatabaseURL        = "booksweeps.db"
	defaultPublicBaseURL      = "http://localhost:8080"
	defaultStorageDir         = "./storage"
	defaultStorageBucket      = "book-files"
	defaultSignedURLSecret    = "change-me-signed-url-secret"
	defaultSignedURLTTL       = "1h"
	defaultAccessTokenTTL     = "24h"
	defaultTokenMaxDailyUses  = "10"
	defaultTokenUsageWindow   = "24h"
	defaultDownloadIPLimit    = "10"
	defaultDownloadIPWindow   = "15m"
	defaultDownloadBookLimit  = "5"
	defaultDownloadBookWindow = "1h"
	defaultFileStreamRPS      = "2"
	defaultMaxUploadBytes     = "104857600"
	defaultKafkaDeliveryTopic = "reader-magnet-deliveries"
	defaultAllowedOrigins     = "http://localhost:3000,http://127.0.0.1:3000"
	defaultLogLevel           = "info"
)

type Config struct {
	AppEnv   string
	HTTPAddr string
	LogLevel string

	DatabaseURL string
	RedisURL    string

	KafkaBrokers       []string
	KafkaDeliveryTopic string

	AllowedOrigins []string
	PublicBaseURL  string

	StorageDir      string
	StorageBucket   string
	SignedURLSecret string
	SignedURLTTL    time.Duration

	AccessTokenTTL    time.Duration
	TokenMaxDailyUses int
	TokenUsageWindow  time.Duration

	DownloadIPLimit    int
	DownloadIPWindow   time.Duration
	DownloadBookLimit  int
	DownloadBookWindow time.Duration
	FileStreamRPS      float64
	MaxUploadBytes     int64

	InternalAPIToken   string
	InternalAllowedIPs []string
}

// Load reads the service configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", defaultLogLevel)))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.KafkaDeliveryTopic = strings.TrimSpace(getEnv("KAFKA_DELIVERY_TOPIC", defaultKafkaDeliveryTopic))
	cfg.AllowedOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", defaultAllowedOrigins))
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(getEnv("PUBLIC_BASE_URL", defaultPublicBaseURL)), "/")
	cfg.StorageDir = strings.TrimSpace(getEnv("STORAGE_DIR", defaultStorageDir))
	cfg.StorageBucket = strings.TrimSpace(getEnv("STORAGE_BUCKET", defaultStorageBucket))
	cfg.SignedURLSecret = strings.TrimSpace(getEnv("SIGNED_URL_SECRET", defaultSignedURLSecret))
	cfg.InternalAPIToken = strings.TrimSpace(os.Getenv("INTERNAL_API_TOKEN"))
	cfg.InternalAllowedIPs = splitList(os.Getenv("INTERNAL_ALLOWED_IPS"))

	var err error
	if cfg.SignedURLTTL, err = parseDurationEnv("SIGNED_URL_TTL", defaultSignedURLTTL); err != nil {
		return nil, err
	}
	if cfg.AccessTokenTTL, err = parseDurationEnv("ACCESS_TOKEN_TTL", defaultAccessTokenTTL); err != nil {
		return nil, err
	}
	if cfg.TokenUsageWindow, err = parseDurationEnv("TOKEN_USAGE_WINDOW", defaultTokenUsageWindow); err != nil {
		return nil, err
	}
	if cfg.DownloadIPWindow, err = parseDurationEnv("DOWNLOAD_IP_WINDOW", defaultDownloadIPWindow); err != nil {
		return nil, err
	}
	if cfg.DownloadBookWindow, err = parseDurationEnv("DOWNLOAD_BOOK_WINDOW", defaultDownloadBookWindow); err != nil {
		return nil, err
	}
	if cfg.TokenMaxDailyUses, err = parseIntEnv("TOKEN_MAX_DAILY_USES", defaultTokenMaxDailyUses); err != nil {
		return nil, err
	}
	if cfg.DownloadIPLimit, err = parseIntEnv("DOWNLOAD_IP_LIMIT", defaultDownloadIPLimit); err != nil {
		return nil, err
	}
	if cfg.DownloadBookLimit, err = parseIntEnv("DOWNLOAD_BOOK_LIMIT", defaultDownloadBookLimit); err != nil {
		return nil, err
	}
	maxUpload, err := parseIntEnv("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)
	rps := strings.TrimSpace(getEnv("FILE_STREAM_RPS", defaultFileStreamRPS))
	if cfg.FileStreamRPS, err = strconv.ParseFloat(rps, 64); err != nil {
		return nil, fmt.Errorf("invalid FILE_STREAM_RPS value %q: %w", rps, err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production safeguards.
func (c *Config) IsProduction() bool {
	return isProdLike(c.AppEnv)
}

func validateConfig(cfg *Config) error {
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.StorageBucket == "" {
		return fmt.Errorf("STORAGE_BUCKET must not be empty")
	}
	if cfg.SignedURLTTL <= 0 {
		return fmt.Errorf("SIGNED_URL_TTL must be > 0")
	}
	if cfg.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be > 0")
	}
	if cfg.TokenUsageWindow <= 0 {
		return fmt.Errorf("TOKEN_USAGE_WINDOW must be > 0")
	}
	if cfg.TokenMaxDailyUses <= 0 {
		return fmt.Errorf("TOKEN_MAX_DAILY_USES must be > 0")
	}
	if cfg.DownloadIPLimit <= 0 || cfg.DownloadIPWindow <= 0 {
		return fmt.Errorf("DOWNLOAD_IP_LIMIT and DOWNLOAD_IP_WINDOW must be > 0")
	}
	if cfg.DownloadBookLimit <= 0 || cfg.DownloadBookWindow <= 0 {
		return fmt.Errorf("DOWNLOAD_BOOK_LIMIT and DOWNLOAD_BOOK_WINDOW must be > 0")
	}
	if cfg.FileStreamRPS <= 0 {
		return fmt.Errorf("FILE_STREAM_RPS must be > 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.SignedURLSecret, defaultSignedURLSecret) {
			return fmt.Errorf("in prod/release SIGNED_URL_SECRET must be set and not default")
		}
		if cfg.InternalAPIToken == "" {
			return fmt.Errorf("in prod/release INTERNAL_API_TOKEN must be set")
		}
		if cfg.RedisURL == "" {
			return fmt.Errorf("in prod/release REDIS_URL must be set")
		}
		if !strings.HasPrefix(cfg.PublicBaseURL, "https://") {
			return fmt.Errorf("in prod/release PUBLIC_BASE_URL must use https")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
