package accesstoken

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booksweeps/internal/domain"
)

// Validation failure reasons.
const (
	ReasonInvalid     = "invalid"
	ReasonNotFound    = "not_found"
	ReasonExpired     = "expired"
	ReasonRateLimited = "rate_limited"
)

const (
	// MinTokenLength rejects obviously malformed tokens before any lookup.
	MinTokenLength = 32
	tokenBytes     = 32

	DefaultTTL          = 24 * time.Hour
	DefaultMaxDailyUses = 10
	DefaultUsageWindow  = 24 * time.Hour
)

type Options struct {
	TTL          time.Duration
	MaxDailyUses int
	UsageWindow  time.Duration
}

type ValidationResult struct {
	Valid    bool
	Delivery *domain.ReaderDelivery
	Reason   string
}

// Service manages the access tokens readers use to return to a delivery.
type Service struct {
	store  DeliveryStore
	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

func NewService(store DeliveryStore, opts Options, logger *slog.Logger) *Service {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxDailyUses <= 0 {
		opts.MaxDailyUses = DefaultMaxDailyUses
	}
	if opts.UsageWindow <= 0 {
		opts.UsageWindow = DefaultUsageWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, opts: opts, now: time.Now, logger: logger}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Generate issues a new token for the delivery and persists it. A zero expiry
// uses the configured TTL.
func (s *Service) Generate(ctx context.Context, deliveryID uuid.UUID, expiry time.Duration) (string, time.Time, error) {
	if expiry <= 0 {
		expiry = s.opts.TTL
	}

	token, err := newToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate access token: %w", err)
	}
	expiresAt := s.now().Add(expiry)

	if err := s.store.SetToken(ctx, deliveryID, token, expiresAt); err != nil {
		s.logger.Error("failed to store access token", "delivery_id", deliveryID, "error", err)
		return "", time.Time{}, fmt.Errorf("store access token: %w", err)
	}
	return token, expiresAt, nil
}

// Validate checks token, optionally scoped to one delivery. Lookup failures
// other than a missing token are returned as errors.
func (s *Service) Validate(ctx context.Context, token string, deliveryID *uuid.UUID) (ValidationResult, error) {
	if len(token) < MinTokenLength {
		return ValidationResult{Reason: ReasonInvalid}, nil
	}

	d, err := s.store.FindByToken(ctx, token, deliveryID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ValidationResult{Reason: ReasonNotFound}, nil
	}
	if err != nil {
		return ValidationResult{}, err
	}

	now := s.now()
	if d.ExpiresAt == nil || now.After(*d.ExpiresAt) {
		return ValidationResult{Delivery: d, Reason: ReasonExpired}, nil
	}
	if d.Status != domain.DeliveryStatusDelivered {
		return ValidationResult{Delivery: d, Reason: ReasonInvalid}, nil
	}
	if !s.CheckUsage(d) {
		return ValidationResult{Delivery: d, Reason: ReasonRateLimited}, nil
	}

	return ValidationResult{Valid: true, Delivery: d}, nil
}

// CheckUsage reports whether the delivery may be downloaded again. Usage is
// counted in a window that starts over once UsageWindow has passed since the
// last download; the reset is implicit and nothing is written.
func (s *Service) CheckUsage(d *domain.ReaderDelivery) bool {
	if d.LastDownloadAt == nil || s.now().Sub(*d.LastDownloadAt) > s.opts.UsageWindow {
		return true
	}
	return d.DownloadCount < s.opts.MaxDailyUses
}

// UsageResetAt is when a rate-limited delivery may be used again.
func (s *Service) UsageResetAt(d *domain.ReaderDelivery) time.Time {
	if d.LastDownloadAt == nil {
		return s.now()
	}
	return d.LastDownloadAt.Add(s.opts.UsageWindow)
}

// Revoke clears the token. It reports whether any delivery carried it.
func (s *Service) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	revoked, err := s.store.ClearToken(ctx, token)
	if err != nil {
		return false, err
	}
	if revoked {
		s.logger.Info("access token revoked")
	}
	return revoked, nil
}

// CleanupExpired marks deliveries with expired tokens as expired.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireOverdue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.Info("expired access tokens cleaned up", "count", n)
	return n, nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
