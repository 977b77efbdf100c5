package accesstoken

import (
	"context"
	"time"

	"github.com/google/uuid"

	"booksweeps/internal/domain"
)

// DeliveryStore persists tokens on reader deliveries.
type DeliveryStore interface {
	SetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error
	FindByToken(ctx context.Context, token string, deliveryID *uuid.UUID) (*domain.ReaderDelivery, error)
	ClearToken(ctx context.Context, token string) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}
