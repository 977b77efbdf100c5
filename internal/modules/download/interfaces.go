package download

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"booksweeps/internal/domain"
	"booksweeps/internal/modules/accesstoken"
	"booksweeps/internal/pkg/filesecurity"
	"booksweeps/internal/pkg/ratelimit"
	"booksweeps/internal/pkg/signedurl"
	"booksweeps/internal/repository"
)

type MethodStore interface {
	GetDeliveryMethod(ctx context.Context, id uuid.UUID) (*domain.DeliveryMethod, error)
}

type DeliveryRecorder interface {
	RecordDownload(ctx context.Context, rec repository.DownloadRecord) (*domain.ReaderDelivery, error)
	TouchDownload(ctx context.Context, id uuid.UUID, at time.Time) error
}

type TokenManager interface {
	Generate(ctx context.Context, deliveryID uuid.UUID, expiry time.Duration) (string, time.Time, error)
	Validate(ctx context.Context, token string, deliveryID *uuid.UUID) (accesstoken.ValidationResult, error)
	UsageResetAt(d *domain.ReaderDelivery) time.Time
}

type RateLimiter interface {
	Check(ctx context.Context, identifier string, rule ratelimit.Rule) (ratelimit.Result, error)
}

type FileStore interface {
	CreateSignedURL(claims signedurl.Claims, ttl time.Duration) (string, time.Time, error)
	Verify(sig string) (*signedurl.Claims, error)
	Head(objectPath string, n int) ([]byte, error)
	Open(objectPath string) (*os.File, os.FileInfo, error)
}

type FileScanner interface {
	Validate(fileName, mimeType string, buf []byte, fctx *filesecurity.Context) filesecurity.Result
}
