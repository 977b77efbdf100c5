package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booksweeps/internal/domain"
	"booksweeps/internal/events"
	"booksweeps/internal/modules/accesstoken"
	"booksweeps/internal/pkg/apperror"
	"booksweeps/internal/pkg/filesecurity"
	"booksweeps/internal/pkg/ratelimit"
	"booksweeps/internal/pkg/signedurl"
	"booksweeps/internal/repository"
	"booksweeps/internal/storage"
)

const publishTimeout = 3 * time.Second

type Config struct {
	IPRule       ratelimit.Rule
	BookRule     ratelimit.Rule
	SignedURLTTL time.Duration
	TokenTTL     time.Duration
}

type Deps struct {
	Methods    MethodStore
	Deliveries DeliveryRecorder
	Tokens     TokenManager
	Limiter    RateLimiter
	Files      FileStore
	Scanner    FileScanner
	Publisher  events.Publisher
}

// DeliveryInput is a validated download request plus what the HTTP layer knows
// about the client.
type DeliveryInput struct {
	Request   DownloadRequest
	ClientIP  string
	UserAgent string
}

type DeliveryResult struct {
	Delivery      *domain.ReaderDelivery
	DownloadURL   string
	URLExpiresAt  time.Time
	AccessToken   *string
	IsRedownload  bool
	DownloadCount int
	Message       string
	// Quota is the rate-limit window closest to exhaustion, nil when no
	// limiter answered.
	Quota *ratelimit.Result
}

// StoredFile is an open book file ready to be streamed. The caller closes it.
type StoredFile struct {
	*os.File
	Size     int64
	FileName string
	MimeType string
}

// Service turns reader requests into signed downloads.
type Service struct {
	deps   Deps
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

func NewService(deps Deps, cfg Config, logger *slog.Logger) *Service {
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NewLoggingPublisher(logger)
	}
	return &Service{deps: deps, cfg: cfg, now: time.Now, logger: logger}
}

// WithClock replaces the time source used for rate-limit hints and records.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Deliver runs one download request: rate limits, delivery method lookup,
// the deduplicated delivery record, the access token and the signed URL.
func (s *Service) Deliver(ctx context.Context, in DeliveryInput) (*DeliveryResult, error) {
	req := in.Request

	ipQuota, err := s.checkLimit(ctx, "ip", ratelimit.Identifier("ip", in.ClientIP, "download"), s.cfg.IPRule)
	if err != nil {
		return nil, err
	}
	bookQuota, err := s.checkLimit(ctx, "book", ratelimit.Identifier("email", req.Email, "download", req.DeliveryMethodID), s.cfg.BookRule)
	if err != nil {
		return nil, err
	}

	methodID, err := uuid.Parse(req.DeliveryMethodID)
	if err != nil {
		return nil, apperror.Validation(map[string]string{"delivery_method_id": "uuid"})
	}
	method, err := s.loadMethod(ctx, methodID)
	if err != nil {
		return nil, err
	}

	delivery, err := s.deps.Deliveries.RecordDownload(ctx, repository.DownloadRecord{
		DeliveryMethodID: method.ID,
		ReaderEmail:      req.Email,
		ReaderName:       req.Name,
		IPAddress:        in.ClientIP,
		UserAgent:        in.UserAgent,
		At:               s.now(),
	})
	if errors.Is(err, repository.ErrDownloadLimitReached) {
		return nil, errDownloadLimit()
	}
	if err != nil {
		return nil, fmt.Errorf("record delivery: %w", err)
	}

	token := s.tokenFor(ctx, delivery)

	url, expiresAt, err := s.signFile(method.BookFile, delivery.ID, in.ClientIP, "download")
	if err != nil {
		return nil, err
	}

	res := &DeliveryResult{
		Delivery:      delivery,
		DownloadURL:   url,
		URLExpiresAt:  expiresAt,
		AccessToken:   token,
		IsRedownload:  delivery.IsRedownload(),
		DownloadCount: delivery.DownloadCount,
		Message:       "Your download is ready",
		Quota:         tighterQuota(ipQuota, bookQuota),
	}
	if res.IsRedownload {
		res.Message = "Welcome back! Here is a fresh download link"
	}

	s.publishDelivered(ctx, method, delivery)

	s.logger.Info("reader magnet delivered",
		"delivery_id", delivery.ID,
		"delivery_method_id", method.ID,
		"email", apperror.MaskEmail(req.Email),
		"download_count", delivery.DownloadCount,
		"is_redownload", res.IsRedownload,
	)
	return res, nil
}

// Access validates an access token and returns a fresh signed URL for the
// delivery, counting the use.
func (s *Service) Access(ctx context.Context, token, clientIP string) (string, error) {
	check, err := s.deps.Tokens.Validate(ctx, token, nil)
	if err != nil {
		return "", fmt.Errorf("validate access token: %w", err)
	}
	if !check.Valid {
		if check.Reason == accesstoken.ReasonRateLimited {
			retry := int(s.deps.Tokens.UsageResetAt(check.Delivery).Sub(s.now()).Seconds())
			return "", apperror.RateLimited("access token daily usage exceeded", retry)
		}
		return "", errAccessDenied(check.Reason)
	}

	delivery := check.Delivery
	method, err := s.loadMethod(ctx, delivery.DeliveryMethodID)
	if err != nil {
		return "", err
	}

	url, _, err := s.signFile(method.BookFile, delivery.ID, clientIP, "access_link")
	if err != nil {
		return "", err
	}

	if err := s.deps.Deliveries.TouchDownload(ctx, delivery.ID, s.now()); err != nil {
		return "", fmt.Errorf("record access link download: %w", err)
	}
	return url, nil
}

// OpenFile verifies a signed URL signature, scans the stored bytes and opens
// the file for streaming.
func (s *Service) OpenFile(_ context.Context, sig, clientIP string) (*StoredFile, error) {
	if sig == "" {
		return nil, errLinkInvalid(signedurl.ErrInvalidSignature)
	}
	claims, err := s.deps.Files.Verify(sig)
	if err != nil {
		return nil, errLinkInvalid(err)
	}

	head, err := s.deps.Files.Head(claims.ObjectPath, filesecurity.MaxScanBytes)
	if err != nil {
		return nil, s.fileError(err, claims.ObjectPath)
	}
	check := s.deps.Scanner.Validate(claims.FileName, claims.MimeType, head, &filesecurity.Context{
		Operation:  "stream",
		DeliveryID: claims.DeliveryID,
		ClientIP:   clientIP,
	})
	if !check.Valid {
		return nil, errFileRejected(check.Reason)
	}

	f, info, err := s.deps.Files.Open(claims.ObjectPath)
	if err != nil {
		return nil, s.fileError(err, claims.ObjectPath)
	}
	return &StoredFile{File: f, Size: info.Size(), FileName: claims.FileName, MimeType: claims.MimeType}, nil
}

func (s *Service) checkLimit(ctx context.Context, name, identifier string, rule ratelimit.Rule) (*ratelimit.Result, error) {
	if rule.Limit <= 0 {
		return nil, nil
	}
	res, err := s.deps.Limiter.Check(ctx, identifier, rule)
	if err != nil {
		// fail open
		s.logger.Error("rate limit check failed", "limit", name, "error", err)
		return nil, nil
	}
	if !res.Allowed {
		return nil, apperror.RateLimited(name+" rate limit exceeded", res.RetryAfter(s.now()))
	}
	return &res, nil
}

func tighterQuota(a, b *ratelimit.Result) *ratelimit.Result {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Remaining() < a.Remaining():
		return b
	default:
		return a
	}
}

func (s *Service) loadMethod(ctx context.Context, id uuid.UUID) (*domain.DeliveryMethod, error) {
	method, err := s.deps.Methods.GetDeliveryMethod(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errMethodUnavailable("not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load delivery method: %w", err)
	}
	if !method.Deliverable() {
		return nil, errMethodUnavailable("inactive or not an ebook")
	}
	if method.BookFile == nil {
		return nil, errMethodUnavailable("no book file")
	}
	return method, nil
}

// tokenFor reuses a live token or issues a new one. Token failures do not
// fail the delivery; the reader still gets the signed URL.
func (s *Service) tokenFor(ctx context.Context, d *domain.ReaderDelivery) *string {
	if d.HasActiveToken(s.now()) {
		return d.AccessToken
	}
	token, expiresAt, err := s.deps.Tokens.Generate(ctx, d.ID, s.cfg.TokenTTL)
	if err != nil {
		s.logger.Error("access token generation failed", "delivery_id", d.ID, "error", err)
		return nil
	}
	d.AccessToken = &token
	d.ExpiresAt = &expiresAt
	return &token
}

func (s *Service) signFile(file *domain.BookFile, deliveryID uuid.UUID, clientIP, operation string) (string, time.Time, error) {
	check := s.deps.Scanner.Validate(file.FileName, file.MimeType, nil, &filesecurity.Context{
		Operation:  operation,
		DeliveryID: deliveryID.String(),
		ClientIP:   clientIP,
	})
	if !check.Valid {
		return "", time.Time{}, errFileRejected(check.Reason)
	}

	url, expiresAt, err := s.deps.Files.CreateSignedURL(signedurl.Claims{
		ObjectPath: file.ObjectPath,
		FileName:   file.FileName,
		MimeType:   file.MimeType,
		DeliveryID: deliveryID.String(),
	}, s.cfg.SignedURLTTL)
	if err != nil {
		return "", time.Time{}, apperror.Wrap(apperror.KindExternalService, err, "create signed url")
	}
	return url, expiresAt, nil
}

func (s *Service) fileError(err error, objectPath string) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return apperror.Wrap(apperror.KindNotFound, err, "stored file missing: "+objectPath)
	}
	return apperror.Wrap(apperror.KindInternal, err, "open stored file")
}

func (s *Service) publishDelivered(ctx context.Context, method *domain.DeliveryMethod, d *domain.ReaderDelivery) {
	payload, key, err := events.EncodeDelivered(events.DeliveryData{
		DeliveryID:       d.ID,
		DeliveryMethodID: method.ID,
		BookID:           method.BookID,
		ReaderEmail:      d.ReaderEmail,
		ReaderName:       d.ReaderName,
		DownloadCount:    d.DownloadCount,
		IsRedownload:     d.IsRedownload(),
	}, s.now())
	if err != nil {
		s.logger.Error("failed to encode delivery event", "delivery_id", d.ID, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.deps.Publisher.Publish(pubCtx, events.EventReaderMagnetDelivered, payload, key); err != nil {
		s.logger.Warn("failed to publish delivery event", "delivery_id", d.ID, "error", err)
	}
}
