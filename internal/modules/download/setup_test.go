package download

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"booksweeps/internal/database"
	"booksweeps/internal/domain"
	"booksweeps/internal/events"
	"booksweeps/internal/logging"
	"booksweeps/internal/modules/accesstoken"
	"booksweeps/internal/pkg/filesecurity"
	"booksweeps/internal/pkg/ratelimit"
	"booksweeps/internal/pkg/requestguard"
	"booksweeps/internal/pkg/signedurl"
	"booksweeps/internal/repository"
	"booksweeps/internal/storage"
)

const (
	browserUA     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15"
	allowedOrigin = "https://booksweeps.com"
	samplePDF     = "%PDF-1.7\n1 0 obj << /Type /Catalog >> endobj\ntrailer << /Root 1 0 R >>\n%%EOF"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	args := m.Called(ctx, eventType, payload, partitionKey)
	return args.Error(0)
}

type testEnv struct {
	db         *gorm.DB
	books      *repository.BookRepository
	deliveries *repository.ReaderDeliveryRepository
	tokens     *accesstoken.Service
	bucket     *storage.Bucket
	publisher  *mockPublisher
	service    *Service
	router     *gin.Engine
	method     *domain.DeliveryMethod
}

type envOption func(*Config, *Deps)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenMemory("download_" + t.Name())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	env := &testEnv{
		db:         db,
		books:      repository.NewBookRepository(db),
		deliveries: repository.NewReaderDeliveryRepository(db),
		bucket:     storage.NewBucket("book-files", t.TempDir(), "http://files.test", signedurl.New("download-test-secret", "book-files")),
		publisher:  &mockPublisher{},
	}
	env.tokens = accesstoken.NewService(env.deliveries, accesstoken.Options{}, logging.Discard())
	env.publisher.On("Publish", mock.Anything, events.EventReaderMagnetDelivered, mock.Anything, mock.Anything).Return(nil).Maybe()
	env.method = env.seedMethod(t, "keeper.pdf", filesecurity.MimePDF, samplePDF, domain.DeliveryKindEbook, true, nil)

	cfg := Config{
		IPRule:       ratelimit.Rule{Limit: 100, Window: 15 * time.Minute},
		BookRule:     ratelimit.Rule{Limit: 100, Window: time.Hour},
		SignedURLTTL: time.Hour,
	}
	deps := Deps{
		Methods:    env.books,
		Deliveries: env.deliveries,
		Tokens:     env.tokens,
		Limiter:    ratelimit.New(ratelimit.NewMemoryStore(), "test:"),
		Files:      env.bucket,
		Scanner:    filesecurity.New(logging.Discard()),
		Publisher:  env.publisher,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	env.service = NewService(deps, cfg, logging.Discard())

	env.router = gin.New()
	NewHandler(env.service, requestguard.NewOriginPolicy([]string{allowedOrigin})).
		RegisterRoutes(env.router.Group("/api/reader-magnets"))
	return env
}

func (e *testEnv) seedMethod(t *testing.T, fileName, mimeType, content, kind string, active bool, limit *int) *domain.DeliveryMethod {
	t.Helper()
	ctx := context.Background()

	book := &domain.Book{Title: "The Lighthouse Keeper", AuthorName: "A. Writer"}
	require.NoError(t, e.books.CreateBook(ctx, book))

	obj := storage.ObjectPathFor(book.ID, fileName)
	n, err := e.bucket.Put(ctx, obj, strings.NewReader(content))
	require.NoError(t, err)

	file := &domain.BookFile{BookID: book.ID, ObjectPath: obj, FileName: fileName, MimeType: mimeType, Size: n}
	require.NoError(t, e.books.CreateFile(ctx, file))

	method := &domain.DeliveryMethod{BookID: book.ID, BookFileID: file.ID, Kind: kind, IsActive: active, DownloadLimit: limit}
	require.NoError(t, e.books.CreateDeliveryMethod(ctx, method))
	return method
}

func (e *testEnv) countDeliveries(t *testing.T, methodID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&domain.ReaderDelivery{}).Where("delivery_method_id = ?", methodID).Count(&n).Error)
	return n
}

type requestOpts struct {
	userAgent string
	origin    string
	referer   string
	ip        string
}

func (e *testEnv) do(method, path string, body any, o requestOpts) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if o.userAgent == "" {
		o.userAgent = browserUA
	}
	if o.userAgent != "-" {
		req.Header.Set("User-Agent", o.userAgent)
	}
	if o.origin != "" {
		req.Header.Set("Origin", o.origin)
	}
	if o.referer != "" {
		req.Header.Set("Referer", o.referer)
	}
	if o.ip == "" {
		o.ip = "198.51.100.10"
	}
	req.Header.Set("X-Forwarded-For", o.ip+", 10.0.0.1")

	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) download(email string, o requestOpts) *httptest.ResponseRecorder {
	return e.downloadMethod(e.method.ID.String(), email, o)
}

func (e *testEnv) downloadMethod(methodID, email string, o requestOpts) *httptest.ResponseRecorder {
	return e.do(http.MethodPost, "/api/reader-magnets/downloads", map[string]any{
		"delivery_method_id": methodID,
		"email":              email,
		"name":               "Jane",
	}, o)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rr)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, rr.Body.String())
	return errBody["code"].(string)
}
