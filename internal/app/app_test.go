package app

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booksweeps/internal/config"
	"booksweeps/internal/database"
	"booksweeps/internal/events"
	"booksweeps/internal/logging"
	"booksweeps/internal/pkg/ratelimit"
)

const (
	internalToken = "e2e-internal-token"
	publicBase    = "http://files.test"
	siteOrigin    = "https://booksweeps.com"
	browserUA     = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	samplePDF     = "%PDF-1.7\n1 0 obj << /Type /Catalog >> endobj\ntrailer << /Root 1 0 R >>\n%%EOF"
)

type e2eSuite struct {
	router *gin.Engine
	redis  *miniredis.Miniredis
}

func setupSuite(t *testing.T) *e2eSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenMemory("app_" + t.Name())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		AppEnv:             "test",
		AllowedOrigins:     []string{siteOrigin},
		PublicBaseURL:      publicBase,
		StorageDir:         t.TempDir(),
		StorageBucket:      "book-files",
		SignedURLSecret:    "e2e-signed-url-secret",
		SignedURLTTL:       time.Hour,
		AccessTokenTTL:     24 * time.Hour,
		TokenMaxDailyUses:  10,
		TokenUsageWindow:   24 * time.Hour,
		DownloadIPLimit:    10,
		DownloadIPWindow:   15 * time.Minute,
		DownloadBookLimit:  5,
		DownloadBookWindow: time.Hour,
		FileStreamRPS:      50,
		MaxUploadBytes:     1 << 20,
		InternalAPIToken:   internalToken,
	}

	logger := logging.Discard()
	router := NewRouter(cfg, Infra{
		DB:           db,
		LimiterStore: ratelimit.NewRedisStore(client),
		Publisher:    events.NewLoggingPublisher(logger),
		Logger:       logger,
	})
	return &e2eSuite{router: router, redis: mr}
}

func (s *e2eSuite) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *e2eSuite) internalJSON(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+internalToken)
	return s.serve(req)
}

func (s *e2eSuite) uploadPDF(t *testing.T, bookID string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("book_id", bookID))
	require.NoError(t, mw.WriteField("delivery_method", "ebook"))
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="lighthouse.pdf"`)
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(samplePDF))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/internal/book-files", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+internalToken)
	return s.serve(req)
}

func (s *e2eSuite) download(methodID, email, ip string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(map[string]string{"delivery_method_id": methodID, "email": email, "name": "Jane"})
	req := httptest.NewRequest(http.MethodPost, "/api/reader-magnets/downloads", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Origin", siteOrigin)
	req.Header.Set("X-Forwarded-For", ip)
	return s.serve(req)
}

func (s *e2eSuite) get(path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("X-Forwarded-For", ip)
	return s.serve(req)
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *e2eSuite) seedMethod(t *testing.T) string {
	t.Helper()
	w := s.internalJSON(http.MethodPost, "/internal/books", `{"title":"The Lighthouse Keeper","author_name":"Mara Ellison"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	bookID := decodeJSON(t, w)["data"].(map[string]any)["id"].(string)

	w = s.uploadPDF(t, bookID)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeJSON(t, w)["data"].(map[string]any)["delivery_method_id"].(string)
}

func TestReaderMagnetFlow(t *testing.T) {
	s := setupSuite(t)
	methodID := s.seedMethod(t)
	ip := "203.0.113.50"

	w := s.download(methodID, "Reader@Example.com", ip)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	body := decodeJSON(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["is_redownload"])
	token, ok := body["access_token"].(string)
	require.True(t, ok)
	assert.Len(t, token, 64)

	downloadURL := body["download_url"].(string)
	require.True(t, strings.HasPrefix(downloadURL, publicBase+"/api/reader-magnets/files?sig="), downloadURL)

	w = s.get(strings.TrimPrefix(downloadURL, publicBase), ip)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, samplePDF, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "lighthouse.pdf")

	w = s.get("/api/reader-magnets/access/"+token, ip)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), publicBase+"/api/reader-magnets/files?sig="))

	w = s.download(methodID, "reader@example.com", ip)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decodeJSON(t, w)
	assert.Equal(t, true, body["is_redownload"])
	assert.Equal(t, token, body["access_token"])

	w = s.internalJSON(http.MethodPost, "/internal/access-tokens/revoke", `{"token":"`+token+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decodeJSON(t, w)["data"].(map[string]any)["revoked"])

	w = s.get("/api/reader-magnets/access/"+token, ip)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBookRateLimitIsSharedThroughRedis(t *testing.T) {
	s := setupSuite(t)
	methodID := s.seedMethod(t)

	for i := 0; i < 5; i++ {
		w := s.download(methodID, "reader@example.com", "203.0.113.60")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := s.download(methodID, "reader@example.com", "203.0.113.61")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.NotEmpty(t, s.redis.Keys())

	s.redis.FastForward(time.Hour + time.Second)
	w = s.download(methodID, "reader@example.com", "203.0.113.61")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestInternalRoutesRequireToken(t *testing.T) {
	s := setupSuite(t)

	req := httptest.NewRequest(http.MethodPost, "/internal/access-tokens/cleanup", nil)
	assert.Equal(t, http.StatusUnauthorized, s.serve(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/internal/access-tokens/cleanup", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusForbidden, s.serve(req).Code)

	w := s.internalJSON(http.MethodPost, "/internal/access-tokens/cleanup", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(0), decodeJSON(t, w)["data"].(map[string]any)["expired"])
}

func TestHealthz(t *testing.T) {
	s := setupSuite(t)
	w := s.get("/healthz", "203.0.113.70")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeJSON(t, w)["data"].(map[string]any)["status"])
}
