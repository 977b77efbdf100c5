package apperror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestKindMapping(t *testing.T) {
	cases := []struct {
		kind   Kind
		status int
		code   string
	}{
		{KindValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{KindSecurity, http.StatusForbidden, "SECURITY_ERROR"},
		{KindAuthentication, http.StatusUnauthorized, "AUTHENTICATION_ERROR"},
		{KindAuthorization, http.StatusForbidden, "AUTHORIZATION_ERROR"},
		{KindNotFound, http.StatusNotFound, "NOT_FOUND"},
		{KindRateLimit, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
		{KindDatabase, http.StatusInternalServerError, "DATABASE_ERROR"},
		{KindExternalService, http.StatusInternalServerError, "SERVICE_UNAVAILABLE"},
		{KindInternal, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, tc.kind.Status(), tc.kind.String())
		assert.Equal(t, tc.code, tc.kind.Code(), tc.kind.String())
		assert.NotEmpty(t, tc.kind.ClientMessage())
	}
}

func TestClassify(t *testing.T) {
	notFound := Classify(fmt.Errorf("lookup: %w", gorm.ErrRecordNotFound))
	assert.Equal(t, KindNotFound, notFound.Kind)

	unique := Classify(&pgconn.PgError{Code: "23505"})
	assert.Equal(t, KindDatabase, unique.Kind)
	assert.Equal(t, http.StatusInternalServerError, unique.Status())

	down := Classify(&pgconn.PgError{Code: "08006"})
	assert.True(t, down.Unavailable)
	assert.Equal(t, http.StatusServiceUnavailable, down.Status())
	assert.Equal(t, SeverityCritical, down.Severity())

	deadline := Classify(context.DeadlineExceeded)
	assert.Equal(t, KindExternalService, deadline.Kind)

	wrappedDeadline := Classify(fmt.Errorf("load delivery method: %w", context.DeadlineExceeded))
	assert.Equal(t, KindExternalService, wrappedDeadline.Kind)
	assert.False(t, wrappedDeadline.Unavailable)
	assert.Equal(t, http.StatusInternalServerError, wrappedDeadline.Status())
	assert.Equal(t, SeverityMedium, wrappedDeadline.Severity())

	refused := Classify(fmt.Errorf("query: %w", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))
	assert.Equal(t, KindDatabase, refused.Kind)
	assert.True(t, refused.Unavailable)
	assert.Equal(t, http.StatusServiceUnavailable, refused.Status())

	other := Classify(errors.New("boom"))
	assert.Equal(t, KindInternal, other.Kind)
	assert.Equal(t, "An unexpected error occurred", other.ClientMessage())

	tagged := RateLimited("ip limit", 0)
	assert.Same(t, tagged, Classify(fmt.Errorf("wrapped: %w", tagged)))
	assert.Equal(t, 1, tagged.RetryAfter)
}

func TestClientMessageNeverLeaksInternalDetail(t *testing.T) {
	err := Wrap(KindDatabase, errors.New(`pq: relation "reader_deliveries" does not exist`), "insert delivery")
	assert.NotContains(t, err.ClientMessage(), "reader_deliveries")
	assert.Contains(t, err.Error(), "reader_deliveries")
}

func TestRedactBody(t *testing.T) {
	body := map[string]any{
		"email":              "reader@example.com",
		"name":               "Jane",
		"access_token":       "abc",
		"delivery_method_id": "8a6e0804-2bd0-4672-b79d-d97027f9071a",
		"nested":             map[string]any{"password": "hunter2"},
	}

	out := RedactBody(body)

	assert.Equal(t, "r***@example.com", out["email"])
	assert.Equal(t, "Jane", out["name"])
	assert.Equal(t, "[REDACTED]", out["access_token"])
	assert.Equal(t, "[REDACTED]", out["nested"].(map[string]any)["password"])
	assert.Equal(t, "reader@example.com", body["email"], "input must not be modified")
}
