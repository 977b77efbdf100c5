package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"booksweeps/internal/pkg/apperror"
	"booksweeps/internal/pkg/requestguard"
	"booksweeps/internal/pkg/response"
)

// InternalTokenAuth protects internal endpoints with a static bearer token
// and an optional client IP allow-list. An empty token disables the
// endpoints entirely.
func InternalTokenAuth(token string, allowedIPs []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedIPs))
	for _, ip := range allowedIPs {
		if ip = strings.TrimSpace(ip); ip != "" {
			allowed[ip] = true
		}
	}

	return func(c *gin.Context) {
		if token == "" {
			logAuthFailure(c, "token_not_configured")
			response.Fail(c, apperror.New(apperror.KindAuthorization, "internal api disabled"))
			return
		}

		if len(allowed) > 0 && !allowed[requestguard.ClientIP(c.Request.Header)] {
			logAuthFailure(c, "ip_not_allowed")
			response.Fail(c, apperror.New(apperror.KindAuthorization, "internal api ip not allowed"))
			return
		}

		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if authHeader == "" || len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			logAuthFailure(c, "missing_auth")
			response.Fail(c, apperror.New(apperror.KindAuthentication, "missing internal bearer token"))
			return
		}

		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(token)) != 1 {
			logAuthFailure(c, "invalid_token")
			response.Fail(c, apperror.New(apperror.KindAuthorization, "invalid internal token"))
			return
		}

		c.Next()
	}
}

func logAuthFailure(c *gin.Context, reason string) {
	slog.Warn("internal_api_auth",
		"path", c.Request.URL.Path,
		"client_ip", requestguard.ClientIP(c.Request.Header),
		"request_id", requestID(c),
		"reason", reason,
	)
}
