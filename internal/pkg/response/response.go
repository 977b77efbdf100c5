package response

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"booksweeps/internal/pkg/apperror"
	"booksweeps/internal/pkg/requestguard"
)

const requestBodyKey = "log_request_body"

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// RememberBody stores the request body so a later failure can log it redacted.
func RememberBody(c *gin.Context, body map[string]any) {
	c.Set(requestBodyKey, body)
}

// Fail sanitizes err into the public taxonomy, logs the full detail
// server-side and writes the generic client body.
func Fail(c *gin.Context, err error) {
	appErr := apperror.Classify(err)

	logFailure(c, appErr)

	errBody := gin.H{
		"code":    appErr.Kind.Code(),
		"message": appErr.ClientMessage(),
	}
	if len(appErr.Fields) > 0 {
		errBody["fields"] = appErr.Fields
	}
	payload := gin.H{
		"success": false,
		"error":   errBody,
	}
	if appErr.Kind == apperror.KindRateLimit && appErr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(appErr.RetryAfter))
		payload["retryAfter"] = appErr.RetryAfter
	}

	c.AbortWithStatusJSON(appErr.Status(), payload)
}

func logFailure(c *gin.Context, appErr *apperror.Error) {
	attrs := []any{
		"kind", appErr.Kind.String(),
		"severity", string(appErr.Severity()),
		"status", appErr.Status(),
		"endpoint", c.FullPath(),
		"method", c.Request.Method,
		"client_ip", requestguard.ClientIP(c.Request.Header),
		"user_agent", c.Request.UserAgent(),
		"request_id", c.GetHeader("X-Request-ID"),
		"error", appErr.Error(),
	}
	if raw, ok := c.Get(requestBodyKey); ok {
		if body, ok := raw.(map[string]any); ok {
			attrs = append(attrs, "body", apperror.RedactBody(body))
		}
	}

	switch appErr.Severity() {
	case apperror.SeverityCritical, apperror.SeverityHigh:
		slog.Error("request failed", attrs...)
	case apperror.SeverityMedium:
		slog.Warn("request failed", attrs...)
	default:
		slog.Info("request rejected", attrs...)
	}
}
