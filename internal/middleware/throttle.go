package middleware

import (
	"time"

	"github.com/didip/tollbooth/v6"
	"github.com/didip/tollbooth/v6/limiter"
	"github.com/gin-gonic/gin"

	"booksweeps/internal/pkg/apperror"
	"booksweeps/internal/pkg/response"
)

// Throttle limits each client IP to rps requests per second. It is a coarse
// per-process guard in front of expensive endpoints.
func Throttle(rps float64) gin.HandlerFunc {
	lmt := tollbooth.NewLimiter(rps, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	lmt.SetIPLookups([]string{"X-Forwarded-For", "X-Real-IP", "CF-Connecting-IP", "RemoteAddr"})

	return func(c *gin.Context) {
		if httpErr := tollbooth.LimitByRequest(lmt, c.Writer, c.Request); httpErr != nil {
			response.Fail(c, apperror.RateLimited("throttled: "+httpErr.Message, 1))
			return
		}
		c.Next()
	}
}
