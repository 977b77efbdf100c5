package download

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"booksweeps/internal/pkg/apperror"
	"booksweeps/internal/pkg/requestguard"
	"booksweeps/internal/pkg/response"
)

// Handler serves the public reader-magnet endpoints.
type Handler struct {
	service *Service
	origins *requestguard.OriginPolicy
}

func NewHandler(service *Service, origins *requestguard.OriginPolicy) *Handler {
	return &Handler{service: service, origins: origins}
}

// RegisterRoutes mounts the endpoints on rg (normally /api/reader-magnets).
// fileMiddleware runs before the file streaming endpoint only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, fileMiddleware ...gin.HandlerFunc) {
	rg.POST("/downloads", h.Download)
	rg.GET("/access/:token", h.Access)
	rg.GET("/files", append(fileMiddleware, h.StreamFile)...)
}

// Download handles POST /downloads.
func (h *Handler) Download(c *gin.Context) {
	userAgent := c.Request.UserAgent()
	if !requestguard.ValidUserAgent(userAgent) {
		response.Fail(c, apperror.New(apperror.KindSecurity, "blocked user agent: "+userAgent))
		return
	}
	if !h.origins.Valid(c.GetHeader("Origin"), c.GetHeader("Referer")) {
		response.Fail(c, apperror.New(apperror.KindSecurity, "origin not allowed: "+c.GetHeader("Origin")))
		return
	}

	var req DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperror.Wrap(apperror.KindValidation, err, "malformed download body"))
		return
	}
	response.RememberBody(c, map[string]any{
		"delivery_method_id": req.DeliveryMethodID,
		"email":              req.Email,
		"name":               req.Name,
	})
	if err := ValidateDownloadRequest(&req); err != nil {
		response.Fail(c, err)
		return
	}

	res, err := h.service.Deliver(c.Request.Context(), DeliveryInput{
		Request:   req,
		ClientIP:  requestguard.ClientIP(c.Request.Header),
		UserAgent: userAgent,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	if q := res.Quota; q != nil {
		c.Header("X-RateLimit-Limit", strconv.Itoa(q.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(q.Remaining()))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(q.ResetTime.Unix(), 10))
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, toDownloadResponse(res))
}

// Access handles GET /access/:token by redirecting to a fresh signed URL.
func (h *Handler) Access(c *gin.Context) {
	if !requestguard.ValidUserAgent(c.Request.UserAgent()) {
		response.Fail(c, apperror.New(apperror.KindSecurity, "blocked user agent: "+c.Request.UserAgent()))
		return
	}

	url, err := h.service.Access(c.Request.Context(), c.Param("token"), requestguard.ClientIP(c.Request.Header))
	if err != nil {
		response.Fail(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, url)
}

// StreamFile handles GET /files?sig=... and sends the file as an attachment.
func (h *Handler) StreamFile(c *gin.Context) {
	file, err := h.service.OpenFile(c.Request.Context(), c.Query("sig"), requestguard.ClientIP(c.Request.Header))
	if err != nil {
		response.Fail(c, err)
		return
	}
	defer file.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": file.FileName})
	if disposition == "" {
		disposition = "attachment"
	}
	c.DataFromReader(http.StatusOK, file.Size, file.MimeType, file, map[string]string{
		"Content-Disposition":    disposition,
		"Cache-Control":          "private, no-store",
		"X-Content-Type-Options": "nosniff",
	})
}
