package accesstoken

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"booksweeps/internal/pkg/apperror"
	"booksweeps/internal/pkg/response"
	"booksweeps/internal/pkg/validator"
)

type RevokeRequest struct {
	Token string `json:"token" validate:"required"`
}

// Handler serves the internal token maintenance endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	tokens := rg.Group("/access-tokens")
	{
		tokens.POST("/revoke", h.Revoke)
		tokens.POST("/cleanup", h.Cleanup)
	}
}

func (h *Handler) Revoke(c *gin.Context) {
	var req RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperror.Wrap(apperror.KindValidation, err, "malformed revoke body"))
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.Fail(c, apperror.Validation(errs))
		return
	}

	revoked, err := h.service.Revoke(c.Request.Context(), req.Token)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": revoked})
}

func (h *Handler) Cleanup(c *gin.Context) {
	n, err := h.service.CleanupExpired(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"expired": n})
}
