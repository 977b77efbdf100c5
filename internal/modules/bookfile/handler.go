package bookfile

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"booksweeps/internal/pkg/apperror"
	"booksweeps/internal/pkg/response"
	"booksweeps/internal/pkg/validator"
)

// Handler exposes book and manuscript management on the internal API.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/books", h.CreateBook)
	rg.POST("/book-files", h.Upload)
}

func (h *Handler) CreateBook(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperror.Wrap(apperror.KindValidation, err, "malformed book body"))
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.Fail(c, apperror.Validation(errs))
		return
	}

	book, err := h.service.CreateBook(c.Request.Context(), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, toBookResponse(book))
}

func (h *Handler) Upload(c *gin.Context) {
	var form UploadForm
	if err := c.ShouldBind(&form); err != nil {
		response.Fail(c, apperror.Wrap(apperror.KindValidation, err, "malformed upload form"))
		return
	}
	if errs := validator.Validate(&form); errs != nil {
		response.Fail(c, apperror.Validation(errs))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Fail(c, errEmptyFile())
		return
	}

	res, err := h.service.Upload(c.Request.Context(), UploadInput{
		BookID:         uuid.MustParse(form.BookID),
		File:           fileHeader,
		DeliveryMethod: form.DeliveryMethod,
		DownloadLimit:  form.DownloadLimit,
	})
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
			return
		}
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, toBookFileResponse(res))
}
