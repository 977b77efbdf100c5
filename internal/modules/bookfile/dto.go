package bookfile

import (
	"time"

	"github.com/google/uuid"

	"booksweeps/internal/domain"
)

type CreateBookRequest struct {
	Title      string `json:"title" validate:"required,max=255"`
	AuthorName string `json:"author_name" validate:"omitempty,max=255"`
}

type UploadForm struct {
	BookID         string `form:"book_id" json:"book_id" validate:"required,uuid"`
	DeliveryMethod string `form:"delivery_method" json:"delivery_method" validate:"omitempty,oneof=ebook audiobook print"`
	DownloadLimit  *int   `form:"download_limit" json:"download_limit" validate:"omitempty,min=1"`
}

type BookFileResponse struct {
	ID               uuid.UUID  `json:"id"`
	BookID           uuid.UUID  `json:"book_id"`
	FileName         string     `json:"file_name"`
	MimeType         string     `json:"mime_type"`
	Size             int64      `json:"size"`
	RiskLevel        string     `json:"risk_level"`
	DetectedMIME     string     `json:"detected_mime,omitempty"`
	DeliveryMethodID *uuid.UUID `json:"delivery_method_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toBookFileResponse(res *UploadResult) BookFileResponse {
	out := BookFileResponse{
		ID:        res.File.ID,
		BookID:    res.File.BookID,
		FileName:  res.File.FileName,
		MimeType:  res.File.MimeType,
		Size:      res.File.Size,
		CreatedAt: res.File.CreatedAt,
	}
	if res.Analysis != nil {
		out.RiskLevel = string(res.Analysis.RiskLevel)
		out.DetectedMIME = res.Analysis.DetectedMIME
	}
	if res.Method != nil {
		out.DeliveryMethodID = &res.Method.ID
	}
	return out
}

func toBookResponse(b *domain.Book) map[string]any {
	return map[string]any{
		"id":          b.ID,
		"title":       b.Title,
		"author_name": b.AuthorName,
		"created_at":  b.CreatedAt,
	}
}
