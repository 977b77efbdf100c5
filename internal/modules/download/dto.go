package download

import (
	"strings"

	"booksweeps/internal/pkg/apperror"
	"booksweeps/internal/pkg/validator"
)

// DownloadRequest is the body of POST /api/reader-magnets/downloads.
type DownloadRequest struct {
	DeliveryMethodID string `json:"delivery_method_id" validate:"required,uuid"`
	Email            string `json:"email" validate:"required,email,max=254"`
	Name             string `json:"name" validate:"omitempty,max=100,personname"`
}

// Normalize trims input and lowercases the email so one reader maps to one
// delivery row regardless of how they typed their address.
func (r *DownloadRequest) Normalize() {
	r.DeliveryMethodID = strings.TrimSpace(r.DeliveryMethodID)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Name = strings.TrimSpace(r.Name)
}

// ValidateDownloadRequest normalizes req and checks it, returning a
// validation error with per-field issues.
func ValidateDownloadRequest(req *DownloadRequest) error {
	req.Normalize()
	if errs := validator.Validate(req); errs != nil {
		return apperror.Validation(errs)
	}
	return nil
}

type DownloadResponse struct {
	Success       bool    `json:"success"`
	DownloadURL   string  `json:"download_url"`
	AccessToken   *string `json:"access_token"`
	Message       string  `json:"message"`
	IsRedownload  bool    `json:"is_redownload"`
	DownloadCount int     `json:"download_count"`
}

func toDownloadResponse(res *DeliveryResult) DownloadResponse {
	return DownloadResponse{
		Success:       true,
		DownloadURL:   res.DownloadURL,
		AccessToken:   res.AccessToken,
		Message:       res.Message,
		IsRedownload:  res.IsRedownload,
		DownloadCount: res.DownloadCount,
	}
}
