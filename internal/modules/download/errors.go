package download

import (
	"booksweeps/internal/pkg/apperror"
)

func errMethodUnavailable(reason string) *apperror.Error {
	e := apperror.New(apperror.KindNotFound, "delivery method unavailable: "+reason)
	e.PublicMessage = "Book not available for download"
	return e
}

func errDownloadLimit() *apperror.Error {
	e := apperror.New(apperror.KindRateLimit, "delivery method download limit reached")
	e.PublicMessage = "Download limit reached for this book"
	return e
}

func errFileRejected(reason string) *apperror.Error {
	return apperror.New(apperror.KindSecurity, "file failed security validation: "+reason)
}

func errAccessDenied(reason string) *apperror.Error {
	e := apperror.New(apperror.KindAuthentication, "access token rejected: "+reason)
	e.PublicMessage = "Invalid or expired access link"
	return e
}

func errLinkInvalid(err error) *apperror.Error {
	e := apperror.Wrap(apperror.KindAuthorization, err, "signed url rejected")
	e.PublicMessage = "Download link expired or invalid"
	return e
}
