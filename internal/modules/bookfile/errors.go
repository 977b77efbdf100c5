package bookfile

import "booksweeps/internal/pkg/apperror"

func errEmptyFile() *apperror.Error {
	return apperror.Validation(map[string]string{"file": "required"})
}

func errBookNotFound() *apperror.Error {
	e := apperror.New(apperror.KindNotFound, "book not found")
	e.PublicMessage = "Book not found"
	return e
}

// errRejected is only returned on internal endpoints, so the scan reason is
// exposed to the operator.
func errRejected(reason string) *apperror.Error {
	e := apperror.New(apperror.KindSecurity, "upload rejected: "+reason)
	e.PublicMessage = "File rejected: " + reason
	return e
}
