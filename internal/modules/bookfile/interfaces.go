package bookfile

import (
	"context"
	"io"

	"github.com/google/uuid"

	"booksweeps/internal/domain"
	"booksweeps/internal/pkg/filesecurity"
)

type BookStore interface {
	CreateBook(ctx context.Context, b *domain.Book) error
	GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, error)
	CreateFile(ctx context.Context, f *domain.BookFile) error
	DeleteFile(ctx context.Context, id uuid.UUID) error
	CreateDeliveryMethod(ctx context.Context, m *domain.DeliveryMethod) error
}

type ObjectStore interface {
	Put(ctx context.Context, objectPath string, r io.Reader) (int64, error)
	Delete(objectPath string) error
}

type FileScanner interface {
	Validate(fileName, mimeType string, buf []byte, fctx *filesecurity.Context) filesecurity.Result
}
