package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booksweeps/internal/domain"
)

// BookRepository provides DB access for books, their stored files and the
// delivery methods that offer them.
type BookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) *BookRepository {
	return &BookRepository{db: db}
}

func (r *BookRepository) CreateBook(ctx context.Context, b *domain.Book) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *BookRepository) GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	var b domain.Book
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookRepository) CreateFile(ctx context.Context, f *domain.BookFile) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *BookRepository) GetFile(ctx context.Context, id uuid.UUID) (*domain.BookFile, error) {
	var f domain.BookFile
	if err := r.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *BookRepository) DeleteFile(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.BookFile{}, "id = ?", id).Error
}

func (r *BookRepository) CreateDeliveryMethod(ctx context.Context, m *domain.DeliveryMethod) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// GetDeliveryMethod loads a delivery method with its book and stored file.
func (r *BookRepository) GetDeliveryMethod(ctx context.Context, id uuid.UUID) (*domain.DeliveryMethod, error) {
	var m domain.DeliveryMethod
	err := r.db.WithContext(ctx).
		Preload("Book").
		Preload("BookFile").
		First(&m, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
